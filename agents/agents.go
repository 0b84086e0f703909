package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ghostline-hq/ghostline/domain"
	"github.com/ghostline-hq/ghostline/embedder"
	"github.com/ghostline-hq/ghostline/modelclient"
	"github.com/ghostline-hq/ghostline/voice"
)

// Role names an agent's fixed prompt/temperature profile, mirroring the
// original_source AgentRole enum (PLANNER/CRITIC/DRAFTER/EDITOR/
// FACT_CHECKER/COHESION/VOICE_ANALYST).
type Role string

const (
	RoleOutlinePlanner  Role = "outline_planner"
	RoleOutlineCritic   Role = "outline_critic"
	RoleContentDrafter  Role = "content_drafter"
	RoleVoiceEditor     Role = "voice_editor"
	RoleFactChecker     Role = "fact_checker"
	RoleCohesionAnalyst Role = "cohesion_analyst"
	RoleVoiceAnalyst    Role = "voice_analyst"
)

// Agent wraps a modelclient.Client with the role's fixed temperature and
// system prompt. One Agent instance per role per workflow run, since
// Client pins a fallback decision to itself (spec section 4.2).
type Agent struct {
	role        Role
	client      *modelclient.Client
	temperature float64
	maxTokens   int
}

// New constructs a role agent over client. Temperature follows spec
// section 4.5's per-role defaults.
func New(role Role, client *modelclient.Client) *Agent {
	return &Agent{role: role, client: client, temperature: defaultTemperature(role), maxTokens: 4096}
}

func defaultTemperature(role Role) float64 {
	switch role {
	case RoleOutlinePlanner, RoleContentDrafter:
		return 0.7
	case RoleOutlineCritic:
		return 0.4
	case RoleVoiceEditor:
		return 0.5
	default:
		return 0.3
	}
}

func (a *Agent) invoke(ctx context.Context, systemPrompt, userPrompt string) (modelclient.Result, int64, error) {
	start := time.Now()
	res, err := a.client.Invoke(ctx, systemPrompt, userPrompt, modelclient.Options{
		Temperature: a.temperature,
		MaxTokens:   a.maxTokens,
	})
	return res, time.Since(start).Milliseconds(), err
}

// --- OutlinePlanner -------------------------------------------------------

const outlinePlannerSystemPrompt = `You are an expert book outliner. Given source material summaries, a
working title and description, a target chapter count, and voice guidance,
produce a complete book outline as JSON:
{
  "title": "...",
  "premise": "...",
  "themes": ["..."],
  "target_audience": "...",
  "chapters": [
    {"number": 1, "title": "...", "summary": "...", "key_points": ["..."], "estimated_words": 2500}
  ]
}
Return ONLY the JSON object, no additional text.`

// PlanOutlineInput is OutlinePlanner's input per spec section 4.5.
type PlanOutlineInput struct {
	SourceSummaries []string
	Title           string
	Description     string
	TargetChapters  int
	VoiceGuidance   string
	PriorOutline    *domain.Outline
	Feedback        []string
}

// PlanOutline produces a new or revised Outline.
func (a *Agent) PlanOutline(ctx context.Context, in PlanOutlineInput) (Output, domain.Outline, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "TITLE: %s\nDESCRIPTION: %s\nTARGET CHAPTERS: %d\n", in.Title, in.Description, in.TargetChapters)
	if in.VoiceGuidance != "" {
		fmt.Fprintf(&b, "VOICE GUIDANCE: %s\n", in.VoiceGuidance)
	}
	if len(in.SourceSummaries) > 0 {
		b.WriteString("SOURCE SUMMARIES:\n")
		for _, s := range in.SourceSummaries {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	if in.PriorOutline != nil {
		fmt.Fprintf(&b, "\nPRIOR OUTLINE:\n%s\n", formatOutline(*in.PriorOutline))
	}
	if len(in.Feedback) > 0 {
		b.WriteString("\nCRITIC FEEDBACK TO ADDRESS:\n")
		for _, f := range in.Feedback {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	res, dur, err := a.invoke(ctx, outlinePlannerSystemPrompt, b.String())
	if err != nil {
		return Output{Error: err.Error()}, domain.Outline{}, err
	}

	out := outputFromResult(a.client, res, dur, 0.8)
	var outline domain.Outline
	if parseErr := parseJSON(res.Content, &outline); parseErr != nil {
		out.Error = fmt.Sprintf("outline parse failure: %v", parseErr)
		out.Confidence = 0
		return out, domain.Outline{Title: in.Title}, parseErr
	}
	renumber(&outline)
	out.StructuredData = map[string]any{"chapter_count": len(outline.Chapters)}
	return out, outline, nil
}

func renumber(o *domain.Outline) {
	for i := range o.Chapters {
		o.Chapters[i].Number = i + 1
	}
}

func formatOutline(o domain.Outline) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\nPremise: %s\n", o.Title, o.Premise)
	for _, c := range o.Chapters {
		fmt.Fprintf(&b, "%d. %s — %s\n", c.Number, c.Title, c.Summary)
	}
	return b.String()
}

// --- OutlineCritic ---------------------------------------------------------

const outlineCriticSystemPrompt = `You are a demanding developmental editor reviewing a book outline before
it goes to the author for approval. Check for: logical chapter
progression, adequate coverage of the stated themes, no redundant
chapters, each chapter earning its place. Respond as JSON:
{"approved": true/false, "feedback": ["specific, actionable note", ...]}
An empty feedback list is only valid when approved is true. Return ONLY
the JSON object.`

// CriticResult is OutlineCritic's structured verdict.
type CriticResult struct {
	Approved bool     `json:"approved"`
	Feedback []string `json:"feedback"`
}

// CritiqueOutline reviews outline and returns an approval verdict.
func (a *Agent) CritiqueOutline(ctx context.Context, outline domain.Outline) (Output, CriticResult, error) {
	res, dur, err := a.invoke(ctx, outlineCriticSystemPrompt, formatOutline(outline))
	if err != nil {
		return Output{Error: err.Error()}, CriticResult{}, err
	}
	out := outputFromResult(a.client, res, dur, 0.7)
	var result CriticResult
	if parseErr := parseJSON(res.Content, &result); parseErr != nil {
		out.Error = fmt.Sprintf("critique parse failure: %v", parseErr)
		out.Confidence = 0
		// Conservative default: treat an unparseable critique as
		// not-approved so the loop asks the planner to try again rather
		// than silently shipping an unreviewed outline.
		return out, CriticResult{Approved: false, Feedback: []string{"critic response could not be parsed"}}, nil
	}
	out.StructuredData = map[string]any{"approved": result.Approved, "issue_count": len(result.Feedback)}
	return out, result, nil
}

// --- ContentDrafter ---------------------------------------------------------

const contentDrafterSystemPrompt = `You are a ghostwriter drafting one chapter of a nonfiction book in the
author's voice. Every factual claim MUST be grounded in the provided
source excerpts and marked inline immediately after the sentence it
supports using exactly this format: [citation: <filename> - "<exact
quoted excerpt from the source>"]. Do not invent sources or quotes. Write
complete, polished prose — not an outline or bullet list.`

// DraftChapterInput is ContentDrafter's input per spec section 4.5.
type DraftChapterInput struct {
	ChapterOutline      domain.OutlineChapter
	SourceContext       string // pre-built via retrieval.BuildContext
	PreviousCanon       []domain.CanonBlock
	VoiceGuidance       string
	TargetWords         int
	GroundingRequired   bool
}

// DraftChapter produces raw chapter markdown with inline citation markers.
func (a *Agent) DraftChapter(ctx context.Context, in DraftChapterInput) (Output, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "CHAPTER %d: %s\nSUMMARY: %s\nTARGET WORDS: %d\n", in.ChapterOutline.Number, in.ChapterOutline.Title, in.ChapterOutline.Summary, in.TargetWords)
	if len(in.ChapterOutline.KeyPoints) > 0 {
		b.WriteString("KEY POINTS:\n")
		for _, p := range in.ChapterOutline.KeyPoints {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	if in.VoiceGuidance != "" {
		fmt.Fprintf(&b, "VOICE GUIDANCE: %s\n", in.VoiceGuidance)
	}
	if len(in.PreviousCanon) > 0 {
		b.WriteString("\nESTABLISHED SO FAR (do not contradict):\n")
		for _, c := range in.PreviousCanon {
			fmt.Fprintf(&b, "Chapter %d (%s): %s\n", c.ChapterNumber, c.Title, c.OutlineSummary)
		}
	}
	if in.GroundingRequired {
		b.WriteString("\nGROUNDING IS MANDATORY: every factual sentence needs a citation marker.\n")
	}
	b.WriteString("\nSOURCE EXCERPTS:\n")
	b.WriteString(in.SourceContext)

	res, dur, err := a.invoke(ctx, contentDrafterSystemPrompt, b.String())
	if err != nil {
		return Output{Error: err.Error()}, err
	}
	out := outputFromResult(a.client, res, dur, 0.75)
	return out, nil
}

// --- VoiceEditor -------------------------------------------------------

const voiceEditorSystemPromptTemplate = `You are a line editor whose sole job is to make the following chapter
sound like it was written by the same person who wrote the sample prose
below, without changing any facts or removing any citation markers.
Preserve every [citation: ...] marker exactly as written, in its original
position relative to the sentence it supports. Do not add new claims.

AUTHOR VOICE SAMPLES:
%s

Target voice similarity: at least %.2f (embedding weight %.2f).`

// EditForVoiceInput is VoiceEditor's input per spec section 4.5.
type EditForVoiceInput struct {
	Content             string
	VoiceSamples        []string
	SimilarityThreshold float64
	EmbeddingWeight     float64
}

// EditForVoice rewrites content to match the author's voice while
// preserving citations and claims.
func (a *Agent) EditForVoice(ctx context.Context, in EditForVoiceInput) (Output, error) {
	systemPrompt := fmt.Sprintf(voiceEditorSystemPromptTemplate, strings.Join(in.VoiceSamples, "\n---\n"), in.SimilarityThreshold, in.EmbeddingWeight)
	res, dur, err := a.invoke(ctx, systemPrompt, in.Content)
	if err != nil {
		return Output{Error: err.Error()}, err
	}
	return outputFromResult(a.client, res, dur, 0.7), nil
}

// --- FactChecker -------------------------------------------------------

const factCheckerSystemPrompt = `You are a rigorous fact checker. For the chapter below, verify every
factual claim against the provided source excerpts. Respond as JSON:
{
  "accuracy_score": 0.0-1.0,
  "summary": "overall assessment",
  "findings": ["specific finding", ...],
  "unsupported_claims": ["claim text not backed by any source", ...],
  "low_confidence_citations": ["filename - quote", ...],
  "claim_mappings": [
    {"claim": "...", "source_filename": "...", "quote": "...", "quote_verified": true, "is_supported": true, "needs_human_review": false, "confidence": 0.9}
  ]
}
Return ONLY the JSON object.`

// FactCheckResult is FactChecker's structured verdict.
type FactCheckResult struct {
	AccuracyScore          float64               `json:"accuracy_score"`
	Summary                string                `json:"summary"`
	Findings               []string              `json:"findings"`
	UnsupportedClaims      []string              `json:"unsupported_claims"`
	LowConfidenceCitations []string              `json:"low_confidence_citations"`
	ClaimMappings          []domain.ClaimMapping `json:"claim_mappings"`
}

// CheckFacts verifies chapter content against its source excerpts. On a
// total parse failure it returns fact_score=0 and an error feedback
// string rather than a mid-range default, per spec section 4.5 (the
// fact-checking role is the one place an unparseable response cannot be
// treated as neutral, since should_revise gates on it).
func (a *Agent) CheckFacts(ctx context.Context, content, sourceContext string) (Output, FactCheckResult, error) {
	userPrompt := "CHAPTER:\n" + content + "\n\nSOURCE EXCERPTS:\n" + sourceContext
	res, dur, err := a.invoke(ctx, factCheckerSystemPrompt, userPrompt)
	if err != nil {
		return Output{Error: err.Error()}, FactCheckResult{}, err
	}
	out := outputFromResult(a.client, res, dur, 0)
	var result FactCheckResult
	if parseErr := parseJSON(res.Content, &result); parseErr != nil {
		out.Error = fmt.Sprintf("fact check parse failure: %v", parseErr)
		return out, FactCheckResult{AccuracyScore: 0, Summary: "Could not parse fact-check response", Findings: []string{out.Error}}, nil
	}
	out.Confidence = result.AccuracyScore
	out.StructuredData = map[string]any{"accuracy_score": result.AccuracyScore, "unsupported_count": len(result.UnsupportedClaims)}
	return out, result, nil
}

// --- CohesionAnalyst -------------------------------------------------------

const cohesionAnalystSystemPrompt = `You are an expert developmental editor specializing in narrative
structure and flow. Analyze content for logical progression, smooth
transitions, consistent pacing, and alignment with the overall book
structure. Respond as JSON:
{"cohesion_score": 0.0-1.0, "issues": ["..."], "strengths": ["..."], "summary": "..."}
Return ONLY the JSON object.`

// CohesionResult is CohesionAnalyst's structured verdict.
type CohesionResult struct {
	CohesionScore float64  `json:"cohesion_score"`
	Issues        []string `json:"issues"`
	Strengths     []string `json:"strengths"`
	Summary       string   `json:"summary"`
}

// CheckCohesion analyzes content against prior chapter summaries and
// surrounding outline context.
func (a *Agent) CheckCohesion(ctx context.Context, content string, previousSummaries []string, outlineContext string) (Output, CohesionResult, error) {
	var b strings.Builder
	if outlineContext != "" {
		fmt.Fprintf(&b, "BOOK OUTLINE CONTEXT:\n%s\n\n", outlineContext)
	}
	if len(previousSummaries) > 0 {
		b.WriteString("PREVIOUS CHAPTER SUMMARIES:\n")
		for i, s := range previousSummaries {
			fmt.Fprintf(&b, "- Chapter %d: %s\n", i+1, s)
		}
		b.WriteString("\n")
	}
	b.WriteString("CHAPTER TO ANALYZE:\n")
	b.WriteString(content)

	res, dur, err := a.invoke(ctx, cohesionAnalystSystemPrompt, b.String())
	if err != nil {
		return Output{Error: err.Error()}, CohesionResult{}, err
	}
	out := outputFromResult(a.client, res, dur, 0)
	var result CohesionResult
	if parseErr := parseJSON(res.Content, &result); parseErr != nil {
		out.Error = fmt.Sprintf("cohesion parse failure: %v", parseErr)
		// Conservative neutral default in the shape of the teacher's
		// original_source fallback: cohesion_score 0.5, no issues, and the
		// summary "Could not parse results".
		return out, CohesionResult{CohesionScore: 0.5, Summary: "Could not parse results"}, nil
	}
	out.Confidence = result.CohesionScore
	out.StructuredData = map[string]any{"cohesion_score": result.CohesionScore, "issue_count": len(result.Issues)}
	return out, result, nil
}

// --- VoiceAnalyst -------------------------------------------------------

const voiceAnalystSystemPrompt = `You are a literary style analyst. Read the author's writing samples
below and describe their voice: recurring phrases, characteristic
sentence openers, favorite transition words, and a short prose
description of their style. Respond as JSON:
{"common_phrases": ["..."], "sentence_starters": ["..."], "transition_words": ["..."], "style_description": "..."}
Return ONLY the JSON object.`

type voiceAnalystLLMResult struct {
	CommonPhrases     []string `json:"common_phrases"`
	SentenceStarters  []string `json:"sentence_starters"`
	TransitionWords   []string `json:"transition_words"`
	StyleDescription  string   `json:"style_description"`
}

// BuildVoiceProfile blends the LLM's qualitative voice read with
// deterministic embedding + stylometry features computed from the same
// samples, since the embedding/feature math (voice.ExtractFeatures,
// embedder.Embedder) is exact and reproducible per spec section 4.6 and
// should not be left to the model to restate.
func (a *Agent) BuildVoiceProfile(ctx context.Context, projectID string, samples []string, emb embedder.Embedder) (Output, domain.VoiceProfile, error) {
	res, dur, err := a.invoke(ctx, voiceAnalystSystemPrompt, strings.Join(samples, "\n---\n"))
	if err != nil {
		return Output{Error: err.Error()}, domain.VoiceProfile{}, err
	}
	out := outputFromResult(a.client, res, dur, 0.7)

	var llmResult voiceAnalystLLMResult
	if parseErr := parseJSON(res.Content, &llmResult); parseErr != nil {
		out.Error = fmt.Sprintf("voice analyst parse failure: %v", parseErr)
	}

	combined := strings.Join(samples, "\n\n")
	stylometry := voice.ExtractFeatures(combined)

	var profileEmbedding []float32
	if emb != nil {
		vecs, embErr := emb.EmbedBatch(ctx, samples)
		if embErr == nil {
			profileEmbedding = averageVectors(vecs)
		}
	}

	profile := domain.VoiceProfile{
		ProjectID:           projectID,
		Embedding:           profileEmbedding,
		Stylometry:          stylometry,
		CommonPhrases:       llmResult.CommonPhrases,
		SentenceStarters:    llmResult.SentenceStarters,
		TransitionWords:     llmResult.TransitionWords,
		SimilarityThreshold: 0.70,
		EmbeddingWeight:     0.4,
	}
	out.StructuredData = map[string]any{"style_description": llmResult.StyleDescription}
	return out, profile, nil
}

func averageVectors(vecs [][]float32) []float32 {
	if len(vecs) == 0 {
		return nil
	}
	dim := len(vecs[0])
	avg := make([]float32, dim)
	count := 0
	for _, v := range vecs {
		if len(v) != dim {
			continue
		}
		for i, x := range v {
			avg[i] += x
		}
		count++
	}
	if count == 0 {
		return nil
	}
	for i := range avg {
		avg[i] /= float32(count)
	}
	return avg
}
