// Package chapter implements ChapterSubgraph (C10): a bounded
// draft→voice_edit→fact_check→cohesion_check→revise loop that produces a
// finished domain.Chapter. Grounded on
// original_source/.../agents/orchestrator/subgraphs.py's ChapterSubgraph
// (_draft_node/_voice_edit_node/_fact_check_node/_cohesion_check_node/
// _revise_node/_finalize_node/_should_revise, and the
// voice_threshold=0.70/fact_threshold=0.90/cohesion_threshold=0 defaults),
// run as an enginelite.Graph[State] instead of the original's LangGraph
// StateGraph.
package chapter

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/ghostline-hq/ghostline/agents"
	"github.com/ghostline-hq/ghostline/domain"
	"github.com/ghostline-hq/ghostline/enginelite"
	"github.com/ghostline-hq/ghostline/grounding"
	"github.com/ghostline-hq/ghostline/logging"
	"github.com/ghostline-hq/ghostline/voice"
)

// Thresholds caps revision and gates quality, grounded verbatim on the
// teacher's ChapterSubgraph.__init__ defaults.
type Thresholds struct {
	VoiceThreshold     float64
	FactThreshold      float64
	CohesionThreshold  float64
}

// DefaultThresholds matches original_source's ChapterSubgraph defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{VoiceThreshold: 0.70, FactThreshold: 0.90, CohesionThreshold: 0.0}
}

// Bounds carries turns/tokens/cost limits, with OutlineSubgraph's
// SubgraphConfig defaults (max_turns=5, max_tokens=10000, max_cost=1.0).
// The chapter loop enforces only MaxTurns; MaxTokens and MaxCost are not
// checked by shouldRevise.
type Bounds struct {
	MaxTurns  int
	MaxTokens int
	MaxCost   float64
}

// DefaultBounds matches original_source's SubgraphConfig defaults.
func DefaultBounds() Bounds {
	return Bounds{MaxTurns: 5, MaxTokens: 10000, MaxCost: 1.0}
}

// SourceChunkWithCitation is a retrieved chunk plus the citation string to
// attribute it under, grounded on source_chunks_with_citations.
type SourceChunkWithCitation struct {
	Citation string
	Content  string
}

// State is ChapterState from spec section 4.10.
type State struct {
	ChapterOutline            domain.OutlineChapter     `json:"chapter_outline"`
	SourceChunks              []string                  `json:"source_chunks"`
	SourceChunksWithCitations []SourceChunkWithCitation `json:"source_chunks_with_citations"`
	PreviousSummaries         []string                  `json:"previous_summaries"`
	PreviousCanon             []domain.CanonBlock       `json:"previous_canon,omitempty"`
	VoiceProfile              *domain.VoiceProfile      `json:"voice_profile,omitempty"`
	TargetWords               int                       `json:"target_words"`

	DraftContent  string `json:"draft_content"`
	EditedContent string `json:"edited_content"`
	FinalContent  string `json:"final_content"`
	ContentClean  string `json:"content_clean"`

	Citations          []domain.Citation        `json:"citations"`
	RevisionHistory    []domain.RevisionEntry   `json:"revision_history"`
	QualityGatesPassed bool                     `json:"quality_gates_passed"`
	QualityGateReport  domain.QualityGateReport `json:"quality_gate_report"`

	VoiceScore      float64 `json:"voice_score"`
	FactScore       float64 `json:"fact_score"`
	CohesionScore   float64 `json:"cohesion_score"`
	VoiceFeedback   string  `json:"voice_feedback"`
	FactFeedback    string  `json:"fact_feedback"`
	CohesionFeedback string `json:"cohesion_feedback"`

	ClaimMappings  []domain.ClaimMapping   `json:"claim_mappings"`
	CitationReport domain.CitationReport   `json:"citation_report"`

	Iteration    int     `json:"iteration"`
	TokensUsed   int     `json:"tokens_used"`
	CostIncurred float64 `json:"cost_incurred"`
}

// Subgraph runs the draft/voice/fact/cohesion revision loop.
type Subgraph struct {
	drafter    *agents.Agent
	voiceEdit  *agents.Agent
	factCheck  *agents.Agent
	cohesion   *agents.Agent
	metrics    *voice.Metrics
	thresholds Thresholds
	bounds     Bounds
	log        logging.Logger
}

// New constructs a Subgraph. Each agent must already be configured with
// its matching agents.Role. metrics may be nil, in which case voice_edit
// has no numeric scoring leg: it calls the LLM voice editor when a voice
// profile or writing samples exist, and otherwise passes the draft through
// unedited.
func New(drafter, voiceEdit, factCheck, cohesion *agents.Agent, metrics *voice.Metrics, thresholds Thresholds, bounds Bounds, log logging.Logger) *Subgraph {
	if log == nil {
		log = logging.NoOp{}
	}
	return &Subgraph{
		drafter:    drafter,
		voiceEdit:  voiceEdit,
		factCheck:  factCheck,
		cohesion:   cohesion,
		metrics:    metrics,
		thresholds: thresholds,
		bounds:     bounds,
		log:        log.With("chapter_subgraph"),
	}
}

// Run executes START → draft → voice_edit → fact_check → cohesion_check →
// [revise → voice_edit → fact_check → cohesion_check]* → finalize → END.
func (s *Subgraph) Run(ctx context.Context, threadID string, store enginelite.CheckpointStore, in State) (State, error) {
	g := enginelite.New[State]("draft")
	g.AddNode("draft", s.draftNode)
	g.AddNode("voice_edit", s.voiceEditNode)
	g.AddNode("fact_check", s.factCheckNode)
	g.AddNode("cohesion_check", s.cohesionCheckNode)
	g.AddNode("revise", s.reviseNode)
	g.AddNode("finalize", s.finalizeNode)

	g.AddEdge("draft", "voice_edit")
	g.AddEdge("voice_edit", "fact_check")
	g.AddEdge("fact_check", "cohesion_check")
	g.AddConditionalEdge("cohesion_check", map[string]string{"revise": "revise", "done": "finalize"})
	g.AddEdge("revise", "voice_edit")
	g.AddEdge("finalize", enginelite.END)

	runner := enginelite.NewRunner(g, store, threadID, s.log)
	state, err := runner.Start(ctx, &in)
	if err != nil {
		return in, err
	}
	return *state, nil
}

func (s *Subgraph) draftNode(ctx context.Context, st *State) (string, error) {
	st.Iteration = 0

	out, err := s.drafter.DraftChapter(ctx, agents.DraftChapterInput{
		ChapterOutline:    st.ChapterOutline,
		SourceContext:     s.sourcesBlock(st, 12),
		PreviousCanon:     st.PreviousCanon,
		VoiceGuidance:     buildVoiceGuidance(st.VoiceProfile),
		TargetWords:       st.TargetWords,
		GroundingRequired: true,
	})
	st.TokensUsed += out.TokensUsed
	st.CostIncurred += out.EstimatedCost
	if err != nil {
		s.log.Warn("chapter draft failed: %v", err)
		return "", nil
	}
	st.DraftContent = out.Content
	return "", nil
}

// voiceEditNode mirrors the teacher's _voice_edit_node: a numeric
// similarity leg (deterministic, not LLM-judged) takes precedence and
// short-circuits the LLM editor when the draft already passes threshold.
func (s *Subgraph) voiceEditNode(ctx context.Context, st *State) (string, error) {
	content := st.DraftContent

	samples := writingSamples(st.SourceChunksWithCitations, 3)
	threshold := s.thresholds.VoiceThreshold
	embeddingWeight := 0.4
	if st.VoiceProfile != nil {
		if st.VoiceProfile.SimilarityThreshold > 0 {
			threshold = st.VoiceProfile.SimilarityThreshold
		}
		if st.VoiceProfile.EmbeddingWeight > 0 {
			embeddingWeight = st.VoiceProfile.EmbeddingWeight
		}
	}

	numericScored := false
	if s.metrics != nil && len(samples) > 0 {
		reference := strings.Join(samples, "\n\n")
		sim, err := s.metrics.ComputeSimilarity(ctx, reference, content, embeddingWeight, threshold)
		if err != nil {
			s.log.Warn("numeric voice scoring failed, falling back to LLM voice editor: %v", err)
		} else {
			st.VoiceScore = sim.OverallScore
			st.VoiceFeedback = diagnose(sim)
			numericScored = true
			if sim.PassesThreshold {
				st.EditedContent = content
				return "", nil
			}
		}
	}

	if st.VoiceProfile != nil || len(samples) > 0 {
		out, err := s.voiceEdit.EditForVoice(ctx, agents.EditForVoiceInput{
			Content:             content,
			VoiceSamples:        samples,
			SimilarityThreshold: threshold,
			EmbeddingWeight:     embeddingWeight,
		})
		st.TokensUsed += out.TokensUsed
		st.CostIncurred += out.EstimatedCost
		if err != nil {
			st.EditedContent = content
			if st.VoiceFeedback == "" {
				st.VoiceFeedback = fmt.Sprintf("VoiceEditor failed: %v", err)
			}
			return "", nil
		}
		st.EditedContent = out.Content

		if s.metrics != nil && len(samples) > 0 {
			reference := strings.Join(samples, "\n\n")
			sim2, err := s.metrics.ComputeSimilarity(ctx, reference, out.Content, embeddingWeight, threshold)
			if err == nil {
				st.VoiceScore = sim2.OverallScore
				st.VoiceFeedback = diagnose(sim2)
				numericScored = true
			}
		}

		if !numericScored {
			st.VoiceScore = 0.75
			st.VoiceFeedback = "Voice edited (LLM), numeric score unavailable"
		}
		return "", nil
	}

	st.EditedContent = content
	return "", nil
}

func (s *Subgraph) factCheckNode(ctx context.Context, st *State) (string, error) {
	content := currentContent(st)
	sourceBlock := s.sourcesBlock(st, 12)

	out, result, err := s.factCheck.CheckFacts(ctx, content, sourceBlock)
	st.TokensUsed += out.TokensUsed
	st.CostIncurred += out.EstimatedCost

	inline := grounding.VerifyInlineCitations(content, s.lookup(st))

	if err != nil {
		st.FactScore = 0
		st.FactFeedback = fmt.Sprintf("FactChecker failed: %v", err)
		st.ClaimMappings = nil
		st.CitationReport = inline
		return "", nil
	}

	st.FactScore = result.AccuracyScore
	st.FactFeedback = formatFactFeedback(result)
	st.ClaimMappings = result.ClaimMappings
	st.CitationReport = inline
	return "", nil
}

func (s *Subgraph) cohesionCheckNode(ctx context.Context, st *State) (string, error) {
	content := currentContent(st)

	out, result, err := s.cohesion.CheckCohesion(ctx, content, st.PreviousSummaries, "")
	st.TokensUsed += out.TokensUsed
	st.CostIncurred += out.EstimatedCost
	if err != nil {
		st.CohesionScore = 0
		st.CohesionFeedback = fmt.Sprintf("CohesionAnalyst failed: %v", err)
		return s.shouldRevise(st), nil
	}

	st.CohesionScore = result.CohesionScore
	st.CohesionFeedback = formatCohesionFeedback(result)
	return s.shouldRevise(st), nil
}

// reviseNode re-invokes the drafter with hard constraints, voice guidance,
// sources, a quote bank, and the accumulated feedback, per spec section
// 4.10's revise node contract.
func (s *Subgraph) reviseNode(ctx context.Context, st *State) (string, error) {
	st.Iteration++

	var feedbackParts []string
	if st.VoiceScore < s.thresholds.VoiceThreshold && st.VoiceFeedback != "" {
		feedbackParts = append(feedbackParts, "Voice: "+st.VoiceFeedback)
	}
	if st.FactScore < s.thresholds.FactThreshold && st.FactFeedback != "" {
		feedbackParts = append(feedbackParts, "Facts: "+st.FactFeedback)
	}
	if st.CohesionScore < s.thresholds.CohesionThreshold && st.CohesionFeedback != "" {
		feedbackParts = append(feedbackParts, "Cohesion: "+st.CohesionFeedback)
	}
	styleIssues := grounding.ComputeStyleIssues(currentContent(st))
	if len(styleIssues) > 0 {
		feedbackParts = append(feedbackParts, "Style: "+strings.Join(styleIssues, " "))
	}

	if len(feedbackParts) == 0 {
		return "", nil
	}

	prompt := revisionPrompt(buildVoiceGuidance(st.VoiceProfile), s.sourcesBlock(st, 12), quoteBank(st.SourceChunksWithCitations), feedbackParts, currentContent(st))

	out, err := s.drafter.DraftChapter(ctx, agents.DraftChapterInput{
		ChapterOutline:    st.ChapterOutline,
		SourceContext:     prompt,
		TargetWords:       st.TargetWords,
		GroundingRequired: true,
	})
	st.TokensUsed += out.TokensUsed
	st.CostIncurred += out.EstimatedCost
	if err != nil {
		s.log.Warn("chapter revision failed: %v", err)
		return "", nil
	}
	st.DraftContent = out.Content
	return "", nil
}

var citationStripPattern = regexp.MustCompile(`\[citation:\s*([^\-\]]+?)\s*-\s*["“](.*?)["”]\s*\]`)
var doubleSpacePattern = regexp.MustCompile(`[ \t]{2,}`)

// finalizeNode implements spec section 4.10's finalize node contract.
func (s *Subgraph) finalizeNode(ctx context.Context, st *State) (string, error) {
	rawFinal := currentContent(st)
	final := grounding.SanitizeGrounding(rawFinal, false)

	inlineFinal := grounding.VerifyInlineCitations(final, s.lookup(st))
	st.CitationReport = inlineFinal

	contentClean := citationStripPattern.ReplaceAllString(final, "")
	contentClean = doubleSpacePattern.ReplaceAllString(contentClean, " ")
	st.ContentClean = strings.TrimSpace(contentClean)

	st.Citations = indexCitations(st.ContentClean, inlineFinal.Citations)

	styleIssues := grounding.ComputeStyleIssues(final)
	gate := grounding.QualityGate(st.VoiceScore, s.thresholds.VoiceThreshold, inlineFinal, styleIssues)
	st.QualityGatesPassed = gate.Passed
	st.QualityGateReport = gate

	st.FinalContent = final

	st.RevisionHistory = append(st.RevisionHistory, domain.RevisionEntry{
		Iteration:     st.Iteration,
		Stage:         "finalize",
		VoiceScore:    st.VoiceScore,
		FactScore:     st.FactScore,
		CohesionScore: st.CohesionScore,
		StyleIssues:   styleIssues,
		Citations:     inlineFinal,
	})

	return "", nil
}

// shouldRevise implements spec section 4.10's should_revise: done iff
// iteration >= max_turns OR all five gates pass; otherwise revise.
func (s *Subgraph) shouldRevise(st *State) string {
	content := currentContent(st)
	styleIssues := grounding.ComputeStyleIssues(content)
	st.RevisionHistory = append(st.RevisionHistory, domain.RevisionEntry{
		Iteration:     st.Iteration,
		Stage:         "iteration_check",
		VoiceScore:    st.VoiceScore,
		FactScore:     st.FactScore,
		CohesionScore: st.CohesionScore,
		StyleIssues:   styleIssues,
		Citations:     st.CitationReport,
		Feedback:      []string{st.VoiceFeedback, st.FactFeedback, st.CohesionFeedback},
	})

	if st.Iteration >= s.bounds.MaxTurns {
		return "done"
	}

	voiceOK := st.VoiceScore >= s.thresholds.VoiceThreshold
	factOK := st.FactScore >= s.thresholds.FactThreshold
	cohesionOK := st.CohesionScore >= s.thresholds.CohesionThreshold
	citationsOK := inlineOK(st.CitationReport)
	styleOK := len(styleIssues) == 0

	if voiceOK && factOK && cohesionOK && citationsOK && styleOK {
		return "done"
	}
	return "revise"
}

func inlineOK(report domain.CitationReport) bool {
	return report.InlineParsed > 0 &&
		report.InlineInvalidFormat == 0 &&
		report.InlineUnverified == 0 &&
		report.InlineQuality >= 0.99
}

func currentContent(st *State) string {
	if st.EditedContent != "" {
		return st.EditedContent
	}
	return st.DraftContent
}

func (s *Subgraph) sourcesBlock(st *State, limit int) string {
	if len(st.SourceChunksWithCitations) > 0 {
		chunks := st.SourceChunksWithCitations
		if len(chunks) > limit {
			chunks = chunks[:limit]
		}
		var blocks []string
		for _, c := range chunks {
			citation := c.Citation
			if citation == "" {
				citation = "Unknown Source"
			}
			blocks = append(blocks, fmt.Sprintf("---\n%s\n%s\n---", citation, c.Content))
		}
		return strings.Join(blocks, "\n\n")
	}
	chunks := st.SourceChunks
	if len(chunks) > 6 {
		chunks = chunks[:6]
	}
	return strings.Join(chunks, "\n\n")
}

func (s *Subgraph) lookup(st *State) grounding.SourceLookup {
	byFilename := map[string][]string{}
	for _, c := range st.SourceChunksWithCitations {
		byFilename[c.Citation] = append(byFilename[c.Citation], c.Content)
	}
	return grounding.ConcatChunks(byFilename)
}

func writingSamples(chunks []SourceChunkWithCitation, limit int) []string {
	var samples []string
	for i, c := range chunks {
		if i >= limit {
			break
		}
		sample := strings.TrimSpace(c.Content)
		if sample == "" {
			continue
		}
		if len(sample) > 2000 {
			sample = sample[:2000]
		}
		samples = append(samples, sample)
	}
	return samples
}

func buildVoiceGuidance(profile *domain.VoiceProfile) string {
	if profile == nil {
		return ""
	}
	var parts []string
	if len(profile.CommonPhrases) > 0 {
		parts = append(parts, "Common phrases: "+strings.Join(profile.CommonPhrases, ", "))
	}
	if len(profile.SentenceStarters) > 0 {
		parts = append(parts, "Sentence starters: "+strings.Join(profile.SentenceStarters, ", "))
	}
	if len(profile.TransitionWords) > 0 {
		parts = append(parts, "Transition words: "+strings.Join(profile.TransitionWords, ", "))
	}
	return strings.Join(parts, "\n")
}

func diagnose(sim voice.SimilarityResult) string {
	type pair struct {
		name string
		diff float64
	}
	var worst []pair
	for name, diff := range sim.FeatureDifferences {
		worst = append(worst, pair{name, diff})
	}
	sort.Slice(worst, func(i, j int) bool { return worst[i].diff > worst[j].diff })
	if len(worst) > 3 {
		worst = worst[:3]
	}
	var parts []string
	for _, p := range worst {
		parts = append(parts, fmt.Sprintf("%s diff %.2f", p.name, p.diff))
	}
	return fmt.Sprintf("overall=%.2f embedding=%.2f stylometry=%.2f (largest gaps: %s)",
		sim.OverallScore, sim.EmbeddingSimilarity, sim.StylometrySimilarity, strings.Join(parts, ", "))
}

// formatFactFeedback compresses a FactCheckResult into a single line,
// surfacing the summary plus at most the first three unsupported claims.
func formatFactFeedback(r agents.FactCheckResult) string {
	parts := []string{r.Summary}
	claims := r.UnsupportedClaims
	if len(claims) > 3 {
		claims = claims[:3]
	}
	for _, c := range claims {
		parts = append(parts, "unsupported: "+c)
	}
	return strings.Join(nonEmpty(parts), "; ")
}

// formatCohesionFeedback compresses a CohesionResult into a single line,
// surfacing the summary plus at most the first three issues.
func formatCohesionFeedback(r agents.CohesionResult) string {
	parts := []string{r.Summary}
	issues := r.Issues
	if len(issues) > 3 {
		issues = issues[:3]
	}
	for _, i := range issues {
		parts = append(parts, "issue: "+i)
	}
	return strings.Join(nonEmpty(parts), "; ")
}

func nonEmpty(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

var quoteWordPattern = regexp.MustCompile(`\s+`)

// quoteBank samples 8-25 word candidate quotes from source chunks, deduped
// and capped at 20, to discourage the drafter from inventing quotes during
// revision.
func quoteBank(chunks []SourceChunkWithCitation) string {
	seen := map[string]bool{}
	var quotes []string
	for i, c := range chunks {
		if i >= 12 || len(quotes) >= 20 {
			break
		}
		citation := c.Citation
		if citation == "" {
			citation = "Unknown Source"
		}
		for _, line := range strings.Split(c.Content, "\n") {
			q := strings.TrimSpace(line)
			if q == "" || strings.ContainsAny(q, `"“”`) {
				continue
			}
			words := quoteWordPattern.Split(q, -1)
			if len(words) < 8 || len(words) > 25 {
				continue
			}
			key := strings.ToLower(q)
			if seen[key] {
				continue
			}
			seen[key] = true
			quotes = append(quotes, fmt.Sprintf("(%s) %s", citation, q))
			if len(quotes) >= 20 {
				break
			}
		}
	}
	if len(quotes) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nQUOTE BANK (copy verbatim into citations; do not invent quotes):\n")
	for _, q := range quotes {
		fmt.Fprintf(&b, "- %s\n", q)
	}
	return b.String()
}

const revisionPromptTemplate = `You are revising a chapter that read like AI and contained unsupported content.

HARD CONSTRAINTS (must follow):
- Do NOT invent scenes, anecdotes, or autobiographical moments. If first-person, it must be grounded in the sources.
- Minimize headings: at most 3 level-2 headings for the entire chapter. Prefer longer paragraphs.
- Do NOT introduce named frameworks or acronym systems. Write naturally.
- Avoid em-dashes and double-hyphens. Prefer commas or periods.
- Every factual claim must be supported by the SOURCES below and include a citation in this exact format:
  [citation: filename.ext - "exact quote from source"]
- If a claim cannot be supported, remove it or mark it as needing research.
- CITED QUOTE TEXT MUST APPEAR IN THE PROSE: for every [citation: ... - "QUOTE"] marker, include that exact QUOTE verbatim in the paragraph prose.

VOICE GUIDANCE (match this):
%s

SOURCES (ground all content in these; quote directly when possible):
%s
%s

FEEDBACK:
%s

CURRENT CHAPTER:
%s

Return ONLY the revised chapter text. No preamble, no explanations.`

func revisionPrompt(voiceGuidance, sourcesBlock, quoteBank string, feedbackParts []string, currentChapter string) string {
	vg := voiceGuidance
	if vg == "" {
		vg = "(none provided)"
	}
	sb := sourcesBlock
	if sb == "" {
		sb = "(no sources provided)"
	}
	return fmt.Sprintf(revisionPromptTemplate, vg, sb, quoteBank, strings.Join(feedbackParts, "\n"), currentChapter)
}

// indexCitations maps each verified citation's quote to its position in
// the citation-free content_clean text, for UI highlighting.
func indexCitations(contentClean string, citations []domain.Citation) []domain.Citation {
	out := make([]domain.Citation, 0, len(citations))
	cursor := 0
	lowerClean := strings.ToLower(contentClean)
	for _, c := range citations {
		if c.Quote == "" {
			out = append(out, c)
			continue
		}
		idx := strings.Index(contentClean[cursor:], c.Quote)
		if idx == -1 {
			idx = strings.Index(lowerClean[cursor:], strings.ToLower(c.Quote))
		}
		if idx != -1 {
			c.QuoteStart = cursor + idx
			c.QuoteEnd = c.QuoteStart + len(c.Quote)
			cursor = c.QuoteEnd
		} else {
			c.QuoteStart = 0
			c.QuoteEnd = 0
		}
		out = append(out, c)
	}
	return out
}
