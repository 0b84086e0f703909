// Package workflow implements WorkflowOrchestrator (C11): the outer
// pausable state machine over domain.WorkflowState that sequences ingest,
// voice-profile lookup, OutlineSubgraph, a human-approval interrupt gate,
// the per-chapter ChapterSubgraph loop, SafetyScreener, and finalization.
//
// Grounded on original_source/.../agents/orchestrator/workflow.py's
// BookGenerationWorkflow (ingest_sources/embed_sources/generate_outline/
// request_approval/draft_chapter node bodies and their progress/phase
// assignments), run as an enginelite.Graph[domain.WorkflowState] with
// SetInterruptBefore at the approval gate instead of the original's
// LangGraph interrupt_before compile option.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/ghostline-hq/ghostline/domain"
	"github.com/ghostline-hq/ghostline/enginelite"
	"github.com/ghostline-hq/ghostline/logging"
	"github.com/ghostline-hq/ghostline/retrieval"
	"github.com/ghostline-hq/ghostline/safety"
	"github.com/ghostline-hq/ghostline/subgraph/chapter"
	"github.com/ghostline-hq/ghostline/subgraph/outline"
)

const waitForApprovalGate = "wait_for_approval"

// SourceProvider resolves the ingestion-pipeline outputs WorkflowOrchestrator
// consumes read-only: per-file summaries for outline generation and the
// project's voice profile (if one has been built). Both are owned by
// collaborator systems out of this module's scope; this is the narrow seam
// the orchestrator depends on instead of a database session, per
// SPEC_FULL.md section 9's dependency-injection translation note.
type SourceProvider interface {
	Summaries(ctx context.Context, projectID string, sourceMaterialIDs []string) ([]string, error)
	VoiceProfile(ctx context.Context, projectID string) (*domain.VoiceProfile, error)
}

// Orchestrator is the WorkflowOrchestrator capability (C11).
type Orchestrator struct {
	outlineSG  *outline.Subgraph
	chapterSG  *chapter.Subgraph
	retriever  *retrieval.Retriever
	screener   *safety.Screener
	sources    SourceProvider
	strictMode bool
	log        logging.Logger
}

// New constructs an Orchestrator. strictMode disables placeholders and
// makes chapter-drafting failures fatal, per spec section 4.2/4.11.
func New(outlineSG *outline.Subgraph, chapterSG *chapter.Subgraph, retriever *retrieval.Retriever, screener *safety.Screener, sources SourceProvider, strictMode bool, log logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.NoOp{}
	}
	return &Orchestrator{
		outlineSG:  outlineSG,
		chapterSG:  chapterSG,
		retriever:  retriever,
		screener:   screener,
		sources:    sources,
		strictMode: strictMode,
		log:        log.With("workflow_orchestrator"),
	}
}

func (o *Orchestrator) graph() *enginelite.Graph[domain.WorkflowState] {
	g := enginelite.New[domain.WorkflowState]("ingest")
	g.AddNode("ingest", o.ingestNode)
	g.AddNode("embed", o.embedNode)
	g.AddNode("generate_outline", o.generateOutlineNode)
	g.AddNode("request_approval", o.requestApprovalNode)
	g.AddNode("draft_chapter", o.draftChapterNode)
	g.AddNode("safety_check", o.safetyCheckNode)
	g.AddNode("finalize", o.finalizeNode)
	g.AddNode("complete", o.completeNode)

	g.AddEdge("ingest", "embed")
	g.AddEdge("embed", "generate_outline")
	g.AddEdge("generate_outline", "request_approval")
	g.AddEdge("request_approval", waitForApprovalGate)
	g.SetInterruptBefore(waitForApprovalGate)
	// wait_for_approval has no node function: Resume names "draft_chapter"
	// directly once the caller has recorded the approval decision, so the
	// gate is never re-entered as a node lookup (see Resume below).
	g.AddConditionalEdge("draft_chapter", map[string]string{"more": "draft_chapter", "done": "safety_check"})
	g.AddEdge("safety_check", "finalize")
	g.AddEdge("finalize", "complete")
	g.AddEdge("complete", enginelite.END)
	return g
}

// Start runs the workflow from the beginning through the approval
// interrupt gate. A normal pause leaves phase=outline_review and
// pending_user_action="approve_outline" and returns ErrInterrupted, so
// callers (TaskRunner) can distinguish a pause from a clean completion
// without inspecting state.
func (o *Orchestrator) Start(ctx context.Context, store enginelite.CheckpointStore, state *domain.WorkflowState) (*domain.WorkflowState, error) {
	runner := enginelite.NewRunner(o.graph(), store, state.WorkflowID, o.log)
	return runner.Start(ctx, state)
}

// Resume implements spec section 4.11's resume(workflow_id, user_input):
// it records the approval decision and feedback, then either continues
// into the chapter-drafting loop (approved) or leaves the workflow paused
// at the approval gate (not approved), matching the graph's "not approved
// -> END (still paused)" branch.
func (o *Orchestrator) Resume(ctx context.Context, store enginelite.CheckpointStore, state *domain.WorkflowState, approved bool, feedback []string) (*domain.WorkflowState, error) {
	state.UserFeedback = append(state.UserFeedback, feedback...)
	state.OutlineApproved = approved
	if !approved {
		return state, nil
	}
	state.PendingUserAction = ""
	runner := enginelite.NewRunner(o.graph(), store, state.WorkflowID, o.log)
	return runner.Resume(ctx, state, "draft_chapter")
}

func (o *Orchestrator) ingestNode(ctx context.Context, st *domain.WorkflowState) (string, error) {
	st.Phase = domain.PhaseIngest
	st.Progress = 5

	if len(st.SourceSummaries) > 0 {
		o.log.Info("ingest skipped for %s: summaries already present", st.WorkflowID)
		return "", nil
	}
	if o.sources == nil {
		return "", nil
	}
	summaries, err := o.sources.Summaries(ctx, st.ProjectID, nil)
	if err != nil {
		if o.strictMode {
			return "", fmt.Errorf("ingest failed in strict mode: %w", err)
		}
		o.log.Warn("ingest failed, continuing with no summaries: %v", err)
		return "", nil
	}
	st.SourceSummaries = summaries
	return "", nil
}

func (o *Orchestrator) embedNode(ctx context.Context, st *domain.WorkflowState) (string, error) {
	st.Phase = domain.PhaseEmbed
	st.Progress = 15

	if st.VoiceProfile != nil || o.sources == nil {
		return "", nil
	}
	vp, err := o.sources.VoiceProfile(ctx, st.ProjectID)
	if err != nil {
		if o.strictMode {
			return "", fmt.Errorf("voice profile lookup failed in strict mode: %w", err)
		}
		o.log.Warn("voice profile lookup failed, continuing without one: %v", err)
		return "", nil
	}
	st.VoiceProfile = vp
	return "", nil
}

func (o *Orchestrator) generateOutlineNode(ctx context.Context, st *domain.WorkflowState) (string, error) {
	st.Phase = domain.PhaseOutlining
	st.Progress = 25

	voiceGuidance := ""
	if st.VoiceProfile != nil {
		voiceGuidance = strings.Join(st.VoiceProfile.CommonPhrases, ", ")
	}

	result, err := o.outlineSG.Run(ctx, st.WorkflowID+":outline", nil, outline.State{
		SourceSummaries: st.SourceSummaries,
		Title:           st.Title,
		Description:     st.Description,
		TargetChapters:  st.TargetChapters,
		VoiceGuidance:   voiceGuidance,
	})
	st.TotalTokens += result.TokensUsed
	st.TotalCost += result.CostIncurred
	if err != nil {
		if o.strictMode {
			return "", fmt.Errorf("outline generation failed in strict mode: %w", err)
		}
		st.Error = err.Error()
		return "", nil
	}
	st.Outline = result.CurrentOutline
	return "", nil
}

func (o *Orchestrator) requestApprovalNode(ctx context.Context, st *domain.WorkflowState) (string, error) {
	st.Phase = domain.PhaseOutlineReview
	st.PendingUserAction = "approve_outline"
	st.Progress = 30
	return "", nil
}

// draftChapterNode drafts exactly one chapter per invocation (the next one
// past len(state.Chapters)) and loops back to itself via the conditional
// edge until every outline chapter has a finished domain.Chapter, per spec
// section 4.11's draft_chapter/edit_chapter/review_chapter contract —
// ChapterSubgraph owns the edit/review steps internally (see DESIGN.md).
func (o *Orchestrator) draftChapterNode(ctx context.Context, st *domain.WorkflowState) (string, error) {
	st.Phase = domain.PhaseDrafting

	if st.Outline == nil || len(st.Chapters) >= len(st.Outline.Chapters) {
		return "done", nil
	}
	idx := len(st.Chapters)
	chapterOutline := st.Outline.Chapters[idx]

	query := chapterQuery(st, chapterOutline)
	var chunksWithCitations []chapter.SourceChunkWithCitation
	if o.retriever != nil {
		rag, err := o.retriever.Retrieve(ctx, query, st.ProjectID, 20, 0.2, 0)
		if err != nil {
			if o.strictMode {
				return "", fmt.Errorf("retrieval failed in strict mode for chapter %d: %w", chapterOutline.Number, err)
			}
			o.log.Warn("retrieval failed for chapter %d, drafting without sources: %v", chapterOutline.Number, err)
		} else {
			for _, rc := range rag.Chunks {
				chunksWithCitations = append(chunksWithCitations, chapter.SourceChunkWithCitation{
					Citation: rc.Chunk.Filename,
					Content:  rc.Chunk.Content,
				})
			}
		}
	}

	targetWords := st.TargetWordsPerChapter
	if targetWords <= 0 {
		targetWords = chapterOutline.EstimatedWords
	}

	result, err := o.chapterSG.Run(ctx, fmt.Sprintf("%s:chapter:%d", st.WorkflowID, chapterOutline.Number), nil, chapter.State{
		ChapterOutline:            chapterOutline,
		SourceChunksWithCitations: chunksWithCitations,
		PreviousSummaries:         lastN(st.ChapterSummaries, 3),
		PreviousCanon:             lastCanon(st.ChapterCanon, 3),
		VoiceProfile:              st.VoiceProfile,
		TargetWords:               targetWords,
	})
	st.TotalTokens += result.TokensUsed
	st.TotalCost += result.CostIncurred
	if err != nil {
		st.Error = err.Error()
		if o.strictMode {
			return "", fmt.Errorf("chapter %d drafting failed in strict mode: %w", chapterOutline.Number, err)
		}
	}

	ch := domain.Chapter{
		Number:             chapterOutline.Number,
		Title:              chapterOutline.Title,
		ContentRaw:         result.FinalContent,
		ContentClean:       result.ContentClean,
		WordCount:          len(strings.Fields(result.ContentClean)),
		VoiceScore:         result.VoiceScore,
		FactScore:          result.FactScore,
		CohesionScore:      result.CohesionScore,
		Citations:          result.Citations,
		CitationReport:     result.CitationReport,
		QualityGatesPassed: result.QualityGatesPassed,
		QualityGateReport:  result.QualityGateReport,
		RevisionHistory:    result.RevisionHistory,
	}
	st.Chapters = append(st.Chapters, ch)
	st.ChapterSummaries = append(st.ChapterSummaries, summarize(result.ContentClean))
	st.ChapterCanon = append(st.ChapterCanon, buildCanonBlock(chapterOutline, result))

	total := len(st.Outline.Chapters)
	current := len(st.Chapters)
	st.Progress = int(math.Round(30 + 60*float64(current)/float64(total)))

	if o.strictMode && !result.QualityGatesPassed {
		return "", fmt.Errorf("chapter %d exhausted revisions without passing quality gates: %w", chapterOutline.Number, ErrQualityGateFailed)
	}

	if current >= total {
		return "done", nil
	}
	return "more", nil
}

func (o *Orchestrator) safetyCheckNode(ctx context.Context, st *domain.WorkflowState) (string, error) {
	st.Phase = domain.PhaseSafetyCheck
	st.Progress = 92

	defer func() {
		if r := recover(); r != nil {
			o.log.Warn("safety screening panicked, defaulting to passed: %v", r)
			st.SafetyPassed = true
		}
	}()

	if o.screener == nil {
		st.SafetyPassed = true
		return "", nil
	}

	var all strings.Builder
	for _, ch := range st.Chapters {
		all.WriteString(ch.ContentClean)
		all.WriteString("\n\n")
	}

	result := o.screener.CheckContent(all.String())
	st.SafetyPassed = result.IsSafe
	for _, f := range result.Findings {
		st.SafetyFindings = append(st.SafetyFindings, string(f.Flag)+": "+f.Recommendation)
	}
	st.SuggestedDisclaimer = result.SuggestedDisclaimer
	return "", nil
}

func (o *Orchestrator) finalizeNode(ctx context.Context, st *domain.WorkflowState) (string, error) {
	st.Phase = domain.PhaseFinalize
	st.Progress = 95
	return "", nil
}

func (o *Orchestrator) completeNode(ctx context.Context, st *domain.WorkflowState) (string, error) {
	st.Phase = domain.PhaseCompleted
	st.Progress = 100
	return "", nil
}

func chapterQuery(st *domain.WorkflowState, ch domain.OutlineChapter) string {
	parts := []string{st.Title, st.Description, ch.Title, ch.Summary}
	parts = append(parts, ch.KeyPoints...)
	return strings.Join(nonEmptyStrings(parts), ". ")
}

func nonEmptyStrings(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func lastN(ss []string, n int) []string {
	if len(ss) <= n {
		return ss
	}
	return ss[len(ss)-n:]
}

func lastCanon(cs []domain.CanonBlock, n int) []domain.CanonBlock {
	if len(cs) <= n {
		return cs
	}
	return cs[len(cs)-n:]
}

// summarize builds the lightweight per-chapter summary fed to the next
// chapter's CohesionAnalyst call, grounded on workflow.py's practice of
// carrying forward chapter content rather than a separate summarizer call.
func summarize(content string) string {
	const maxChars = 500
	content = strings.TrimSpace(content)
	if len(content) <= maxChars {
		return content
	}
	return content[:maxChars]
}

// buildCanonBlock distills a finished chapter into the grounded-memory
// record fed forward to later chapters' drafters, grounded on
// workflow.py's _build_chapter_canon (supported/needs_review/unsupported
// split by domain.ClaimMapping.IsSupported/NeedsHumanReview).
func buildCanonBlock(outlineCh domain.OutlineChapter, result chapter.State) domain.CanonBlock {
	var supported, needsReview, unsupported []string
	for _, m := range result.ClaimMappings {
		switch {
		case m.NeedsHumanReview:
			needsReview = append(needsReview, m.Claim)
		case m.IsSupported:
			supported = append(supported, m.Claim)
		default:
			unsupported = append(unsupported, m.Claim)
		}
	}

	return domain.CanonBlock{
		ChapterNumber:       outlineCh.Number,
		Title:               outlineCh.Title,
		OutlineSummary:      outlineCh.Summary,
		KeyPoints:           outlineCh.KeyPoints,
		GroundedCommitments: firstN(supported, 8),
		NeedsReview:         firstN(needsReview, 5),
		Unsupported:         firstN(unsupported, 5),
		CitationsOK:         result.QualityGateReport.CitationsOK,
		StyleIssues:         result.QualityGateReport.StyleIssues,
	}
}

func firstN(ss []string, n int) []string {
	if len(ss) <= n {
		return ss
	}
	return ss[:n]
}

// ErrInterrupted re-exports enginelite.ErrInterrupted for callers that only
// import workflow, so TaskRunner can branch on a paused run without also
// importing enginelite.
var ErrInterrupted = enginelite.ErrInterrupted

// IsInterrupted reports whether err is (or wraps) the approval-gate pause.
func IsInterrupted(err error) bool {
	return errors.Is(err, ErrInterrupted)
}

// ErrQualityGateFailed marks a strict-mode chapter drafting failure caused
// by exhausting ChapterSubgraph's revision budget without passing its
// quality gates, as opposed to an underlying agent/provider error —
// callers (cmd/ghostlinectl) use this to pick spec section 6's exit code
// 2 ("strict-mode quality-gate failure") over its exit code 3
// ("strict-mode agent/provider failure").
var ErrQualityGateFailed = errors.New("workflow: chapter failed quality gates in strict mode")

// IsQualityGateFailure reports whether err is (or wraps) ErrQualityGateFailed.
func IsQualityGateFailure(err error) bool {
	return errors.Is(err, ErrQualityGateFailed)
}
