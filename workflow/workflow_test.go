package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostline-hq/ghostline/agents"
	"github.com/ghostline-hq/ghostline/domain"
	"github.com/ghostline-hq/ghostline/modelclient"
	"github.com/ghostline-hq/ghostline/safety"
	"github.com/ghostline-hq/ghostline/subgraph/chapter"
	"github.com/ghostline-hq/ghostline/subgraph/outline"
)

type scriptedProvider struct {
	name      string
	model     string
	responses []string
	calls     int
}

func (p *scriptedProvider) Name() string  { return p.name }
func (p *scriptedProvider) Model() string { return p.model }
func (p *scriptedProvider) Generate(ctx context.Context, systemPrompt, userPrompt string, opts modelclient.Options) (modelclient.Result, error) {
	resp := p.responses[p.calls]
	if p.calls < len(p.responses)-1 {
		p.calls++
	}
	return modelclient.Result{Content: resp, InputTokens: 50, OutputTokens: 50}, nil
}

func agentFromResponses(role agents.Role, responses ...string) *agents.Agent {
	client := modelclient.New(modelclient.Config{
		Primary: &scriptedProvider{name: "anthropic", model: "claude-sonnet-4-20250514", responses: responses},
	})
	return agents.New(role, client)
}

type stubSourceProvider struct {
	summaries []string
}

func (s *stubSourceProvider) Summaries(ctx context.Context, projectID string, ids []string) ([]string, error) {
	return s.summaries, nil
}
func (s *stubSourceProvider) VoiceProfile(ctx context.Context, projectID string) (*domain.VoiceProfile, error) {
	return nil, nil
}

const outlineJSON = `{"title":"T","premise":"P","themes":["a"],"target_audience":"general","chapters":[{"number":1,"title":"One","summary":"s1","key_points":[],"estimated_words":500},{"number":2,"title":"Two","summary":"s2","key_points":[],"estimated_words":500}]}`

const cleanChapter = `This chapter explores the topic. [citation: notes.txt - "the quick brown fox jumps over"] The quick brown fox jumps over the lazy dog near the river.`

func newTestOrchestrator() *Orchestrator {
	planner := agentFromResponses(agents.RoleOutlinePlanner, outlineJSON)
	critic := agentFromResponses(agents.RoleOutlineCritic, `{"approved": true, "feedback": []}`)
	outlineSG := outline.New(planner, critic, outline.DefaultBounds(), nil)

	drafter := agentFromResponses(agents.RoleContentDrafter, cleanChapter, cleanChapter)
	voiceEdit := agentFromResponses(agents.RoleVoiceEditor, cleanChapter, cleanChapter)
	factCheck := agentFromResponses(agents.RoleFactChecker, `{"accuracy_score": 0.95, "summary": "accurate", "findings": [], "unsupported_claims": [], "low_confidence_citations": [], "claim_mappings": []}`)
	cohesion := agentFromResponses(agents.RoleCohesionAnalyst, `{"cohesion_score": 0.8, "issues": [], "strengths": [], "summary": "flows"}`)
	chapterSG := chapter.New(drafter, voiceEdit, factCheck, cohesion, nil, chapter.DefaultThresholds(), chapter.DefaultBounds(), nil)

	screener := safety.New(false)

	return New(outlineSG, chapterSG, nil, screener, &stubSourceProvider{summaries: []string{"Source: notes.txt\nsome summary"}}, false, nil)
}

func TestStartPausesAtApprovalGate(t *testing.T) {
	o := newTestOrchestrator()
	state := &domain.WorkflowState{WorkflowID: "w1", ProjectID: "p1", Title: "T", TargetChapters: 2}

	result, err := o.Start(context.Background(), nil, state)
	require.True(t, IsInterrupted(err))
	assert.Equal(t, domain.PhaseOutlineReview, result.Phase)
	assert.Equal(t, "approve_outline", result.PendingUserAction)
	assert.Equal(t, 30, result.Progress)
	require.NotNil(t, result.Outline)
	assert.Len(t, result.Outline.Chapters, 2)
}

func TestResumeNotApprovedStaysPaused(t *testing.T) {
	o := newTestOrchestrator()
	state := &domain.WorkflowState{WorkflowID: "w2", ProjectID: "p1", Title: "T", TargetChapters: 2}
	result, err := o.Start(context.Background(), nil, state)
	require.True(t, IsInterrupted(err))

	result, err = o.Resume(context.Background(), nil, result, false, []string{"needs more detail"})
	require.NoError(t, err)
	assert.False(t, result.OutlineApproved)
	assert.Contains(t, result.UserFeedback, "needs more detail")
	assert.Equal(t, domain.PhaseOutlineReview, result.Phase)
}

func TestResumeApprovedDraftsAllChaptersAndCompletes(t *testing.T) {
	o := newTestOrchestrator()
	state := &domain.WorkflowState{WorkflowID: "w3", ProjectID: "p1", Title: "T", TargetChapters: 2, TargetWordsPerChapter: 500}
	paused, err := o.Start(context.Background(), nil, state)
	require.True(t, IsInterrupted(err))

	final, err := o.Resume(context.Background(), nil, paused, true, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.PhaseCompleted, final.Phase)
	assert.Equal(t, 100, final.Progress)
	require.Len(t, final.Chapters, 2)
	assert.True(t, final.SafetyPassed)
	require.Len(t, final.ChapterCanon, 2)
	assert.Equal(t, 1, final.ChapterCanon[0].ChapterNumber)
}

func TestDraftChapterProgressRoundsPerSpecFormula(t *testing.T) {
	o := newTestOrchestrator()
	state := &domain.WorkflowState{
		WorkflowID: "w4",
		Outline:    &domain.Outline{Chapters: []domain.OutlineChapter{{Number: 1}, {Number: 2}, {Number: 3}}},
	}
	label, err := o.draftChapterNode(context.Background(), state)
	require.NoError(t, err)
	assert.Equal(t, "more", label)
	assert.Equal(t, 50, state.Progress) // 30 + 60*(1/3) = 50
}
