package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostline-hq/ghostline/domain"
	"github.com/ghostline-hq/ghostline/modelclient"
)

type stubProvider struct {
	name  string
	model string
	resp  string
}

func (p *stubProvider) Name() string  { return p.name }
func (p *stubProvider) Model() string { return p.model }
func (p *stubProvider) Generate(ctx context.Context, systemPrompt, userPrompt string, opts modelclient.Options) (modelclient.Result, error) {
	return modelclient.Result{Content: p.resp, InputTokens: 100, OutputTokens: 50}, nil
}

func clientWithResponse(resp string) *modelclient.Client {
	return modelclient.New(modelclient.Config{
		Primary: &stubProvider{name: "anthropic", model: "claude-sonnet-4-20250514", resp: resp},
	})
}

func TestPlanOutlineParsesStructuredOutline(t *testing.T) {
	resp := "```json\n" + `{"title":"T","premise":"P","themes":["a"],"target_audience":"general","chapters":[{"number":9,"title":"One","summary":"s","key_points":["k"],"estimated_words":2000}]}` + "\n```"
	agent := New(RoleOutlinePlanner, clientWithResponse(resp))

	out, outline, err := agent.PlanOutline(context.Background(), PlanOutlineInput{Title: "T", TargetChapters: 1})
	require.NoError(t, err)
	assert.Empty(t, out.Error)
	assert.Equal(t, "T", outline.Title)
	require.Len(t, outline.Chapters, 1)
	assert.Equal(t, 1, outline.Chapters[0].Number, "renumbered from 9 to 1")
	assert.Greater(t, out.EstimatedCost, 0.0)
}

func TestPlanOutlineOnUnparseableResponseReturnsError(t *testing.T) {
	agent := New(RoleOutlinePlanner, clientWithResponse("not json at all"))
	out, _, err := agent.PlanOutline(context.Background(), PlanOutlineInput{Title: "T", TargetChapters: 3})
	require.Error(t, err)
	assert.NotEmpty(t, out.Error)
	assert.Equal(t, 0.0, out.Confidence)
}

func TestCritiqueOutlineDefaultsToNotApprovedOnParseFailure(t *testing.T) {
	agent := New(RoleOutlineCritic, clientWithResponse("I think this looks fine!"))
	out, result, err := agent.CritiqueOutline(context.Background(), domain.Outline{Title: "T"})
	require.NoError(t, err)
	assert.False(t, result.Approved)
	assert.NotEmpty(t, result.Feedback)
	assert.NotEmpty(t, out.Error)
}

func TestCritiqueOutlineParsesApproval(t *testing.T) {
	resp := `{"approved": true, "feedback": []}`
	agent := New(RoleOutlineCritic, clientWithResponse(resp))
	_, result, err := agent.CritiqueOutline(context.Background(), domain.Outline{Title: "T"})
	require.NoError(t, err)
	assert.True(t, result.Approved)
	assert.Empty(t, result.Feedback)
}

func TestCheckFactsReturnsZeroScoreOnParseFailure(t *testing.T) {
	agent := New(RoleFactChecker, clientWithResponse("the facts look good trust me"))
	out, result, err := agent.CheckFacts(context.Background(), "chapter content", "source excerpt")
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.AccuracyScore)
	assert.NotEmpty(t, result.Findings)
	assert.NotEmpty(t, out.Error)
}

func TestCheckFactsParsesAccuracyScore(t *testing.T) {
	resp := `{"accuracy_score": 0.92, "summary": "mostly accurate", "findings": [], "unsupported_claims": [], "low_confidence_citations": [], "claim_mappings": []}`
	agent := New(RoleFactChecker, clientWithResponse(resp))
	out, result, err := agent.CheckFacts(context.Background(), "chapter content", "source excerpt")
	require.NoError(t, err)
	assert.Equal(t, 0.92, result.AccuracyScore)
	assert.Equal(t, 0.92, out.Confidence)
}

func TestCheckCohesionDefaultsToNeutralOnParseFailure(t *testing.T) {
	agent := New(RoleCohesionAnalyst, clientWithResponse("flows nicely overall"))
	_, result, err := agent.CheckCohesion(context.Background(), "content", nil, "")
	require.NoError(t, err)
	assert.Equal(t, 0.5, result.CohesionScore)
	assert.Equal(t, "Could not parse results", result.Summary)
}

func TestDraftChapterReturnsRawContent(t *testing.T) {
	agent := New(RoleContentDrafter, clientWithResponse("Chapter text with [citation: notes.txt - \"a quote\"]."))
	out, err := agent.DraftChapter(context.Background(), DraftChapterInput{
		ChapterOutline: domain.OutlineChapter{Number: 1, Title: "Intro"},
		SourceContext:  "---\nnotes.txt\na quote\n---",
		TargetWords:    500,
	})
	require.NoError(t, err)
	assert.Contains(t, out.Content, "[citation: notes.txt")
}

func TestEditForVoiceReturnsEditedContent(t *testing.T) {
	agent := New(RoleVoiceEditor, clientWithResponse("edited prose"))
	out, err := agent.EditForVoice(context.Background(), EditForVoiceInput{
		Content:             "original prose",
		VoiceSamples:        []string{"sample one"},
		SimilarityThreshold: 0.7,
		EmbeddingWeight:     0.4,
	})
	require.NoError(t, err)
	assert.Equal(t, "edited prose", out.Content)
}

type stubEmbedder struct{ vec []float32 }

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.vec, nil
}
func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, nil
}

func TestBuildVoiceProfileCombinesLLMAndDeterministicFeatures(t *testing.T) {
	resp := `{"common_phrases": ["in short"], "sentence_starters": ["Consider"], "transition_words": ["however"], "style_description": "plainspoken"}`
	agent := New(RoleVoiceAnalyst, clientWithResponse(resp))
	emb := &stubEmbedder{vec: []float32{0.1, 0.2, 0.3}}

	out, profile, err := agent.BuildVoiceProfile(context.Background(), "proj-1", []string{"Sample one. Sample two."}, emb)
	require.NoError(t, err)
	assert.Equal(t, "proj-1", profile.ProjectID)
	assert.Equal(t, []string{"in short"}, profile.CommonPhrases)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, profile.Embedding)
	assert.NotZero(t, profile.Stylometry.AvgSentenceLength)
	assert.Equal(t, "plainspoken", out.StructuredData["style_description"])
}
