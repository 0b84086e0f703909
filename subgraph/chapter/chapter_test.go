package chapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostline-hq/ghostline/agents"
	"github.com/ghostline-hq/ghostline/domain"
	"github.com/ghostline-hq/ghostline/modelclient"
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

const cleanDraft = `This chapter explores the topic in depth. [citation: notes.txt - "the quick brown fox jumps over"] The quick brown fox jumps over the lazy dog near the river.`

func baseState() State {
	return State{
		ChapterOutline: domain.OutlineChapter{Number: 1, Title: "Intro", Summary: "s", EstimatedWords: 500},
		SourceChunksWithCitations: []SourceChunkWithCitation{
			{Citation: "notes.txt", Content: "the quick brown fox jumps over the lazy dog near the river"},
		},
		TargetWords: 500,
	}
}

func TestRunFinalizesImmediatelyWhenAllGatesPass(t *testing.T) {
	drafter := agentFromResponses(agents.RoleContentDrafter, cleanDraft)
	voiceEdit := agentFromResponses(agents.RoleVoiceEditor, cleanDraft)
	factCheck := agentFromResponses(agents.RoleFactChecker, `{"accuracy_score": 0.95, "summary": "accurate", "findings": [], "unsupported_claims": [], "low_confidence_citations": [], "claim_mappings": []}`)
	cohesion := agentFromResponses(agents.RoleCohesionAnalyst, `{"cohesion_score": 0.8, "issues": [], "strengths": [], "summary": "flows well"}`)

	sg := New(drafter, voiceEdit, factCheck, cohesion, nil, DefaultThresholds(), DefaultBounds(), nil)
	result, err := sg.Run(context.Background(), "c1", nil, baseState())
	require.NoError(t, err)

	assert.NotEmpty(t, result.FinalContent)
	assert.NotContains(t, result.ContentClean, "[citation:")
	assert.Equal(t, 0.95, result.FactScore)
	assert.Equal(t, 0.8, result.CohesionScore)
}

func TestRunRevisesWhenFactScoreBelowThreshold(t *testing.T) {
	drafter := agentFromResponses(agents.RoleContentDrafter, cleanDraft, cleanDraft)
	voiceEdit := agentFromResponses(agents.RoleVoiceEditor, cleanDraft, cleanDraft)
	factCheck := agentFromResponses(agents.RoleFactChecker,
		`{"accuracy_score": 0.5, "summary": "weak sourcing", "findings": [], "unsupported_claims": ["claim X"], "low_confidence_citations": [], "claim_mappings": []}`,
		`{"accuracy_score": 0.95, "summary": "accurate", "findings": [], "unsupported_claims": [], "low_confidence_citations": [], "claim_mappings": []}`,
	)
	cohesion := agentFromResponses(agents.RoleCohesionAnalyst, `{"cohesion_score": 0.8, "issues": [], "strengths": [], "summary": "flows well"}`)

	bounds := Bounds{MaxTurns: 5, MaxTokens: 10000, MaxCost: 1.0}
	sg := New(drafter, voiceEdit, factCheck, cohesion, nil, DefaultThresholds(), bounds, nil)
	result, err := sg.Run(context.Background(), "c2", nil, baseState())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Iteration)
	assert.Equal(t, 0.95, result.FactScore)
	assert.True(t, result.QualityGatesPassed)
}

func TestRunStopsAtMaxTurnsWithoutPassingGates(t *testing.T) {
	drafter := agentFromResponses(agents.RoleContentDrafter, "no citations at all here")
	voiceEdit := agentFromResponses(agents.RoleVoiceEditor, "no citations at all here")
	factCheck := agentFromResponses(agents.RoleFactChecker, `{"accuracy_score": 0.2, "summary": "poor", "findings": [], "unsupported_claims": ["x"], "low_confidence_citations": [], "claim_mappings": []}`)
	cohesion := agentFromResponses(agents.RoleCohesionAnalyst, `{"cohesion_score": 0.8, "issues": [], "strengths": [], "summary": "ok"}`)

	bounds := Bounds{MaxTurns: 2, MaxTokens: 10000, MaxCost: 1.0}
	sg := New(drafter, voiceEdit, factCheck, cohesion, nil, DefaultThresholds(), bounds, nil)
	result, err := sg.Run(context.Background(), "c3", nil, baseState())
	require.NoError(t, err)

	assert.Equal(t, bounds.MaxTurns, result.Iteration)
	assert.False(t, result.QualityGatesPassed)
}

func TestFinalizeStripsCitationMarkersFromContentClean(t *testing.T) {
	drafter := agentFromResponses(agents.RoleContentDrafter, cleanDraft)
	voiceEdit := agentFromResponses(agents.RoleVoiceEditor, cleanDraft)
	factCheck := agentFromResponses(agents.RoleFactChecker, `{"accuracy_score": 0.95, "summary": "accurate", "findings": [], "unsupported_claims": [], "low_confidence_citations": [], "claim_mappings": []}`)
	cohesion := agentFromResponses(agents.RoleCohesionAnalyst, `{"cohesion_score": 0.8, "issues": [], "strengths": [], "summary": "flows well"}`)

	sg := New(drafter, voiceEdit, factCheck, cohesion, nil, DefaultThresholds(), DefaultBounds(), nil)
	result, err := sg.Run(context.Background(), "c4", nil, baseState())
	require.NoError(t, err)

	require.Len(t, result.Citations, 1)
	assert.True(t, result.Citations[0].Verified)
	assert.Contains(t, result.ContentClean, "the quick brown fox jumps over the lazy dog")
}

func TestQuoteBankFiltersWordCountAndDedupes(t *testing.T) {
	chunks := []SourceChunkWithCitation{
		{Citation: "a.txt", Content: "too short\nthis line has exactly eight good words here\nthis line has exactly eight good words here"},
	}
	bank := quoteBank(chunks)
	assert.Contains(t, bank, "this line has exactly eight good words here")
	assert.Equal(t, 1, countOccurrences(bank, "this line has exactly eight good words here"))
}

func countOccurrences(s, substr string) int {
	count := 0
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			count++
		}
	}
	return count
}
