package outline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostline-hq/ghostline/agents"
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

const outlineJSON = `{"title":"T","premise":"P","themes":["a"],"target_audience":"general","chapters":[{"number":1,"title":"One","summary":"s1","key_points":[],"estimated_words":2000},{"number":2,"title":"Two","summary":"s2","key_points":[],"estimated_words":2000},{"number":3,"title":"Three","summary":"s3","key_points":[],"estimated_words":2000}]}`

func TestRunApprovesOnFirstCritique(t *testing.T) {
	planner := agentFromResponses(agents.RoleOutlinePlanner, outlineJSON)
	critic := agentFromResponses(agents.RoleOutlineCritic, `{"approved": true, "feedback": []}`)

	sg := New(planner, critic, DefaultBounds(), nil)
	result, err := sg.Run(context.Background(), "t1", nil, State{Title: "T", TargetChapters: 3})
	require.NoError(t, err)
	assert.True(t, result.Approved)
	require.NotNil(t, result.CurrentOutline)
	assert.Len(t, result.CurrentOutline.Chapters, 3)
}

func TestRunLoopsThroughRefineUntilApproved(t *testing.T) {
	planner := agentFromResponses(agents.RoleOutlinePlanner, outlineJSON, outlineJSON)
	critic := agentFromResponses(agents.RoleOutlineCritic,
		`{"approved": false, "feedback": ["add more detail"]}`,
		`{"approved": true, "feedback": []}`,
	)

	sg := New(planner, critic, DefaultBounds(), nil)
	result, err := sg.Run(context.Background(), "t2", nil, State{Title: "T", TargetChapters: 3})
	require.NoError(t, err)
	assert.True(t, result.Approved)
	assert.Equal(t, 1, result.Iteration)
}

func TestRunStopsAtMaxTurnsWhenNeverApproved(t *testing.T) {
	planner := agentFromResponses(agents.RoleOutlinePlanner, outlineJSON)
	critic := agentFromResponses(agents.RoleOutlineCritic, `{"approved": false, "feedback": ["still not good enough"]}`)

	bounds := Bounds{MaxTurns: 2, MaxTokens: 10000, MaxCost: 1.0}
	sg := New(planner, critic, bounds, nil)
	result, err := sg.Run(context.Background(), "t3", nil, State{Title: "T", TargetChapters: 3})
	require.NoError(t, err)
	assert.False(t, result.Approved)
	assert.GreaterOrEqual(t, result.Iteration, bounds.MaxTurns)
}

func TestTrimTruncatesChaptersToTargetAndRenumbers(t *testing.T) {
	planner := agentFromResponses(agents.RoleOutlinePlanner, outlineJSON)
	critic := agentFromResponses(agents.RoleOutlineCritic, `{"approved": true, "feedback": []}`)

	sg := New(planner, critic, DefaultBounds(), nil)
	result, err := sg.Run(context.Background(), "t4", nil, State{Title: "T", TargetChapters: 2})
	require.NoError(t, err)
	require.NotNil(t, result.CurrentOutline)
	require.Len(t, result.CurrentOutline.Chapters, 2)
	assert.Equal(t, 1, result.CurrentOutline.Chapters[0].Number)
	assert.Equal(t, 2, result.CurrentOutline.Chapters[1].Number)
}
