// Package outline implements OutlineSubgraph (C9): a bounded
// Planner↔Critic loop that produces an approved book Outline. Grounded on
// original_source/.../agents/orchestrator/subgraphs.py's OutlineSubgraph
// (_plan_node/_critique_node/_refine_node/_should_refine, the
// max_turns=5/max_tokens=10000/max_cost=1.0 SubgraphConfig defaults), run
// as an enginelite.Graph[OutlineState] instead of the original's LangGraph
// StateGraph.
package outline

import (
	"context"

	"github.com/ghostline-hq/ghostline/agents"
	"github.com/ghostline-hq/ghostline/domain"
	"github.com/ghostline-hq/ghostline/enginelite"
	"github.com/ghostline-hq/ghostline/logging"
)

// Bounds caps the Planner↔Critic loop, grounded verbatim on the teacher's
// SubgraphConfig defaults (max_turns=5, max_tokens=10000, max_cost=1.0).
type Bounds struct {
	MaxTurns  int
	MaxTokens int
	MaxCost   float64
}

// DefaultBounds matches original_source's SubgraphConfig defaults.
func DefaultBounds() Bounds {
	return Bounds{MaxTurns: 5, MaxTokens: 10000, MaxCost: 1.0}
}

// State is OutlineState from spec section 4.9.
type State struct {
	SourceSummaries []string        `json:"source_summaries"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	TargetChapters  int             `json:"target_chapters"`
	VoiceGuidance   string          `json:"voice_guidance"`
	CurrentOutline  *domain.Outline `json:"current_outline,omitempty"`
	Iteration       int             `json:"iteration"`
	Feedback        []string        `json:"feedback"`
	Approved        bool            `json:"approved"`
	TokensUsed      int             `json:"tokens_used"`
	CostIncurred    float64         `json:"cost_incurred"`
	Turns           int             `json:"turns"`
}

// Subgraph runs the Planner↔Critic loop.
type Subgraph struct {
	planner *agents.Agent
	critic  *agents.Agent
	bounds  Bounds
	log     logging.Logger
}

// New constructs a Subgraph. planner and critic must already be configured
// with agents.RoleOutlinePlanner / agents.RoleOutlineCritic.
func New(planner, critic *agents.Agent, bounds Bounds, log logging.Logger) *Subgraph {
	if log == nil {
		log = logging.NoOp{}
	}
	return &Subgraph{planner: planner, critic: critic, bounds: bounds, log: log.With("outline_subgraph")}
}

// Run executes START → plan → critique → [refine → critique]* → END and
// trims the resulting outline to target_chapters, renumbered 1..N.
func (s *Subgraph) Run(ctx context.Context, threadID string, store enginelite.CheckpointStore, in State) (State, error) {
	g := enginelite.New[State]("plan")
	g.AddNode("plan", s.planNode)
	g.AddNode("critique", s.critiqueNode)
	g.AddNode("refine", s.refineNode)
	g.AddEdge("plan", "critique")
	g.AddConditionalEdge("critique", map[string]string{"refine": "refine", "done": enginelite.END})
	g.AddEdge("refine", "critique")

	runner := enginelite.NewRunner(g, store, threadID, s.log)
	state, err := runner.Start(ctx, &in)
	if err != nil {
		return in, err
	}
	trim(state)
	return *state, nil
}

func (s *Subgraph) planNode(ctx context.Context, st *State) (string, error) {
	st.Iteration = 0
	st.Turns = 1

	out, outline, err := s.planner.PlanOutline(ctx, agents.PlanOutlineInput{
		SourceSummaries: st.SourceSummaries,
		Title:           st.Title,
		Description:     st.Description,
		TargetChapters:  st.TargetChapters,
		VoiceGuidance:   st.VoiceGuidance,
	})
	st.TokensUsed += out.TokensUsed
	st.CostIncurred += out.EstimatedCost
	if err != nil {
		s.log.Warn("outline planner failed: %v", err)
		return "", nil
	}
	st.CurrentOutline = &outline
	return "", nil
}

func (s *Subgraph) critiqueNode(ctx context.Context, st *State) (string, error) {
	st.Turns++

	if st.CurrentOutline == nil {
		st.Feedback = []string{"no outline to critique"}
		return s.shouldRefine(st), nil
	}

	out, result, err := s.critic.CritiqueOutline(ctx, *st.CurrentOutline)
	st.TokensUsed += out.TokensUsed
	st.CostIncurred += out.EstimatedCost
	if err != nil {
		// Mirrors the teacher's _critique_node fallback: approve after the
		// first iteration rather than loop forever on a broken critic.
		if st.Iteration >= 1 {
			st.Approved = true
			st.Feedback = nil
		} else {
			st.Feedback = []string{"consider adding more detail to chapter summaries"}
		}
		return s.shouldRefine(st), nil
	}

	if result.Approved {
		st.Approved = true
		st.Feedback = nil
	} else {
		st.Feedback = result.Feedback
	}
	return s.shouldRefine(st), nil
}

func (s *Subgraph) refineNode(ctx context.Context, st *State) (string, error) {
	st.Iteration++
	st.Turns++

	if len(st.Feedback) == 0 {
		return "", nil
	}

	out, outline, err := s.planner.PlanOutline(ctx, agents.PlanOutlineInput{
		SourceSummaries: st.SourceSummaries,
		Title:           st.Title,
		Description:     st.Description,
		TargetChapters:  st.TargetChapters,
		VoiceGuidance:   st.VoiceGuidance,
		PriorOutline:    st.CurrentOutline,
		Feedback:        st.Feedback,
	})
	st.TokensUsed += out.TokensUsed
	st.CostIncurred += out.EstimatedCost
	if err != nil {
		s.log.Warn("outline refine failed: %v", err)
		return "", nil
	}
	st.CurrentOutline = &outline
	return "", nil
}

// shouldRefine implements spec section 4.9's should_refine: done iff
// approved OR any bound is exceeded; otherwise refine iff there is
// feedback to act on.
func (s *Subgraph) shouldRefine(st *State) string {
	if st.Approved {
		return "done"
	}
	if st.Iteration >= s.bounds.MaxTurns {
		return "done"
	}
	if st.TokensUsed >= s.bounds.MaxTokens {
		return "done"
	}
	if st.CostIncurred >= s.bounds.MaxCost {
		return "done"
	}
	if len(st.Feedback) > 0 {
		return "refine"
	}
	return "done"
}

// trim truncates outline.chapters to target_chapters and renumbers 1..N,
// per spec section 4.9's post-completion trim step.
func trim(st *State) {
	if st.CurrentOutline == nil || st.TargetChapters <= 0 {
		return
	}
	chapters := st.CurrentOutline.Chapters
	if len(chapters) > st.TargetChapters {
		chapters = chapters[:st.TargetChapters]
	}
	for i := range chapters {
		chapters[i].Number = i + 1
	}
	st.CurrentOutline.Chapters = chapters
}
