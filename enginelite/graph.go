package enginelite

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ghostline-hq/ghostline/logging"
)

// END is the sentinel "next node" name that stops execution.
const END = ""

// NodeFunc executes one node, mutating state in place and returning the
// name of the edge label to evaluate (conditional edges key on this);
// plain edges ignore it.
type NodeFunc[S any] func(ctx context.Context, state *S) (label string, err error)

// Graph is a bounded state machine over a concrete state type S, grounded
// on the teacher's StateGraph but fixed to one state shape per
// instantiation (WorkflowState, OutlineState, or ChapterState).
type Graph[S any] struct {
	nodes            map[string]NodeFunc[S]
	edges            map[string]string
	conditionalEdges map[string]map[string]string // from -> label -> to
	entry            string
	interruptBefore  map[string]bool
}

// New constructs an empty Graph with the given entry point node name.
func New[S any](entry string) *Graph[S] {
	return &Graph[S]{
		nodes:            map[string]NodeFunc[S]{},
		edges:            map[string]string{},
		conditionalEdges: map[string]map[string]string{},
		entry:            entry,
		interruptBefore:  map[string]bool{},
	}
}

// AddNode registers a node function under name.
func (g *Graph[S]) AddNode(name string, fn NodeFunc[S]) {
	g.nodes[name] = fn
}

// AddEdge wires an unconditional from -> to transition.
func (g *Graph[S]) AddEdge(from, to string) {
	g.edges[from] = to
}

// AddConditionalEdge wires from -> (label -> to) transitions; the node's
// returned label selects the branch.
func (g *Graph[S]) AddConditionalEdge(from string, branches map[string]string) {
	g.conditionalEdges[from] = branches
}

// SetInterruptBefore marks a node as a gate: execution stops and returns
// ErrInterrupted immediately before that node runs, the way the teacher's
// InvokeWithConfig checks config.InterruptBefore. The caller inspects
// state (e.g. pending_user_action) and later calls Resume.
func (g *Graph[S]) SetInterruptBefore(nodeName string) {
	g.interruptBefore[nodeName] = true
}

// ErrInterrupted is returned when execution stops at an interrupt-before
// gate. Start and Resume return (state, ErrInterrupted) rather than
// using exception-based control flow, per spec section 9's translation
// note on interrupt semantics.
var ErrInterrupted = errors.New("enginelite: execution interrupted before gated node")

// ErrNodeNotFound is returned when a transition targets an unregistered
// node name.
var ErrNodeNotFound = errors.New("enginelite: node not found")

// Runner executes a Graph with checkpointing against one thread.
type Runner[S any] struct {
	graph    *Graph[S]
	store    CheckpointStore
	threadID string
	log      logging.Logger
}

// NewRunner binds a Graph to a CheckpointStore and thread (workflow_id).
func NewRunner[S any](g *Graph[S], store CheckpointStore, threadID string, log logging.Logger) *Runner[S] {
	if log == nil {
		log = logging.NoOp{}
	}
	return &Runner[S]{graph: g, store: store, threadID: threadID, log: log.With("enginelite")}
}

// Start runs from the graph's entry point until END or an interrupt gate.
func (r *Runner[S]) Start(ctx context.Context, state *S) (*S, error) {
	return r.run(ctx, state, r.graph.entry)
}

// Resume continues execution from the caller-supplied state, starting AT
// fromNode (that node runs; it is not skipped). It does not load a
// checkpoint itself: callers pass the state, e.g. one obtained from
// LoadLatest.
func (r *Runner[S]) Resume(ctx context.Context, state *S, fromNode string) (*S, error) {
	return r.run(ctx, state, fromNode)
}

func (r *Runner[S]) run(ctx context.Context, state *S, startNode string) (*S, error) {
	current := startNode
	for current != END {
		if r.graph.interruptBefore[current] {
			if err := r.checkpoint(ctx, current, state); err != nil {
				r.log.Warn("checkpoint save failed at gate %s: %v", current, err)
			}
			return state, ErrInterrupted
		}

		node, ok := r.graph.nodes[current]
		if !ok {
			return state, ErrNodeNotFound
		}

		label, err := node(ctx, state)
		if err != nil {
			return state, err
		}

		if err := r.checkpoint(ctx, current, state); err != nil {
			r.log.Warn("checkpoint save failed after node %s: %v", current, err)
		}

		next, err := r.nextNode(current, label)
		if err != nil {
			return state, err
		}
		current = next
	}
	return state, nil
}

func (r *Runner[S]) nextNode(from, label string) (string, error) {
	if branches, ok := r.graph.conditionalEdges[from]; ok {
		to, ok := branches[label]
		if !ok {
			return "", ErrNodeNotFound
		}
		return to, nil
	}
	if to, ok := r.graph.edges[from]; ok {
		return to, nil
	}
	return END, nil
}

func (r *Runner[S]) checkpoint(ctx context.Context, nodeName string, state *S) error {
	if r.store == nil {
		return nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	version := 1
	prev, err := r.store.LoadLatest(ctx, r.threadID)
	if err != nil {
		return err
	}
	if prev != nil {
		version = prev.Version + 1
	}
	return r.store.Save(ctx, &Checkpoint{
		ID:        uuid.NewString(),
		ThreadID:  r.threadID,
		NodeName:  nodeName,
		State:     data,
		Timestamp: time.Now(),
		Version:   version,
	})
}

// LoadLatest fetches the most recent checkpoint for this thread and
// unmarshals it into state, also returning the node it was saved at.
func (r *Runner[S]) LoadLatest(ctx context.Context, state *S) (nodeName string, found bool, err error) {
	if r.store == nil {
		return "", false, nil
	}
	cp, err := r.store.LoadLatest(ctx, r.threadID)
	if err != nil {
		return "", false, err
	}
	if cp == nil {
		return "", false, nil
	}
	if err := json.Unmarshal(cp.State, state); err != nil {
		return "", false, err
	}
	return cp.NodeName, true, nil
}
