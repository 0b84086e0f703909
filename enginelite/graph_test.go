package enginelite

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type counterState struct {
	Count    int
	Approved bool
}

type memStore struct {
	mu          sync.Mutex
	byThread    map[string][]*Checkpoint
}

func newMemStore() *memStore { return &memStore{byThread: map[string][]*Checkpoint{}} }

func (m *memStore) Save(ctx context.Context, cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byThread[cp.ThreadID] = append(m.byThread[cp.ThreadID], cp)
	return nil
}

func (m *memStore) LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cps := m.byThread[threadID]
	if len(cps) == 0 {
		return nil, nil
	}
	return cps[len(cps)-1], nil
}

func (m *memStore) List(ctx context.Context, threadID string) ([]*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byThread[threadID], nil
}

func (m *memStore) Delete(ctx context.Context, threadID, checkpointID string) error { return nil }
func (m *memStore) Clear(ctx context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byThread, threadID)
	return nil
}

func buildCounterGraph() *Graph[counterState] {
	g := New[counterState]("increment")
	g.AddNode("increment", func(ctx context.Context, s *counterState) (string, error) {
		s.Count++
		return "", nil
	})
	g.AddNode("approve", func(ctx context.Context, s *counterState) (string, error) {
		return "", nil
	})
	g.AddEdge("increment", "approve_gate")
	g.SetInterruptBefore("approve_gate")
	g.AddEdge("approve_gate", "approve")
	g.AddEdge("approve", END)
	return g
}

func TestRunStopsAtInterruptGate(t *testing.T) {
	g := buildCounterGraph()
	store := newMemStore()
	runner := NewRunner(g, store, "thread-1", nil)

	state := &counterState{}
	result, err := runner.Start(context.Background(), state)
	require.ErrorIs(t, err, ErrInterrupted)
	assert.Equal(t, 1, result.Count)
}

func TestResumeContinuesPastGate(t *testing.T) {
	g := buildCounterGraph()
	store := newMemStore()
	runner := NewRunner(g, store, "thread-2", nil)

	state := &counterState{}
	_, err := runner.Start(context.Background(), state)
	require.ErrorIs(t, err, ErrInterrupted)

	state.Approved = true
	result, err := runner.Resume(context.Background(), state, "approve")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)
	assert.True(t, result.Approved)
}

func TestConditionalEdgeSelectsBranchByLabel(t *testing.T) {
	g := New[counterState]("check")
	g.AddNode("check", func(ctx context.Context, s *counterState) (string, error) {
		if s.Count >= 3 {
			return "done", nil
		}
		return "loop", nil
	})
	g.AddNode("increment", func(ctx context.Context, s *counterState) (string, error) {
		s.Count++
		return "", nil
	})
	g.AddConditionalEdge("check", map[string]string{"done": END, "loop": "increment"})
	g.AddEdge("increment", "check")

	runner := NewRunner(g, nil, "thread-3", nil)
	result, err := runner.Start(context.Background(), &counterState{})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Count)
}

func TestLoadLatestRestoresStateAndNode(t *testing.T) {
	g := buildCounterGraph()
	store := newMemStore()
	runner := NewRunner(g, store, "thread-4", nil)

	state := &counterState{}
	_, err := runner.Start(context.Background(), state)
	require.ErrorIs(t, err, ErrInterrupted)

	var restored counterState
	nodeName, found, err := runner.LoadLatest(context.Background(), &restored)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "approve_gate", nodeName)
	assert.Equal(t, 1, restored.Count)
}
