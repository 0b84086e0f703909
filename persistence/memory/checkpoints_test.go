package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostline-hq/ghostline/enginelite"
)

func TestSaveAndLoadLatest(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &enginelite.Checkpoint{ID: "a", ThreadID: "t1", NodeName: "n1", State: []byte("{}")}))
	require.NoError(t, s.Save(ctx, &enginelite.Checkpoint{ID: "b", ThreadID: "t1", NodeName: "n2", State: []byte("{}")}))

	latest, err := s.LoadLatest(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "n2", latest.NodeName)
}

func TestLoadLatestOnUnknownThreadReturnsNil(t *testing.T) {
	s := New()
	latest, err := s.LoadLatest(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestListOrdersByVersion(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Save(ctx, &enginelite.Checkpoint{ID: string(rune('a' + i)), ThreadID: "t1"}))
	}
	list, err := s.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, 1, list[0].Version)
	assert.Equal(t, 3, list[2].Version)
}

func TestClearRemovesAllCheckpointsForThread(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, &enginelite.Checkpoint{ID: "a", ThreadID: "t1"}))
	require.NoError(t, s.Clear(ctx, "t1"))

	list, err := s.List(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDifferentThreadsAreIsolated(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, &enginelite.Checkpoint{ID: "a", ThreadID: "t1"}))
	require.NoError(t, s.Save(ctx, &enginelite.Checkpoint{ID: "b", ThreadID: "t2"}))

	l1, _ := s.List(ctx, "t1")
	l2, _ := s.List(ctx, "t2")
	assert.Len(t, l1, 1)
	assert.Len(t, l2, 1)
}
