package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostline-hq/ghostline/enginelite"
)

func newTestStore(t *testing.T) *CheckpointStore {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadLatestRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, &enginelite.Checkpoint{
		ID: "cp-1", ThreadID: "t1", NodeName: "draft",
		State: []byte(`{"count":1}`), Timestamp: time.Now(), Version: 1,
	}))
	require.NoError(t, s.Save(ctx, &enginelite.Checkpoint{
		ID: "cp-2", ThreadID: "t1", NodeName: "voice_edit",
		State: []byte(`{"count":2}`), Timestamp: time.Now(), Version: 2, ParentID: "cp-1",
	}))

	latest, err := s.LoadLatest(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "cp-2", latest.ID)
	assert.Equal(t, "voice_edit", latest.NodeName)
	assert.Equal(t, "cp-1", latest.ParentID)
}

func TestLoadLatestOnUnknownThreadReturnsNilWithoutError(t *testing.T) {
	s := newTestStore(t)
	latest, err := s.LoadLatest(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestSaveUpsertsOnSameThreadAndCheckpointID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cp := &enginelite.Checkpoint{ID: "cp-1", ThreadID: "t1", NodeName: "draft", State: []byte(`{}`), Timestamp: time.Now(), Version: 1}
	require.NoError(t, s.Save(ctx, cp))

	cp.NodeName = "fact_check"
	cp.Version = 2
	require.NoError(t, s.Save(ctx, cp))

	list, err := s.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "fact_check", list[0].NodeName)
}

func TestListOrdersAscendingByVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Save(ctx, &enginelite.Checkpoint{
			ID: string(rune('a' + i)), ThreadID: "t1", NodeName: "n", State: []byte(`{}`), Timestamp: time.Now(), Version: i,
		}))
	}
	list, err := s.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, 1, list[0].Version)
	assert.Equal(t, 3, list[2].Version)
}

func TestDeleteRemovesOnlyMatchingCheckpoint(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, &enginelite.Checkpoint{ID: "cp-1", ThreadID: "t1", NodeName: "n", State: []byte(`{}`), Timestamp: time.Now(), Version: 1}))
	require.NoError(t, s.Save(ctx, &enginelite.Checkpoint{ID: "cp-2", ThreadID: "t1", NodeName: "n", State: []byte(`{}`), Timestamp: time.Now(), Version: 2}))

	require.NoError(t, s.Delete(ctx, "t1", "cp-1"))

	list, err := s.List(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "cp-2", list[0].ID)
}

func TestClearRemovesAllCheckpointsForThreadOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, &enginelite.Checkpoint{ID: "cp-1", ThreadID: "t1", NodeName: "n", State: []byte(`{}`), Timestamp: time.Now(), Version: 1}))
	require.NoError(t, s.Save(ctx, &enginelite.Checkpoint{ID: "cp-2", ThreadID: "t2", NodeName: "n", State: []byte(`{}`), Timestamp: time.Now(), Version: 1}))

	require.NoError(t, s.Clear(ctx, "t1"))

	l1, err := s.List(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, l1)

	l2, err := s.List(ctx, "t2")
	require.NoError(t, err)
	assert.Len(t, l2, 1)
}
