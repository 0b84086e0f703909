// Package memory is an in-process CheckpointStore, the dev/test backend
// for enginelite.Runner. Grounded on the teacher's store/memory package
// (store/memory/memory_test.go specifies the CheckpointStore contract this
// implements: Save/Load/List/Delete/Clear, list-by-thread, thread safety —
// the implementation file itself is absent from the retrieved pack, so
// this is a fresh implementation built to match that test's contract).
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ghostline-hq/ghostline/enginelite"
)

// Store is a concurrency-safe, process-local CheckpointStore.
type Store struct {
	mu       sync.RWMutex
	byThread map[string][]*enginelite.Checkpoint
}

// New constructs an empty Store.
func New() *Store {
	return &Store{byThread: map[string][]*enginelite.Checkpoint{}}
}

func (s *Store) Save(ctx context.Context, cp *enginelite.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp.Version = len(s.byThread[cp.ThreadID]) + 1
	s.byThread[cp.ThreadID] = append(s.byThread[cp.ThreadID], cp)
	return nil
}

func (s *Store) LoadLatest(ctx context.Context, threadID string) (*enginelite.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cps := s.byThread[threadID]
	if len(cps) == 0 {
		return nil, nil
	}
	return cps[len(cps)-1], nil
}

func (s *Store) List(ctx context.Context, threadID string) ([]*enginelite.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cps := append([]*enginelite.Checkpoint(nil), s.byThread[threadID]...)
	sort.SliceStable(cps, func(i, j int) bool { return cps[i].Version < cps[j].Version })
	return cps, nil
}

func (s *Store) Delete(ctx context.Context, threadID, checkpointID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cps := s.byThread[threadID]
	for i, cp := range cps {
		if cp.ID == checkpointID {
			s.byThread[threadID] = append(cps[:i], cps[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *Store) Clear(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byThread, threadID)
	return nil
}
