// Package enginelite is a small bounded state-machine runner: one node
// executes at a time, edges (plain or conditional) pick the next node, an
// interrupt-before list lets a node suspend execution back to the caller,
// and every step is checkpointed. Grounded on the teacher's
// graph/state_graph.go (InvokeWithConfig's interrupt-before-execute loop)
// and graph/checkpointing.go / store/checkpoint.go (Checkpoint,
// CheckpointStore), adapted from the teacher's `any`-typed dual
// generic/untyped API down to one generic engine parameterized by the
// caller's concrete state type — this module only ever runs three fixed
// state shapes (WorkflowState, OutlineState, ChapterState), so a single
// type parameter replaces the teacher's three parallel implementations.
package enginelite

import (
	"context"
	"time"
)

// Checkpoint is a saved state at a specific point in a thread's execution,
// grounded on store.Checkpoint. State is a JSON-encoded snapshot so that
// any persistence backend (memory/sqlite/postgres) can store it uniformly
// as a binary blob, per spec section 6's "binary checkpoint_data".
type Checkpoint struct {
	ID         string         `json:"id"`
	ThreadID   string         `json:"thread_id"`
	NodeName   string         `json:"node_name"`
	State      []byte         `json:"state"`
	Metadata   map[string]any `json:"metadata"`
	Timestamp  time.Time      `json:"timestamp"`
	Version    int            `json:"version"`
	ParentID   string         `json:"parent_id,omitempty"`
}

// CheckpointStore persists Checkpoints keyed by (thread_id, checkpoint_id),
// grounded on store.CheckpointStore. Same-thread access must be serialized
// by the caller (spec section 5); the store itself must tolerate
// concurrent access across distinct threads.
type CheckpointStore interface {
	Save(ctx context.Context, cp *Checkpoint) error
	// LoadLatest returns the most recent checkpoint for threadID, or nil
	// if none exists.
	LoadLatest(ctx context.Context, threadID string) (*Checkpoint, error)
	List(ctx context.Context, threadID string) ([]*Checkpoint, error)
	Delete(ctx context.Context, threadID, checkpointID string) error
	Clear(ctx context.Context, threadID string) error
}
