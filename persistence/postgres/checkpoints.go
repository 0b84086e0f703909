// Package postgres persists enginelite.Checkpoint and the other durable
// tables named in spec section 6 (llm_usage_logs, generation_tasks) to
// PostgreSQL via pgx. Grounded on the teacher's store/postgres/postgres.go
// (DBPool interface, fmt.Sprintf'd table name, ON CONFLICT upsert shape),
// adapted from the teacher's execution_id/single-id schema to the
// (thread_id, checkpoint_id) composite key spec section 6 requires for
// workflow_checkpoints.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ghostline-hq/ghostline/enginelite"
)

// DBPool is the subset of pgxpool.Pool this store needs, grounded on the
// teacher's DBPool interface so tests can supply a fake.
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// CheckpointStore implements enginelite.CheckpointStore against the
// workflow_checkpoints table.
type CheckpointStore struct {
	pool DBPool
}

// Options configures the Postgres connection.
type Options struct {
	ConnString string
}

// New opens a pool and ensures the schema exists.
func New(ctx context.Context, opts Options) (*CheckpointStore, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	s := &CheckpointStore{pool: pool}
	if err := s.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool wraps an existing pool (or fake), useful for tests.
func NewWithPool(pool DBPool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// InitSchema creates workflow_checkpoints if it doesn't exist.
func (s *CheckpointStore) InitSchema(ctx context.Context) error {
	const query = `
		CREATE TABLE IF NOT EXISTS workflow_checkpoints (
			checkpoint_id TEXT NOT NULL,
			thread_id TEXT NOT NULL,
			node_name TEXT NOT NULL,
			checkpoint_data BYTEA NOT NULL,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL,
			version INTEGER NOT NULL,
			parent_id TEXT,
			PRIMARY KEY (thread_id, checkpoint_id)
		);
		CREATE INDEX IF NOT EXISTS idx_workflow_checkpoints_thread_version
			ON workflow_checkpoints (thread_id, version DESC);
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *CheckpointStore) Close() {
	s.pool.Close()
}

func (s *CheckpointStore) Save(ctx context.Context, cp *enginelite.Checkpoint) error {
	metadataJSON, err := json.Marshal(cp.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	const query = `
		INSERT INTO workflow_checkpoints
			(checkpoint_id, thread_id, node_name, checkpoint_data, metadata, created_at, version, parent_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (thread_id, checkpoint_id) DO UPDATE SET
			node_name = EXCLUDED.node_name,
			checkpoint_data = EXCLUDED.checkpoint_data,
			metadata = EXCLUDED.metadata,
			created_at = EXCLUDED.created_at,
			version = EXCLUDED.version,
			parent_id = EXCLUDED.parent_id
	`
	_, err = s.pool.Exec(ctx, query,
		cp.ID, cp.ThreadID, cp.NodeName, cp.State, metadataJSON, cp.Timestamp, cp.Version, cp.ParentID,
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

func (s *CheckpointStore) LoadLatest(ctx context.Context, threadID string) (*enginelite.Checkpoint, error) {
	const query = `
		SELECT checkpoint_id, node_name, checkpoint_data, metadata, created_at, version, parent_id
		FROM workflow_checkpoints
		WHERE thread_id = $1
		ORDER BY version DESC
		LIMIT 1
	`
	row := s.pool.QueryRow(ctx, query, threadID)
	cp, err := scanCheckpoint(row, threadID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return cp, err
}

func (s *CheckpointStore) List(ctx context.Context, threadID string) ([]*enginelite.Checkpoint, error) {
	const query = `
		SELECT checkpoint_id, node_name, checkpoint_data, metadata, created_at, version, parent_id
		FROM workflow_checkpoints
		WHERE thread_id = $1
		ORDER BY version ASC
	`
	rows, err := s.pool.Query(ctx, query, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*enginelite.Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows, threadID)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating checkpoint rows: %w", err)
	}
	return out, nil
}

func (s *CheckpointStore) Delete(ctx context.Context, threadID, checkpointID string) error {
	const query = `DELETE FROM workflow_checkpoints WHERE thread_id = $1 AND checkpoint_id = $2`
	if _, err := s.pool.Exec(ctx, query, threadID, checkpointID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

func (s *CheckpointStore) Clear(ctx context.Context, threadID string) error {
	const query = `DELETE FROM workflow_checkpoints WHERE thread_id = $1`
	if _, err := s.pool.Exec(ctx, query, threadID); err != nil {
		return fmt.Errorf("failed to clear checkpoints: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner, threadID string) (*enginelite.Checkpoint, error) {
	var cp enginelite.Checkpoint
	var metadataJSON []byte
	var parentID *string

	if err := row.Scan(&cp.ID, &cp.NodeName, &cp.State, &metadataJSON, &cp.Timestamp, &cp.Version, &parentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
	}
	cp.ThreadID = threadID
	if parentID != nil {
		cp.ParentID = *parentID
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &cp.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &cp, nil
}
