// Package sqlite persists enginelite.Checkpoint to a local SQLite file,
// the single-node deployment backend for workflow_checkpoints per spec
// section 6. Grounded on the teacher's store/sqlite/sqlite.go (database/sql
// over mattn/go-sqlite3, fmt.Sprintf'd schema, ON CONFLICT upsert),
// adapted to the (thread_id, checkpoint_id) composite key.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ghostline-hq/ghostline/enginelite"
)

// CheckpointStore implements enginelite.CheckpointStore against a SQLite
// workflow_checkpoints table.
type CheckpointStore struct {
	db *sql.DB
}

// New opens path (or ":memory:") and ensures the schema exists.
func New(path string) (*CheckpointStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}
	s := &CheckpointStore{db: db}
	if err := s.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// InitSchema creates workflow_checkpoints if it doesn't exist.
func (s *CheckpointStore) InitSchema(ctx context.Context) error {
	const query = `
		CREATE TABLE IF NOT EXISTS workflow_checkpoints (
			checkpoint_id TEXT NOT NULL,
			thread_id TEXT NOT NULL,
			node_name TEXT NOT NULL,
			checkpoint_data BLOB NOT NULL,
			metadata TEXT,
			created_at DATETIME NOT NULL,
			version INTEGER NOT NULL,
			parent_id TEXT,
			PRIMARY KEY (thread_id, checkpoint_id)
		);
		CREATE INDEX IF NOT EXISTS idx_workflow_checkpoints_thread_version
			ON workflow_checkpoints (thread_id, version DESC);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *CheckpointStore) Close() error {
	return s.db.Close()
}

func (s *CheckpointStore) Save(ctx context.Context, cp *enginelite.Checkpoint) error {
	metadataJSON, err := json.Marshal(cp.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	const query = `
		INSERT INTO workflow_checkpoints
			(checkpoint_id, thread_id, node_name, checkpoint_data, metadata, created_at, version, parent_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id, checkpoint_id) DO UPDATE SET
			node_name = excluded.node_name,
			checkpoint_data = excluded.checkpoint_data,
			metadata = excluded.metadata,
			created_at = excluded.created_at,
			version = excluded.version,
			parent_id = excluded.parent_id
	`
	_, err = s.db.ExecContext(ctx, query,
		cp.ID, cp.ThreadID, cp.NodeName, cp.State, string(metadataJSON), cp.Timestamp, cp.Version, cp.ParentID,
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
		WHERE thread_id = ?
		ORDER BY version DESC
		LIMIT 1
	`
	row := s.db.QueryRowContext(ctx, query, threadID)
	cp, err := scanCheckpoint(row, threadID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return cp, err
}

func (s *CheckpointStore) List(ctx context.Context, threadID string) ([]*enginelite.Checkpoint, error) {
	const query = `
		SELECT checkpoint_id, node_name, checkpoint_data, metadata, created_at, version, parent_id
		FROM workflow_checkpoints
		WHERE thread_id = ?
		ORDER BY version ASC
	`
	rows, err := s.db.QueryContext(ctx, query, threadID)
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
	const query = `DELETE FROM workflow_checkpoints WHERE thread_id = ? AND checkpoint_id = ?`
	if _, err := s.db.ExecContext(ctx, query, threadID, checkpointID); err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

func (s *CheckpointStore) Clear(ctx context.Context, threadID string) error {
	const query = `DELETE FROM workflow_checkpoints WHERE thread_id = ?`
	if _, err := s.db.ExecContext(ctx, query, threadID); err != nil {
		return fmt.Errorf("failed to clear checkpoints: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row rowScanner, threadID string) (*enginelite.Checkpoint, error) {
	var cp enginelite.Checkpoint
	var metadataJSON string
	var parentID sql.NullString

	if err := row.Scan(&cp.ID, &cp.NodeName, &cp.State, &metadataJSON, &cp.Timestamp, &cp.Version, &parentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
	}
	cp.ThreadID = threadID
	if parentID.Valid {
		cp.ParentID = parentID.String
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal([]byte(metadataJSON), &cp.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &cp, nil
}
