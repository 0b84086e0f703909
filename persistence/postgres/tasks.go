package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ghostline-hq/ghostline/domain"
)

// TaskStore implements taskrunner.Store against the generation_tasks
// table, grounded on CheckpointStore's pool/exec/query idiom and adapted
// to a single-row-per-task upsert rather than an append-only or
// versioned-history shape: a generation_task is mutated in place as its
// status transitions (spec §4.12).
type TaskStore struct {
	pool DBPool
}

// NewTaskStore wraps a pool (or fake) for generation_tasks access.
func NewTaskStore(pool DBPool) *TaskStore {
	return &TaskStore{pool: pool}
}

// InitSchema creates generation_tasks if it doesn't exist.
func (s *TaskStore) InitSchema(ctx context.Context) error {
	const query = `
		CREATE TABLE IF NOT EXISTS generation_tasks (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			status TEXT NOT NULL,
			progress INTEGER NOT NULL,
			current_step TEXT NOT NULL,
			error_message TEXT,
			conversation_log TEXT,
			workflow_run_id TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_generation_tasks_workflow ON generation_tasks (workflow_id);
		CREATE INDEX IF NOT EXISTS idx_generation_tasks_status ON generation_tasks (status);
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create generation_tasks schema: %w", err)
	}
	return nil
}

// Upsert inserts a task or, if its ID already exists, overwrites every
// mutable column with the task's current values.
func (s *TaskStore) Upsert(ctx context.Context, task domain.Task) error {
	const query = `
		INSERT INTO generation_tasks
			(id, workflow_id, project_id, status, progress, current_step,
			 error_message, conversation_log, workflow_run_id, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			current_step = EXCLUDED.current_step,
			error_message = EXCLUDED.error_message,
			conversation_log = EXCLUDED.conversation_log,
			workflow_run_id = EXCLUDED.workflow_run_id,
			completed_at = EXCLUDED.completed_at
	`
	_, err := s.pool.Exec(ctx, query,
		task.ID, task.WorkflowID, task.ProjectID, task.Status, task.Progress, task.CurrentStep,
		nullableString(task.ErrorMessage), nullableString(task.ConversationLog), nullableString(task.WorkflowRunID),
		task.CreatedAt, task.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert generation task: %w", err)
	}
	return nil
}

// Get loads one task by ID, returning (nil, nil) if it doesn't exist.
func (s *TaskStore) Get(ctx context.Context, id string) (*domain.Task, error) {
	const query = `
		SELECT id, workflow_id, project_id, status, progress, current_step,
			error_message, conversation_log, workflow_run_id, created_at, completed_at
		FROM generation_tasks
		WHERE id = $1
	`
	row := s.pool.QueryRow(ctx, query, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return task, nil
}

// ByWorkflowID loads the task tracking a given workflow, returning
// (nil, nil) if none exists.
func (s *TaskStore) ByWorkflowID(ctx context.Context, workflowID string) (*domain.Task, error) {
	const query = `
		SELECT id, workflow_id, project_id, status, progress, current_step,
			error_message, conversation_log, workflow_run_id, created_at, completed_at
		FROM generation_tasks
		WHERE workflow_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	row := s.pool.QueryRow(ctx, query, workflowID)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return task, nil
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var t domain.Task
	var errorMessage, conversationLog, workflowRunID *string
	if err := row.Scan(
		&t.ID, &t.WorkflowID, &t.ProjectID, &t.Status, &t.Progress, &t.CurrentStep,
		&errorMessage, &conversationLog, &workflowRunID, &t.CreatedAt, &t.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan generation task: %w", err)
	}
	t.ErrorMessage = deref(errorMessage)
	t.ConversationLog = deref(conversationLog)
	t.WorkflowRunID = deref(workflowRunID)
	return &t, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
