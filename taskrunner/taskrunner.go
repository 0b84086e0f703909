// Package taskrunner maps WorkflowOrchestrator runs onto the persisted
// generation_tasks record spec section 4.12 describes (C12). It owns the
// status-transition rules (pending/queued/running/paused/completed/
// failed/cancelled) that the orchestrator itself has no opinion about,
// grounded on the durable_execution example's resume-by-inspecting-state
// pattern: the runner always derives its next action from the task row
// rather than carrying in-memory continuation state across calls.
package taskrunner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ghostline-hq/ghostline/domain"
	"github.com/ghostline-hq/ghostline/enginelite"
	"github.com/ghostline-hq/ghostline/logging"
	"github.com/ghostline-hq/ghostline/workflow"
)

// Store is the narrow generation_tasks persistence capability Runner
// writes through.
type Store interface {
	Upsert(ctx context.Context, task domain.Task) error
	Get(ctx context.Context, id string) (*domain.Task, error)
	ByWorkflowID(ctx context.Context, workflowID string) (*domain.Task, error)
}

// Runner is the TaskRunner capability (C12): one background task per
// generation request, its lifecycle mirrored into a domain.Task row.
type Runner struct {
	orchestrator *workflow.Orchestrator
	checkpoints  enginelite.CheckpointStore
	tasks        Store
	log          logging.Logger
}

// New constructs a Runner over the given WorkflowOrchestrator, checkpoint
// store, and generation_tasks store.
func New(orchestrator *workflow.Orchestrator, checkpoints enginelite.CheckpointStore, tasks Store, log logging.Logger) *Runner {
	if log == nil {
		log = logging.NoOp{}
	}
	return &Runner{orchestrator: orchestrator, checkpoints: checkpoints, tasks: tasks, log: log.With("taskrunner")}
}

// Enqueue creates the generation_tasks row in "pending" state, ahead of
// whichever worker picks the job off taskqueue.Queue. Callers that don't
// use a queue (single-process / CLI) can call Start immediately after.
func (r *Runner) Enqueue(ctx context.Context, workflowID, projectID string) (domain.Task, error) {
	task := domain.Task{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		ProjectID:  projectID,
		Status:     domain.TaskPending,
		CreatedAt:  time.Now(),
	}
	if err := r.tasks.Upsert(ctx, task); err != nil {
		return domain.Task{}, fmt.Errorf("taskrunner: enqueue: %w", err)
	}
	return task, nil
}

// Start marks the task "running" and drives WorkflowOrchestrator.Start
// through to either the approval pause or a terminal outcome, reflecting
// the result back onto the task row at every transition.
func (r *Runner) Start(ctx context.Context, taskID string, state *domain.WorkflowState) (*domain.WorkflowState, error) {
	task, err := r.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("taskrunner: load task: %w", err)
	}
	if task == nil {
		return nil, fmt.Errorf("taskrunner: task %s not found", taskID)
	}

	task.Status = domain.TaskRunning
	task.WorkflowRunID = state.WorkflowID
	if err := r.tasks.Upsert(ctx, *task); err != nil {
		r.log.Warn("failed to mark task %s running: %v", taskID, err)
	}

	result, runErr := r.orchestrator.Start(ctx, r.checkpoints, state)
	return result, r.reflect(ctx, task, result, runErr)
}

// Resume records the approval decision and drives
// WorkflowOrchestrator.Resume through to completion or failure,
// reflecting the result back onto the task row.
func (r *Runner) Resume(ctx context.Context, taskID string, state *domain.WorkflowState, approved bool, feedback []string) (*domain.WorkflowState, error) {
	task, err := r.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("taskrunner: load task: %w", err)
	}
	if task == nil {
		return nil, fmt.Errorf("taskrunner: task %s not found", taskID)
	}

	task.Status = domain.TaskRunning
	if err := r.tasks.Upsert(ctx, *task); err != nil {
		r.log.Warn("failed to mark task %s running: %v", taskID, err)
	}

	result, runErr := r.orchestrator.Resume(ctx, r.checkpoints, state, approved, feedback)
	return result, r.reflect(ctx, task, result, runErr)
}

// Cancel marks a task cancelled without touching the underlying workflow
// state; a cancelled task's checkpoints are left intact in case the
// caller wants to inspect where it stopped.
func (r *Runner) Cancel(ctx context.Context, taskID string) error {
	task, err := r.tasks.Get(ctx, taskID)
	if err != nil {
		return fmt.Errorf("taskrunner: load task: %w", err)
	}
	if task == nil {
		return fmt.Errorf("taskrunner: task %s not found", taskID)
	}
	task.Status = domain.TaskCancelled
	now := time.Now()
	task.CompletedAt = &now
	if err := r.tasks.Upsert(ctx, *task); err != nil {
		return fmt.Errorf("taskrunner: cancel: %w", err)
	}
	return nil
}

// reflect applies spec section 4.12's status-transition rules against the
// outcome of a Start/Resume call and persists the updated task row.
func (r *Runner) reflect(ctx context.Context, task *domain.Task, state *domain.WorkflowState, runErr error) error {
	if state != nil {
		task.Progress = state.Progress
		task.CurrentStep = string(state.Phase)
	}

	switch {
	case workflow.IsInterrupted(runErr):
		task.Status = domain.TaskPaused
		task.ErrorMessage = ""
	case runErr != nil:
		task.Status = domain.TaskFailed
		task.ErrorMessage = runErr.Error()
	case state != nil && state.PendingUserAction != "":
		task.Status = domain.TaskPaused
	case state != nil && state.Phase == domain.PhaseCompleted:
		task.Status = domain.TaskCompleted
		now := time.Now()
		task.CompletedAt = &now
	default:
		task.Status = domain.TaskRunning
	}

	if err := r.tasks.Upsert(ctx, *task); err != nil {
		r.log.Warn("failed to persist task %s status %s: %v", task.ID, task.Status, err)
	}

	if workflow.IsInterrupted(runErr) {
		return nil
	}
	return runErr
}
