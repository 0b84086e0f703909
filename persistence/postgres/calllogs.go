package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ghostline-hq/ghostline/costledger"
	"github.com/ghostline-hq/ghostline/domain"
)

// CallLogStore implements costledger.Store against the llm_usage_logs
// table, grounded on CheckpointStore's pool/exec/query idiom in
// checkpoints.go and adapted to CostLedger's append-and-filter shape
// rather than checkpointing's upsert-and-version shape.
type CallLogStore struct {
	pool DBPool
}

// NewCallLogStore wraps a pool (or fake) for llm_usage_logs access.
func NewCallLogStore(pool DBPool) *CallLogStore {
	return &CallLogStore{pool: pool}
}

// InitSchema creates llm_usage_logs if it doesn't exist.
func (s *CallLogStore) InitSchema(ctx context.Context) error {
	const query = `
		CREATE TABLE IF NOT EXISTS llm_usage_logs (
			id TEXT PRIMARY KEY,
			agent_name TEXT NOT NULL,
			model TEXT NOT NULL,
			provider TEXT NOT NULL,
			call_type TEXT NOT NULL,
			input_tokens INTEGER NOT NULL,
			output_tokens INTEGER NOT NULL,
			input_cost DOUBLE PRECISION NOT NULL,
			output_cost DOUBLE PRECISION NOT NULL,
			total_cost DOUBLE PRECISION NOT NULL,
			duration_ms BIGINT NOT NULL,
			success BOOLEAN NOT NULL,
			project_id TEXT,
			task_id TEXT,
			workflow_run_id TEXT,
			chapter_number INTEGER,
			agent_role TEXT,
			is_fallback BOOLEAN NOT NULL,
			fallback_reason TEXT,
			prompt_preview TEXT,
			response_preview TEXT,
			error TEXT,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_llm_usage_logs_task ON llm_usage_logs (task_id);
		CREATE INDEX IF NOT EXISTS idx_llm_usage_logs_project ON llm_usage_logs (project_id);
		CREATE INDEX IF NOT EXISTS idx_llm_usage_logs_created_at ON llm_usage_logs (created_at);
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create llm_usage_logs schema: %w", err)
	}
	return nil
}

// InsertCallLog appends one row. It never updates a row once written:
// llm_usage_logs is an append-only audit trail.
func (s *CallLogStore) InsertCallLog(ctx context.Context, l domain.CallLog) error {
	metadataJSON, err := json.Marshal(l.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	const query = `
		INSERT INTO llm_usage_logs
			(id, agent_name, model, provider, call_type, input_tokens, output_tokens,
			 input_cost, output_cost, total_cost, duration_ms, success, project_id,
			 task_id, workflow_run_id, chapter_number, agent_role, is_fallback,
			 fallback_reason, prompt_preview, response_preview, error, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24)
	`
	_, err = s.pool.Exec(ctx, query,
		l.ID, l.AgentName, l.Model, l.Provider, l.CallType, l.InputTokens, l.OutputTokens,
		l.InputCost, l.OutputCost, l.TotalCost, l.DurationMS, l.Success, l.ProjectID,
		l.TaskID, l.WorkflowRunID, l.ChapterNumber, l.AgentRole, l.IsFallback,
		l.FallbackReason, l.PromptPreview, l.ResponsePreview, l.Error, metadataJSON, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert call log: %w", err)
	}
	return nil
}

// ListCallLogs returns rows matching f, newest last. Zero-value fields in f
// impose no filter.
func (s *CallLogStore) ListCallLogs(ctx context.Context, f costledger.Filter) ([]domain.CallLog, error) {
	var where []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.TaskID != "" {
		where = append(where, "task_id = "+arg(f.TaskID))
	}
	if f.ProjectID != "" {
		where = append(where, "project_id = "+arg(f.ProjectID))
	}
	if f.WorkflowRunID != "" {
		where = append(where, "workflow_run_id = "+arg(f.WorkflowRunID))
	}
	if !f.StartDate.IsZero() {
		where = append(where, "created_at >= "+arg(f.StartDate))
	}
	if !f.EndDate.IsZero() {
		where = append(where, "created_at <= "+arg(f.EndDate))
	}

	query := `
		SELECT id, agent_name, model, provider, call_type, input_tokens, output_tokens,
			input_cost, output_cost, total_cost, duration_ms, success, project_id,
			task_id, workflow_run_id, chapter_number, agent_role, is_fallback,
			fallback_reason, prompt_preview, response_preview, error, metadata, created_at
		FROM llm_usage_logs
	`
	if len(where) > 0 {
		query += "WHERE " + strings.Join(where, " AND ") + " "
	}
	query += "ORDER BY created_at ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list call logs: %w", err)
	}
	defer rows.Close()

	var out []domain.CallLog
	for rows.Next() {
		var l domain.CallLog
		var metadataJSON []byte
		var projectID, taskID, workflowRunID, agentRole, fallbackReason, promptPreview, responsePreview, errStr *string
		var chapterNumber *int
		if err := rows.Scan(
			&l.ID, &l.AgentName, &l.Model, &l.Provider, &l.CallType, &l.InputTokens, &l.OutputTokens,
			&l.InputCost, &l.OutputCost, &l.TotalCost, &l.DurationMS, &l.Success, &projectID,
			&taskID, &workflowRunID, &chapterNumber, &agentRole, &l.IsFallback,
			&fallbackReason, &promptPreview, &responsePreview, &errStr, &metadataJSON, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan call log: %w", err)
		}
		l.ProjectID = deref(projectID)
		l.TaskID = deref(taskID)
		l.WorkflowRunID = deref(workflowRunID)
		l.AgentRole = deref(agentRole)
		l.FallbackReason = deref(fallbackReason)
		l.PromptPreview = deref(promptPreview)
		l.ResponsePreview = deref(responsePreview)
		l.Error = deref(errStr)
		if chapterNumber != nil {
			l.ChapterNumber = *chapterNumber
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &l.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating call log rows: %w", err)
	}
	return out, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
