// Package costledger records every LLM call with its token counts,
// computed cost, and filter keys, and answers aggregate cost queries.
// Grounded on original_source/.../cost_tracker.py (CostRecord/CostSummary
// shape and pricing fallback behavior) and on the teacher's
// graph/checkpointing.go "fail closed" idiom for persistence writes.
package costledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ghostline-hq/ghostline/domain"
	"github.com/ghostline-hq/ghostline/logging"
)

// Context is the per-task-scoped cost metadata attached to every call log.
// SPEC_FULL.md section 9 calls for this to be an explicit value threaded
// through context.Context rather than a process-global — the translation
// of the original Python service's module-level cost-context variable.
type Context struct {
	ProjectID     string
	TaskID        string
	WorkflowRunID string
	ChapterNumber int
}

type ctxKey struct{}

// WithContext returns a derived context carrying the given cost Context.
func WithContext(ctx context.Context, cc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, cc)
}

// FromContext extracts the cost Context previously attached with
// WithContext, returning the zero value if none is present.
func FromContext(ctx context.Context) Context {
	if cc, ok := ctx.Value(ctxKey{}).(Context); ok {
		return cc
	}
	return Context{}
}

// Store is the narrow persistence capability CostLedger writes through.
type Store interface {
	InsertCallLog(ctx context.Context, log domain.CallLog) error
	ListCallLogs(ctx context.Context, f Filter) ([]domain.CallLog, error)
}

// Filter selects a subset of call logs for Summary. Any subset of fields
// may be set; zero values are "no filter" for that field.
type Filter struct {
	TaskID        string
	ProjectID     string
	WorkflowRunID string
	StartDate     time.Time
	EndDate       time.Time
}

// Ledger is the CostLedger capability (C1): record calls, summarize costs.
type Ledger struct {
	store Store
	log   logging.Logger
}

// New constructs a Ledger backed by store, logging failures with log.
func New(store Store, log logging.Logger) *Ledger {
	if log == nil {
		log = logging.NoOp{}
	}
	return &Ledger{store: store, log: log.With("costledger")}
}

// RecordInput is the raw measurement a ModelClient call produces; Record
// computes cost from it and persists the resulting CallLog.
type RecordInput struct {
	AgentName       string
	Model           string
	Provider        string
	CallType        string
	InputTokens     int
	OutputTokens    int
	DurationMS      int64
	Success         bool
	AgentRole       string
	IsFallback      bool
	FallbackReason  string
	PromptPreview   string
	ResponsePreview string
	Error           string
	Metadata        map[string]any
}

const previewLimit = 500

// Record persists one CallLog row. It always fails closed: a storage error
// is logged and swallowed so that a ledger outage never aborts generation,
// mirroring the teacher's CheckpointListener.OnGraphStep save-error swallow.
func (l *Ledger) Record(ctx context.Context, in RecordInput) domain.CallLog {
	cc := FromContext(ctx)
	inputCost, outputCost, totalCost, known := Cost(in.Provider, in.Model, in.InputTokens, in.OutputTokens)
	if !known {
		l.log.Warn("no pricing entry for %s/%s, using conservative default", in.Provider, in.Model)
	}

	entry := domain.CallLog{
		ID:              uuid.NewString(),
		AgentName:       in.AgentName,
		Model:           in.Model,
		Provider:        in.Provider,
		CallType:        in.CallType,
		InputTokens:     in.InputTokens,
		OutputTokens:    in.OutputTokens,
		InputCost:       inputCost,
		OutputCost:      outputCost,
		TotalCost:       totalCost,
		DurationMS:      in.DurationMS,
		Success:         in.Success,
		ProjectID:       cc.ProjectID,
		TaskID:          cc.TaskID,
		WorkflowRunID:   cc.WorkflowRunID,
		ChapterNumber:   cc.ChapterNumber,
		AgentRole:       in.AgentRole,
		IsFallback:      in.IsFallback,
		FallbackReason:  in.FallbackReason,
		PromptPreview:   truncate(in.PromptPreview, previewLimit),
		ResponsePreview: truncate(in.ResponsePreview, previewLimit),
		Error:           in.Error,
		Metadata:        in.Metadata,
		CreatedAt:       time.Now(),
	}

	if l.store != nil {
		if err := l.store.InsertCallLog(ctx, entry); err != nil {
			l.log.Warn("failed to persist call log for agent %s: %v", in.AgentName, err)
		}
	}
	return entry
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// Summary is the aggregate view CostLedger.Summary returns.
type Summary struct {
	TotalCalls   int                `json:"total_calls"`
	TotalTokens  int                `json:"total_tokens"`
	TotalCost    float64            `json:"total_cost"`
	ByModel      map[string]float64 `json:"by_model"`
	ByAgent      map[string]float64 `json:"by_agent"`
	ByChapter    map[int]float64    `json:"by_chapter"`
	ByProvider   map[string]float64 `json:"by_provider"`
	AvgCostPerCall float64          `json:"avg_cost_per_call"`
	SuccessRate  float64            `json:"success_rate"`
}

// Summary aggregates call logs matching the given filter.
func (l *Ledger) Summary(ctx context.Context, f Filter) (Summary, error) {
	logs, err := l.store.ListCallLogs(ctx, f)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{
		ByModel:    map[string]float64{},
		ByAgent:    map[string]float64{},
		ByChapter:  map[int]float64{},
		ByProvider: map[string]float64{},
	}

	var successes int
	for _, c := range logs {
		s.TotalCalls++
		s.TotalTokens += c.InputTokens + c.OutputTokens
		s.TotalCost += c.TotalCost
		s.ByModel[c.Model] += c.TotalCost
		s.ByAgent[c.AgentName] += c.TotalCost
		s.ByProvider[c.Provider] += c.TotalCost
		if c.ChapterNumber != 0 {
			s.ByChapter[c.ChapterNumber] += c.TotalCost
		}
		if c.Success {
			successes++
		}
	}

	if s.TotalCalls > 0 {
		s.AvgCostPerCall = s.TotalCost / float64(s.TotalCalls)
		s.SuccessRate = float64(successes) / float64(s.TotalCalls)
	}
	return s, nil
}
