package costledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ghostline-hq/ghostline/domain"
	"github.com/ghostline-hq/ghostline/logging"
)

type memStore struct {
	logs    []domain.CallLog
	failing bool
}

func (m *memStore) InsertCallLog(ctx context.Context, log domain.CallLog) error {
	if m.failing {
		return errors.New("storage unavailable")
	}
	m.logs = append(m.logs, log)
	return nil
}

func (m *memStore) ListCallLogs(ctx context.Context, f Filter) ([]domain.CallLog, error) {
	var out []domain.CallLog
	for _, l := range m.logs {
		if f.WorkflowRunID != "" && l.WorkflowRunID != f.WorkflowRunID {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func TestRecordComputesCostFromPricingTable(t *testing.T) {
	store := &memStore{}
	l := New(store, logging.NoOp{})

	entry := l.Record(context.Background(), RecordInput{
		AgentName:    "OutlinePlanner",
		Model:        "claude-3-5-sonnet-20241022",
		Provider:     "anthropic",
		InputTokens:  1000,
		OutputTokens: 2000,
		Success:      true,
	})

	assert.InDelta(t, 0.003, entry.InputCost, 1e-9)
	assert.InDelta(t, 0.030, entry.OutputCost, 1e-9)
	assert.InDelta(t, 0.033, entry.TotalCost, 1e-9)
	require.Len(t, store.logs, 1)
}

type capturingLogger struct {
	logging.NoOp
	warnings []string
}

func (c *capturingLogger) Warn(format string, v ...any) {
	c.warnings = append(c.warnings, format)
}

func (c *capturingLogger) With(string) logging.Logger { return c }

func TestRecordWarnsOnUnknownPricing(t *testing.T) {
	store := &memStore{}
	log := &capturingLogger{}
	l := New(store, log)

	l.Record(context.Background(), RecordInput{
		AgentName: "OutlinePlanner",
		Model:     "claude-unreleased-model",
		Provider:  "anthropic",
	})

	assert.Len(t, log.warnings, 1)
}

func TestRecordFailsClosedOnStorageError(t *testing.T) {
	store := &memStore{failing: true}
	l := New(store, logging.NoOp{})

	assert.NotPanics(t, func() {
		l.Record(context.Background(), RecordInput{Model: "gpt-4o", Provider: "openai"})
	})
}

func TestUnknownModelUsesConservativeDefault(t *testing.T) {
	in, out, known := Pricing("anthropic", "claude-unreleased-model")
	assert.False(t, known)
	assert.Equal(t, 0.01, in)
	assert.Equal(t, 0.01, out)
}

func TestEmbeddingModelHasZeroOutputCost(t *testing.T) {
	_, outCost, _, known := Cost("openai", "text-embedding-3-small", 1000, 0)
	assert.Equal(t, 0.0, outCost)
	assert.True(t, known)
}

// TestCostAdditivity is testable property 1 from spec section 8: for any
// workflow_run_id, summing call.total_cost equals Summary's total_cost.
func TestCostAdditivity(t *testing.T) {
	store := &memStore{}
	l := New(store, logging.NoOp{})
	ctx := WithContext(context.Background(), Context{WorkflowRunID: "run-1"})

	var want float64
	for i := 0; i < 5; i++ {
		entry := l.Record(ctx, RecordInput{
			Model:        "gpt-4o",
			Provider:     "openai",
			InputTokens:  100 * (i + 1),
			OutputTokens: 50,
			Success:      true,
		})
		want += entry.TotalCost
	}

	summary, err := l.Summary(ctx, Filter{WorkflowRunID: "run-1"})
	require.NoError(t, err)
	assert.InDelta(t, want, summary.TotalCost, 1e-9)
	assert.Equal(t, 5, summary.TotalCalls)
}

func TestCostContextIsPerCallNotGlobal(t *testing.T) {
	ctxA := WithContext(context.Background(), Context{ProjectID: "A"})
	ctxB := WithContext(context.Background(), Context{ProjectID: "B"})

	assert.Equal(t, "A", FromContext(ctxA).ProjectID)
	assert.Equal(t, "B", FromContext(ctxB).ProjectID)
	assert.Equal(t, "", FromContext(context.Background()).ProjectID)
}
