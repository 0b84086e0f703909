package modelclient

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ghostline-hq/ghostline/costledger"
	"github.com/ghostline-hq/ghostline/logging"
)

// isQuotaError reports whether err's text carries a vendor billing/quota
// signal, grounded on original_source/.../agents/agents/base/agent.py's
// _should_fallback_to_openai: "credit balance is too low", "plans & billing"
// + "anthropic", "insufficient" + "anthropic" (plus the variants "credit
// balance too low" and "insufficient credits").
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "credit balance is too low") || strings.Contains(msg, "credit balance too low") {
		return true
	}
	if strings.Contains(msg, "insufficient credits") {
		return true
	}
	if strings.Contains(msg, "plans & billing") && strings.Contains(msg, "anthropic") {
		return true
	}
	if strings.Contains(msg, "insufficient") && strings.Contains(msg, "anthropic") {
		return true
	}
	return false
}

// Client is the ModelClient capability (C2): invoke(system, user, options).
// Exactly two providers are configured (primary, fallback); on a quota
// error from primary, with fallback enabled and configured, Client
// transparently re-issues the call against fallback and then pins the
// agent instance to fallback for subsequent calls (spec section 4.2).
type Client struct {
	mu               sync.Mutex
	primary          Provider
	fallback         Provider
	usingFallback    bool
	allowFallback    bool
	strictMode       bool
	ledger           *costledger.Ledger
	log              logging.Logger
	timeout          time.Duration

	agentName string
	agentRole string
}

// Config constructs a Client.
type Config struct {
	Primary       Provider
	Fallback      Provider // may be nil
	AllowFallback bool
	StrictMode    bool
	Ledger        *costledger.Ledger
	Logger        logging.Logger
	Timeout       time.Duration // default 120s per spec section 5
	AgentName     string
	AgentRole     string
}

// New constructs a ModelClient for one agent instance. Each agent gets its
// own Client so that a fallback pin (spec: "Persist this switch on the
// agent instance") does not leak across agents.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logging.NoOp{}
	}
	allow := cfg.AllowFallback && !cfg.StrictMode
	return &Client{
		primary:       cfg.Primary,
		fallback:      cfg.Fallback,
		allowFallback: allow,
		strictMode:    cfg.StrictMode,
		ledger:        cfg.Ledger,
		log:           log.With("modelclient"),
		timeout:       cfg.Timeout,
		agentName:     cfg.AgentName,
		agentRole:     cfg.AgentRole,
	}
}

// Invoke issues one model call, applying fallback policy and recording the
// outcome to CostLedger regardless of success, fallback, or failure.
func (c *Client) Invoke(ctx context.Context, systemPrompt, userPrompt string, opts Options) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.mu.Lock()
	useFallback := c.usingFallback
	c.mu.Unlock()

	if useFallback && c.fallback != nil {
		return c.call(ctx, c.fallback, systemPrompt, userPrompt, opts, true, "pinned from earlier fallback")
	}

	start := time.Now()
	res, err := c.primary.Generate(ctx, systemPrompt, userPrompt, opts)
	if err == nil {
		c.record(ctx, c.primary, systemPrompt, userPrompt, res, time.Since(start), true, false, "")
		return res, nil
	}

	if c.strictMode || !c.allowFallback || c.fallback == nil || !isQuotaError(err) {
		c.record(ctx, c.primary, systemPrompt, userPrompt, Result{}, time.Since(start), false, false, err.Error())
		return Result{}, err
	}

	c.log.Warn("%s call failed (likely insufficient credits), falling back to %s: %v", c.agentName, c.fallback.Name(), err)
	c.record(ctx, c.primary, systemPrompt, userPrompt, Result{}, time.Since(start), false, false, err.Error())

	fallbackRes, fbErr := c.call(ctx, c.fallback, systemPrompt, userPrompt, opts, true, err.Error())
	if fbErr == nil {
		c.mu.Lock()
		c.usingFallback = true
		c.mu.Unlock()
	}
	return fallbackRes, fbErr
}

func (c *Client) call(ctx context.Context, p Provider, systemPrompt, userPrompt string, opts Options, isFallback bool, reason string) (Result, error) {
	start := time.Now()
	res, err := p.Generate(ctx, systemPrompt, userPrompt, opts)
	c.record(ctx, p, systemPrompt, userPrompt, res, time.Since(start), err == nil, isFallback, errString(err, reason))
	return res, err
}

func errString(err error, fallbackReason string) string {
	if err != nil {
		return err.Error()
	}
	return fallbackReason
}

func (c *Client) record(ctx context.Context, p Provider, systemPrompt, userPrompt string, res Result, dur time.Duration, success, isFallback bool, errOrReason string) {
	if c.ledger == nil {
		return
	}
	in := costledger.RecordInput{
		AgentName:       c.agentName,
		Model:           p.Model(),
		Provider:        p.Name(),
		CallType:        "chat",
		InputTokens:     res.InputTokens,
		OutputTokens:    res.OutputTokens,
		DurationMS:      dur.Milliseconds(),
		Success:         success,
		AgentRole:       c.agentRole,
		IsFallback:      isFallback,
		PromptPreview:   systemPrompt + "\n" + userPrompt,
		ResponsePreview: res.Content,
	}
	if isFallback {
		in.FallbackReason = errOrReason
	}
	if !success {
		in.Error = errOrReason
	}
	c.ledger.Record(ctx, in)
}

// IsUsingFallback reports whether this client has pinned to its fallback
// provider for a prior quota error.
func (c *Client) IsUsingFallback() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usingFallback
}

// ActiveProvider returns the provider/model pair the next Invoke call would
// use, so callers can price a result with costledger.Cost without Client
// taking a direct costledger dependency beyond the ledger it already
// records through.
func (c *Client) ActiveProvider() (provider, model string) {
	c.mu.Lock()
	useFallback := c.usingFallback
	c.mu.Unlock()
	if useFallback && c.fallback != nil {
		return c.fallback.Name(), c.fallback.Model()
	}
	return c.primary.Name(), c.primary.Model()
}
