// Package modelclient implements the single ModelClient capability (C2):
// invoke a primary provider, transparently fail over to a fallback provider
// on a quota/credit error, and record every call to CostLedger.
//
// Grounded on original_source/.../agents/agents/base/agent.py's
// _should_fallback_to_openai / persisted-fallback idiom, and on the
// teacher's consumption of github.com/tmc/langchaingo/llms.Model in
// ptc/ptc_agent.go and showcases/chat/pkg/chat/chat.go.
package modelclient

import (
	"context"

	"github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/llms"
)

// Options configures a single Invoke call.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Result is what a provider (and therefore ModelClient.Invoke) returns.
type Result struct {
	Content    string
	InputTokens int
	OutputTokens int
	StopReason string
}

// Provider is the minimal capability a vendor SDK must expose to back a
// ModelClient leg (primary or fallback).
type Provider interface {
	Name() string
	Model() string
	Generate(ctx context.Context, systemPrompt, userPrompt string, opts Options) (Result, error)
}

// LangchainProvider adapts a github.com/tmc/langchaingo/llms.Model (the
// Anthropic-class primary per spec section 4.2) to Provider.
type LangchainProvider struct {
	name  string
	model string
	llm   llms.Model
}

// NewLangchainProvider wraps an llms.Model under the given provider/model
// names used for pricing lookups and CallLog rows.
func NewLangchainProvider(name, model string, llm llms.Model) *LangchainProvider {
	return &LangchainProvider{name: name, model: model, llm: llm}
}

func (p *LangchainProvider) Name() string  { return p.name }
func (p *LangchainProvider) Model() string { return p.model }

func (p *LangchainProvider) Generate(ctx context.Context, systemPrompt, userPrompt string, opts Options) (Result, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, userPrompt),
	}

	callOpts := []llms.CallOption{}
	if opts.Temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}

	resp, err := p.llm.GenerateContent(ctx, messages, callOpts...)
	if err != nil {
		return Result{}, err
	}
	if len(resp.Choices) == 0 {
		return Result{}, errEmptyResponse
	}

	choice := resp.Choices[0]
	inTok, outTok := tokensFromGenerationInfo(choice.GenerationInfo)
	if inTok == 0 && outTok == 0 {
		inTok = estimateTokens(systemPrompt + userPrompt)
		outTok = estimateTokens(choice.Content)
	}

	return Result{
		Content:      choice.Content,
		InputTokens:  inTok,
		OutputTokens: outTok,
		StopReason:   choice.StopReason,
	}, nil
}

func tokensFromGenerationInfo(info map[string]any) (input, output int) {
	if info == nil {
		return 0, 0
	}
	if v, ok := info["PromptTokens"].(int); ok {
		input = v
	}
	if v, ok := info["CompletionTokens"].(int); ok {
		output = v
	}
	return input, output
}

// OpenAIProvider adapts github.com/sashabaranov/go-openai directly (the
// OpenAI-class fallback per spec section 4.2, named literally — this is the
// vendor the original Python's ChatOpenAI fallback used).
type OpenAIProvider struct {
	name   string
	model  string
	client *openai.Client
}

// NewOpenAIProvider builds a fallback provider for the given model.
func NewOpenAIProvider(model string, client *openai.Client) *OpenAIProvider {
	return &OpenAIProvider{name: "openai", model: model, client: client}
}

func (p *OpenAIProvider) Name() string  { return p.name }
func (p *OpenAIProvider) Model() string { return p.model }

func (p *OpenAIProvider) Generate(ctx context.Context, systemPrompt, userPrompt string, opts Options) (Result, error) {
	req := openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	}
	if opts.Temperature > 0 {
		req.Temperature = float32(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if len(resp.Choices) == 0 {
		return Result{}, errEmptyResponse
	}

	stopReason := string(resp.Choices[0].FinishReason)
	return Result{
		Content:      resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		StopReason:   stopReason,
	}, nil
}

// estimateTokens is a last-resort ~4-chars-per-token estimate used only
// when a provider's response carries no usage metadata. No ecosystem
// tokenizer ships a provider-agnostic count; this mirrors the same ~4
// chars/token heuristic spec section 4.4 specifies for build_context.
func estimateTokens(s string) int {
	return (len(s) + 3) / 4
}

var errEmptyResponse = providerError("model returned no choices")

type providerError string

func (e providerError) Error() string { return string(e) }
