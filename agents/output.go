// Package agents implements the seven role agents (C5): OutlinePlanner,
// OutlineCritic, ContentDrafter, VoiceEditor, FactChecker, CohesionAnalyst,
// VoiceAnalyst. Each wraps a modelclient.Client with a role-scoped system
// prompt and returns the shared AgentOutput contract. JSON-emitting roles
// share a tolerant parser grounded on the teacher's
// prebuilt/planning_agent_generic.go (extractJSONTyped: markdown-fence
// extraction, then brace-matched fallback, then raw text).
package agents

import (
	"encoding/json"
	"regexp"

	"github.com/ghostline-hq/ghostline/costledger"
	"github.com/ghostline-hq/ghostline/modelclient"
)

// Output is the contract every agent.process(state) call returns, per
// spec section 4.5.
type Output struct {
	Content        string         `json:"content"`
	StructuredData map[string]any `json:"structured_data,omitempty"`
	Confidence     float64        `json:"confidence"`
	Reasoning      string         `json:"reasoning,omitempty"`
	TokensUsed     int            `json:"tokens_used"`
	EstimatedCost  float64        `json:"estimated_cost"`
	DurationMS     int64          `json:"duration_ms"`
	Error          string         `json:"error,omitempty"`
}

func outputFromResult(client *modelclient.Client, res modelclient.Result, durationMS int64, confidence float64) Output {
	provider, model := client.ActiveProvider()
	_, _, totalCost, _ := costledger.Cost(provider, model, res.InputTokens, res.OutputTokens)
	return Output{
		Content:       res.Content,
		Confidence:    confidence,
		TokensUsed:    res.InputTokens + res.OutputTokens,
		EstimatedCost: totalCost,
		DurationMS:    durationMS,
	}
}

var (
	codeFencePattern = regexp.MustCompile(`(?s)` + "```" + `(?:json)?\s*(\{.*?\})\s*` + "```")
	braceObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)
)

// extractJSON pulls a JSON object out of a model response that may wrap it
// in a ```json fence or surround it with prose, grounded on
// prebuilt/planning_agent_generic.go's extractJSONTyped.
func extractJSON(text string) string {
	if m := codeFencePattern.FindStringSubmatch(text); len(m) > 1 {
		return m[1]
	}
	if m := braceObjectPattern.FindString(text); m != "" {
		return m
	}
	return text
}

// parseJSON unmarshals the tolerant-extracted JSON from text into v,
// returning an error (never panicking) on total failure so callers can
// fall back to role-specific conservative defaults.
func parseJSON(text string, v any) error {
	return json.Unmarshal([]byte(extractJSON(text)), v)
}
