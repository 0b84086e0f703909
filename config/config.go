// Package config resolves the GHOSTLINE_* environment flags named in
// spec section 6 into a typed, explicitly-constructed Config value. There is
// no package-level singleton: callers build one Config and pass it down,
// per the dependency-injection translation note in SPEC_FULL.md section 9.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Config is the resolved set of runtime flags consumed by the workflow
// core. Construct it once per process with Load and thread it explicitly.
type Config struct {
	// StrictMode disables placeholders and LLM fallback, and makes any
	// agent/subgraph failure or quality-gate failure fatal.
	StrictMode bool

	// AllowLLMFallback enables the primary-to-fallback provider switch on
	// quota errors. Forced false when StrictMode is set.
	AllowLLMFallback bool

	// RAGRerank enables the coverage-aware rerank pass in the retriever.
	RAGRerank bool

	// DestructiveSanitizer records GHOSTLINE_DESTRUCTIVE_SANITIZER. Off by
	// default. No caller reads it: chapter finalization always runs
	// grounding.SanitizeGrounding in non-destructive mode.
	DestructiveSanitizer bool

	// OpenAIFallbackModel is the model used when falling back to OpenAI.
	OpenAIFallbackModel string
}

// Load builds a Config from the process environment.
func Load() Config {
	cfg := Config{
		StrictMode:           truthy(os.Getenv("GHOSTLINE_STRICT_MODE"), false),
		AllowLLMFallback:     truthy(os.Getenv("GHOSTLINE_ALLOW_LLM_FALLBACK"), true),
		RAGRerank:            truthy(os.Getenv("GHOSTLINE_RAG_RERANK"), true),
		DestructiveSanitizer: truthy(os.Getenv("GHOSTLINE_DESTRUCTIVE_SANITIZER"), false),
		OpenAIFallbackModel:  stringOrDefault(os.Getenv("OPENAI_FALLBACK_MODEL"), "gpt-4o"),
	}
	if cfg.StrictMode {
		cfg.AllowLLMFallback = false
	}
	return cfg
}

func truthy(v string, def bool) bool {
	v = strings.TrimSpace(strings.ToLower(v))
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

func stringOrDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
