// Package llm provides LLM provider implementations and the bounded
// gateway the turn pipeline calls through.
package llm

import (
	"context"
	"fmt"
	"os"
)

// Client is the provider contract: one prompt in, one completion out.
// Implementations must return an error rather than panic on failure;
// callers treat any error as "no response this turn".
type Client interface {
	Generate(ctx context.Context, prompt, systemPrompt string) (string, error)
	Model() string
}

// Config selects and parameterizes a provider.
type Config struct {
	Provider    string  // "gemini", "anthropic" or "openai"
	Model       string  // provider-specific model name; empty uses a default
	APIKey      string  // empty falls back to the provider's env var
	Temperature float64 // <0 leaves the provider default
}

// New creates a client for the configured provider.
func New(ctx context.Context, cfg Config) (Client, error) {
	switch cfg.Provider {
	case "", "gemini":
		return NewGeminiClient(ctx, cfg)
	case "anthropic":
		return NewAnthropicClient(cfg)
	case "openai":
		return NewOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q (supported: gemini, anthropic, openai)", cfg.Provider)
	}
}

func apiKeyOrEnv(key, envVar string) string {
	if key != "" {
		return key
	}
	return os.Getenv(envVar)
}
