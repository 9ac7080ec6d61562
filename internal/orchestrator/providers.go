package orchestrator

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nugget/thane-voice/internal/config"
	"github.com/nugget/thane-voice/internal/llm"
)

// buildProviders creates a provider for every configured backend, in
// registration order (ollama, anthropic, gemini).
func buildProviders(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]llm.Provider, error) {
	var providers []llm.Provider
	p := cfg.Providers

	if p.Ollama.Configured() {
		providers = append(providers, llm.Provider{
			Name:   "ollama",
			Client: llm.NewOllamaClient(p.Ollama.URL, logger),
			Model:  p.Ollama.Model,
		})
	}
	if p.Anthropic.Configured() {
		providers = append(providers, llm.Provider{
			Name:   "anthropic",
			Client: llm.NewAnthropicClient(p.Anthropic.APIKey, p.Anthropic.Model, logger),
			Model:  p.Anthropic.Model,
		})
	}
	if p.Gemini.Configured() {
		client, err := llm.NewGeminiClient(ctx, p.Gemini.APIKey, p.Gemini.Model, logger)
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		providers = append(providers, llm.Provider{Name: "gemini", Client: client, Model: p.Gemini.Model})
	}

	if len(providers) == 0 {
		return nil, fmt.Errorf("no language-model provider configured")
	}
	return providers, nil
}
