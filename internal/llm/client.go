// Package llm talks to language-model providers and fronts them with a
// Gateway that falls back across providers and never fails its caller.
package llm

import "context"

// Client is implemented by every provider.
type Client interface {
	// Chat sends one non-streaming completion request.
	Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error)

	// Ping checks that the provider is reachable and usable right now.
	Ping(ctx context.Context) error
}
