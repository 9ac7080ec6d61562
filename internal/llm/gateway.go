package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/thane-voice/internal/events"
)

// DefaultDegradedText is spoken when no provider could answer.
const DefaultDegradedText = "I can't reach any of my language models right now. Please try again in a moment."

var errEmptyResponse = errors.New("empty response")

// Provider is one registered backend.
type Provider struct {
	Name   string
	Client Client
	Model  string // default model for this provider
}

// Request is one gateway call.
type Request struct {
	// Model overrides the default model of the first provider tried.
	// Fallback providers always use their own default.
	Model    string
	Messages []Message
	Tools    []map[string]any
	// Images are attached to the last user message.
	Images []Image
}

// Response is the gateway's answer. When every provider failed,
// Degraded is set and Content holds the degraded text.
type Response struct {
	Content   string
	ToolCalls []ToolCall
	Provider  string
	Model     string
	Degraded  bool
}

// GatewayConfig tunes fallback behavior.
type GatewayConfig struct {
	Preferred    string
	Timeout      time.Duration // per Ping and per Chat
	DegradedText string
}

// Gateway fronts a fixed set of providers. It tries the preferred
// provider first and then every other provider in registration order,
// running a fresh availability check before each chat. Provider health
// is never cached, so a recovered provider is used on the next call.
type Gateway struct {
	providers []Provider
	cfg       GatewayConfig
	bus       *events.Bus
	logger    *slog.Logger
}

// NewGateway creates a gateway over providers, which are kept in the
// given order.
func NewGateway(providers []Provider, cfg GatewayConfig, bus *events.Bus, logger *slog.Logger) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.DegradedText == "" {
		cfg.DegradedText = DefaultDegradedText
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		providers: providers,
		cfg:       cfg,
		bus:       bus,
		logger:    logger.With("component", "gateway"),
	}
}

// Providers returns provider names in attempt order.
func (g *Gateway) Providers() []string {
	order := g.order()
	names := make([]string, len(order))
	for i, p := range order {
		names[i] = p.Name
	}
	return names
}

func (g *Gateway) order() []Provider {
	order := make([]Provider, 0, len(g.providers))
	for _, p := range g.providers {
		if p.Name == g.cfg.Preferred {
			order = append(order, p)
		}
	}
	for _, p := range g.providers {
		if p.Name != g.cfg.Preferred {
			order = append(order, p)
		}
	}
	return order
}

// Chat returns the first non-empty answer from the providers. It never
// returns an error: when every provider fails the response is degraded.
func (g *Gateway) Chat(ctx context.Context, req Request) Response {
	messages := withImages(req.Messages, req.Images)

	attempts := 0
	for i, p := range g.order() {
		if ctx.Err() != nil {
			break
		}
		model := p.Model
		if i == 0 && req.Model != "" {
			model = req.Model
		}

		attempts++
		g.bus.Emit(events.SourceGateway, events.KindProviderAttempt, map[string]any{
			"provider": p.Name, "model": model,
		})
		start := time.Now()

		resp, stage, err := g.attempt(ctx, p, model, messages, req.Tools)
		if err != nil {
			g.logger.Warn("provider unavailable",
				"provider", p.Name, "model", model, "stage", stage, "error", err)
			g.bus.Emit(events.SourceGateway, events.KindProviderFailed, map[string]any{
				"provider": p.Name, "stage": stage, "error": err.Error(),
			})
			continue
		}

		g.logger.Debug("provider answered",
			"provider", p.Name, "model", model,
			"elapsed", time.Since(start), "tool_calls", len(resp.Message.ToolCalls))
		g.bus.Emit(events.SourceGateway, events.KindProviderAnswered, map[string]any{
			"provider":   p.Name,
			"model":      model,
			"tool_calls": len(resp.Message.ToolCalls),
			"elapsed_ms": time.Since(start).Milliseconds(),
		})
		return Response{
			Content:   resp.Message.Content,
			ToolCalls: resp.Message.ToolCalls,
			Provider:  p.Name,
			Model:     model,
		}
	}

	g.logger.Error("all providers failed", "attempts", attempts)
	g.bus.Emit(events.SourceGateway, events.KindDegraded, map[string]any{"attempts": attempts})
	return Response{Content: g.cfg.DegradedText, Degraded: true}
}

// attempt runs one availability check and one chat, each under the
// configured timeout. Panics are converted into errors.
func (g *Gateway) attempt(ctx context.Context, p Provider, model string, messages []Message, tools []map[string]any) (resp *ChatResponse, stage string, err error) {
	stage = "ping"
	defer func() {
		if r := recover(); r != nil {
			resp, err = nil, fmt.Errorf("provider panicked: %v", r)
		}
	}()

	if p.Client == nil {
		return nil, stage, errors.New("no client")
	}

	pingCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	err = p.Client.Ping(pingCtx)
	cancel()
	if err != nil {
		return nil, stage, err
	}

	stage = "chat"
	chatCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()
	resp, err = p.Client.Chat(chatCtx, model, messages, tools)
	if err != nil {
		return nil, stage, err
	}
	if resp.Empty() {
		return nil, stage, errEmptyResponse
	}
	return resp, stage, nil
}

// withImages copies messages and attaches images to the last user
// message.
func withImages(messages []Message, images []Image) []Message {
	if len(images) == 0 {
		return messages
	}
	out := make([]Message, len(messages))
	copy(out, messages)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i].Role == "user" {
			out[i].Images = append(append([]Image(nil), out[i].Images...), images...)
			break
		}
	}
	return out
}
