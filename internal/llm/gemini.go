package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// GeminiClient calls Google Gemini through the genai SDK.
type GeminiClient struct {
	client    *genai.Client
	pingModel string
	logger    *slog.Logger
}

// NewGeminiClient creates a Gemini API client. pingModel is looked up
// by Ping to confirm the key works.
func NewGeminiClient(ctx context.Context, apiKey, pingModel string, logger *slog.Logger) (*GeminiClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiClient{
		client:    client,
		pingModel: pingModel,
		logger:    logger.With("provider", "gemini"),
	}, nil
}

// Chat sends a GenerateContent request.
func (c *GeminiClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	system, contents := convertToGemini(messages)

	config := &genai.GenerateContentConfig{Tools: convertToolsToGemini(tools)}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	c.logger.Debug("preparing request", "model", model, "contents", len(contents), "tools", len(tools))

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	out := convertFromGemini(resp)
	out.Model = model

	c.logger.Debug("response received",
		"model", model,
		"input_tokens", out.InputTokens,
		"output_tokens", out.OutputTokens,
		"tool_calls", len(out.Message.ToolCalls),
	)
	return out, nil
}

// Ping fetches the model's metadata.
func (c *GeminiClient) Ping(ctx context.Context) error {
	if _, err := c.client.Models.Get(ctx, c.pingModel, nil); err != nil {
		return fmt.Errorf("get model %s: %w", c.pingModel, err)
	}
	return nil
}

func convertToGemini(messages []Message) (string, []*genai.Content) {
	var system []string
	var contents []*genai.Content

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			system = append(system, msg.Content)

		case "assistant":
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.NewPartFromText(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, genai.NewPartFromFunctionCall(tc.Function.Name, tc.Function.Arguments))
			}
			if len(parts) > 0 {
				contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
			}

		case "user", "tool":
			parts := make([]*genai.Part, 0, len(msg.Images)+1)
			for _, img := range msg.Images {
				parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
			}
			parts = append(parts, genai.NewPartFromText(msg.Content))
			contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
		}
	}

	return strings.Join(system, "\n\n"), contents
}

func convertToolsToGemini(tools []map[string]any) []*genai.Tool {
	var decls []*genai.FunctionDeclaration
	for _, tool := range tools {
		fn, ok := tool["function"].(map[string]any)
		if !ok {
			continue
		}
		name, _ := fn["name"].(string)
		desc, _ := fn["description"].(string)
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 name,
			Description:          desc,
			ParametersJsonSchema: fn["parameters"],
		})
	}
	if len(decls) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func convertFromGemini(resp *genai.GenerateContentResponse) *ChatResponse {
	out := &ChatResponse{Message: Message{Role: "assistant"}}
	if resp == nil {
		return out
	}
	out.Message.Content = resp.Text()
	for _, fc := range resp.FunctionCalls() {
		out.Message.ToolCalls = append(out.Message.ToolCalls, ToolCall{
			ID:       fc.ID,
			Function: FunctionCall{Name: fc.Name, Arguments: fc.Args},
		})
	}
	if u := resp.UsageMetadata; u != nil {
		out.InputTokens = int(u.PromptTokenCount)
		out.OutputTokens = int(u.CandidatesTokenCount)
	}
	return out
}
