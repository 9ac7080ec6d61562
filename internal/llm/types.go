package llm

import (
	"log/slog"
)

// LevelTrace is below Debug, used for wire-level payload logging.
const LevelTrace = slog.Level(-8)

// Message is one chat message in provider-neutral form.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Images     []Image    `json:"-"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Image is an inline image for vision-capable models.
type Image struct {
	MIMEType string
	Data     []byte
}

// ToolCall is a function call chosen by the model.
type ToolCall struct {
	ID       string       `json:"id,omitempty"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the tool and carries its decoded arguments.
type FunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ChatResponse is the unified reply from any provider.
type ChatResponse struct {
	Model        string
	Message      Message
	InputTokens  int
	OutputTokens int
}

// Empty reports whether the response carries neither text nor tool
// calls. Empty responses count as provider failures.
func (r *ChatResponse) Empty() bool {
	return r == nil || (r.Message.Content == "" && len(r.Message.ToolCalls) == 0)
}

// toolNames extracts function names from OpenAI-style tool definitions.
func toolNames(tools []map[string]any) []string {
	var names []string
	for _, t := range tools {
		fn, ok := t["function"].(map[string]any)
		if !ok {
			continue
		}
		if name, ok := fn["name"].(string); ok && name != "" {
			names = append(names, name)
		}
	}
	return names
}
