package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseTextToolCalls(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		validTools []string
		wantCount  int
		wantName   string
	}{
		{name: "empty", content: "", wantCount: 0},
		{name: "plain text", content: "The sun is up.", wantCount: 0},
		{
			name:      "single object",
			content:   `{"name": "core_timer", "arguments": {"seconds": "60"}}`,
			wantCount: 1,
			wantName:  "core_timer",
		},
		{
			name:      "array",
			content:   `[{"name": "core_time", "arguments": {}}, {"name": "core_date", "arguments": {}}]`,
			wantCount: 2,
			wantName:  "core_time",
		},
		{
			name:      "tagged with preamble",
			content:   `Sure. <tool_call>{"name": "memory_get", "arguments": {}}</tool_call>`,
			wantCount: 1,
			wantName:  "memory_get",
		},
		{
			name:      "reply object is not a tool call",
			content:   `{"text": "Hello", "command": "", "params": {}}`,
			wantCount: 0,
		},
		{
			name:       "unknown tool rejected",
			content:    `{"name": "rm_rf", "arguments": {}}`,
			validTools: []string{"core_timer"},
			wantCount:  0,
		},
		{
			name:       "mixed array filtered",
			content:    `[{"name": "core_timer", "arguments": {}}, {"name": "bogus", "arguments": {}}]`,
			validTools: []string{"core_timer"},
			wantCount:  1,
			wantName:   "core_timer",
		},
		{name: "malformed", content: `{"name": "core_timer", "arguments": {`, wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTextToolCalls(tt.content, tt.validTools)
			if len(got) != tt.wantCount {
				t.Fatalf("parseTextToolCalls() returned %d calls, want %d", len(got), tt.wantCount)
			}
			if tt.wantCount > 0 && got[0].Function.Name != tt.wantName {
				t.Errorf("first call = %q, want %q", got[0].Function.Name, tt.wantName)
			}
		})
	}
}

func TestToolNames(t *testing.T) {
	tools := []map[string]any{
		{"type": "function", "function": map[string]any{"name": "core_timer"}},
		{"broken": true},
		{"type": "function", "function": map[string]any{"name": "memory_get"}},
	}
	got := toolNames(tools)
	if len(got) != 2 || got[0] != "core_timer" || got[1] != "memory_get" {
		t.Errorf("toolNames() = %v", got)
	}
}

func TestOllamaClient_Chat(t *testing.T) {
	var gotReq ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q, want /api/chat", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(`{
			"model": "qwen3:4b",
			"message": {"role": "assistant", "content": "{\"name\": \"core_timer\", \"arguments\": {\"seconds\": \"60\"}}"},
			"done": true,
			"prompt_eval_count": 42,
			"eval_count": 7
		}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, quietLogger())
	tools := []map[string]any{{"type": "function", "function": map[string]any{"name": "core_timer"}}}
	msgs := []Message{{Role: "user", Content: "timer", Images: []Image{{MIMEType: "image/png", Data: []byte("png")}}}}

	resp, err := c.Chat(context.Background(), "qwen3:4b", msgs, tools)
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if gotReq.Stream {
		t.Error("request should not stream")
	}
	if len(gotReq.Messages) != 1 || string(gotReq.Messages[0].Images[0]) != "png" {
		t.Errorf("images not sent: %+v", gotReq.Messages)
	}
	if len(resp.Message.ToolCalls) != 1 || resp.Message.Content != "" {
		t.Errorf("text tool call not extracted: %+v", resp.Message)
	}
	if resp.InputTokens != 42 || resp.OutputTokens != 7 {
		t.Errorf("tokens = %d/%d, want 42/7", resp.InputTokens, resp.OutputTokens)
	}
}

func TestOllamaClient_Ping(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(`{"models": []}`))
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, quietLogger())
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error: %v", err)
	}
	status = http.StatusServiceUnavailable
	if err := c.Ping(context.Background()); err == nil {
		t.Error("Ping() should fail on 503")
	}
}

func TestOllamaClient_ImplementsClient(t *testing.T) {
	var _ Client = (*OllamaClient)(nil)
	var _ Client = (*AnthropicClient)(nil)
	var _ Client = (*GeminiClient)(nil)
}
