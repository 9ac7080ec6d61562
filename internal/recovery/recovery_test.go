package recovery

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/nugget/thane-voice/internal/llm"
	"github.com/nugget/thane-voice/internal/prompts"
)

func TestIsErrorShaped(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"Error: timeout", true},
		{"Przepraszam, wystąpił błąd", true},
		{"Weather is sunny", false},
		{"", false},
		{"   ", false},
		{"Request TIMED OUT after 30s", true},
		{"Nie udało się połączyć", true},
		{"Verbindung fehlgeschlagen", true},
		{"Une erreur est survenue", true},
		{"La solicitud falló", true},
		{"Si è verificato un errore", true},
		{"It will be 21 degrees", false},
	}
	for _, tt := range tests {
		if got := IsErrorShaped(tt.text); got != tt.want {
			t.Errorf("IsErrorShaped(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

type fakeGateway struct {
	resp  llm.Response
	panic bool
	req   llm.Request
	calls int
}

func (f *fakeGateway) Chat(ctx context.Context, req llm.Request) llm.Response {
	f.calls++
	f.req = req
	if f.panic {
		panic("gateway exploded")
	}
	return f.resp
}

type fakeSpeaker struct {
	said  []string
	err   error
	panic bool
}

func (f *fakeSpeaker) Speak(ctx context.Context, text string) error {
	f.said = append(f.said, text)
	if f.panic {
		panic("audio device gone")
	}
	return f.err
}

func (f *fakeSpeaker) Cancel() {}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRetry_UsesEmptyToolList(t *testing.T) {
	gw := &fakeGateway{resp: llm.Response{Content: `{"text": "The weather service is down, sorry.", "command": "", "params": {}}`}}
	sp := &fakeSpeaker{}
	r := New(gw, sp, "You are Thane.", nil, discardLogger())

	got := r.Retry(context.Background(), "what's the weather", "Error: timeout", "en")

	if got != "The weather service is down, sorry." {
		t.Errorf("Retry() = %q", got)
	}
	if gw.calls != 1 {
		t.Errorf("gateway calls = %d, want 1", gw.calls)
	}
	if gw.req.Tools == nil || len(gw.req.Tools) != 0 {
		t.Errorf("Tools = %#v, want empty non-nil list", gw.req.Tools)
	}
	if len(gw.req.Messages) != 2 || gw.req.Messages[1].Content != "what's the weather" {
		t.Errorf("messages = %+v, want system prompt and original query", gw.req.Messages)
	}
	if !strings.Contains(gw.req.Messages[0].Content, "Error: timeout") {
		t.Error("system prompt should carry the error text")
	}
	if len(sp.said) != 1 || sp.said[0] != got {
		t.Errorf("said = %q, want the answer spoken once", sp.said)
	}
}

func TestRetry_NeverPanics(t *testing.T) {
	unexpected := prompts.Text(prompts.MsgUnexpected, "pl")
	tests := []struct {
		name    string
		gateway Chatter
		speaker *fakeSpeaker
	}{
		{name: "gateway panics", gateway: &fakeGateway{panic: true}, speaker: &fakeSpeaker{}},
		{name: "degraded", gateway: &fakeGateway{resp: llm.Response{Degraded: true, Content: "offline"}}, speaker: &fakeSpeaker{}},
		{name: "empty answer", gateway: &fakeGateway{resp: llm.Response{Content: "  "}}, speaker: &fakeSpeaker{}},
		{name: "no gateway", gateway: nil, speaker: &fakeSpeaker{}},
		{name: "speaker panics", gateway: &fakeGateway{resp: llm.Response{Degraded: true}}, speaker: &fakeSpeaker{panic: true}},
		{name: "speaker fails", gateway: &fakeGateway{resp: llm.Response{Degraded: true}}, speaker: &fakeSpeaker{err: errors.New("busy")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.gateway, tt.speaker, "", nil, discardLogger())
			if got := r.Retry(context.Background(), "q", "błąd", "pl"); got != unexpected {
				t.Errorf("Retry() = %q, want %q", got, unexpected)
			}
		})
	}
}
