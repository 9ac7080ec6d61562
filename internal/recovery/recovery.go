// Package recovery handles command output that reports a failure even
// though the command itself ran: the request is answered again by a
// language model with every command withheld.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nugget/thane-voice/internal/events"
	"github.com/nugget/thane-voice/internal/llm"
	"github.com/nugget/thane-voice/internal/prompts"
	"github.com/nugget/thane-voice/internal/speech"
)

// errorVocabulary holds lowercase failure markers in the supported
// languages. Matching is by substring.
var errorVocabulary = []string{
	// en
	"error", "failed", "failure", "timeout", "timed out", "exception", "unavailable",
	// pl
	"błąd", "błędu", "nie udało", "niepowodzenie", "przekroczono czas", "wyjątek",
	// de
	"fehler", "fehlgeschlagen", "zeitüberschreitung", "ausnahme",
	// fr
	"erreur", "échec", "échoué", "délai dépassé",
	// es
	"falló", "fallo", "tiempo de espera", "excepción",
	// it
	"errore", "fallito", "eccezione",
}

// IsErrorShaped reports whether text reads like a failure report. Blank
// text never does.
func IsErrorShaped(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, w := range errorVocabulary {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// Chatter is the subset of the provider gateway used for retries.
type Chatter interface {
	Chat(ctx context.Context, req llm.Request) llm.Response
}

// Retrier answers a request again after its command failed.
type Retrier struct {
	gateway Chatter
	speaker speech.Speaker
	persona string
	bus     *events.Bus
	logger  *slog.Logger
}

// New creates a Retrier. persona opens the retry prompt.
func New(gateway Chatter, speaker speech.Speaker, persona string, bus *events.Bus, logger *slog.Logger) *Retrier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{
		gateway: gateway,
		speaker: speaker,
		persona: persona,
		bus:     bus,
		logger:  logger.With("component", "recovery"),
	}
}

// Retry asks the gateway to answer query without any tools, given the
// error text the command produced, and speaks the answer. It never
// panics; whatever goes wrong becomes the localized "unexpected error"
// phrase. The spoken text is returned.
func (r *Retrier) Retry(ctx context.Context, query, errText, lang string) (spoken string) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("retry panicked", "panic", p)
			spoken = prompts.Text(prompts.MsgUnexpected, lang)
			r.say(ctx, spoken)
		}
	}()

	r.bus.Emit(events.SourcePipeline, events.KindRetry, map[string]any{
		"language": lang,
	})

	spoken, err := r.answer(ctx, query, errText, lang)
	if err != nil {
		r.logger.Warn("retry failed", "error", err)
		spoken = prompts.Text(prompts.MsgUnexpected, lang)
	}
	r.say(ctx, spoken)
	return spoken
}

func (r *Retrier) answer(ctx context.Context, query, errText, lang string) (string, error) {
	if r.gateway == nil {
		return "", fmt.Errorf("no gateway")
	}
	resp := r.gateway.Chat(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: prompts.RetryPrompt(r.persona, errText, lang)},
			{Role: "user", Content: query},
		},
		Tools: []map[string]any{},
	})
	if resp.Degraded {
		return "", fmt.Errorf("no provider answered")
	}
	text := strings.TrimSpace(prompts.ParseReply(resp.Content).Text)
	if text == "" {
		return "", fmt.Errorf("empty answer")
	}
	return text, nil
}

// say speaks text, absorbing speaker failures and panics.
func (r *Retrier) say(ctx context.Context, text string) {
	if r.speaker == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("speaker panicked", "panic", p)
		}
	}()
	if err := r.speaker.Speak(ctx, text); err != nil {
		r.logger.Warn("speak failed", "error", err)
	}
}
