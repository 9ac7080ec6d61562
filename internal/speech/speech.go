// Package speech provides the speech collaborators of the voice loop:
// transcription of captured audio and spoken output.
package speech

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Speaker speaks text. Cancel stops any utterance in progress and is
// safe to call when idle or more than once.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	Cancel()
}

// Synthesizer renders one utterance, blocking until it finished or ctx
// is canceled.
type Synthesizer interface {
	Say(ctx context.Context, text string) error
}

// Output turns a [Synthesizer] into a [Speaker]. Markdown is reduced to
// plain prose before synthesis, and a new Speak cancels the utterance
// in progress first.
type Output struct {
	synth  Synthesizer
	logger *slog.Logger

	speaking sync.Mutex // held for the duration of one utterance

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewOutput creates an Output around synth.
func NewOutput(synth Synthesizer, logger *slog.Logger) *Output {
	if logger == nil {
		logger = slog.Default()
	}
	return &Output{synth: synth, logger: logger.With("component", "speech")}
}

// Speak cancels any current utterance and speaks text. An utterance cut
// short by Cancel is not an error.
func (o *Output) Speak(ctx context.Context, text string) error {
	text = Clean(text)
	if text == "" {
		return nil
	}

	o.Cancel()
	o.speaking.Lock()
	defer o.speaking.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	o.mu.Lock()
	o.cancel, o.done = cancel, done
	o.mu.Unlock()

	defer func() {
		cancel()
		close(done)
		o.mu.Lock()
		if o.done == done {
			o.cancel, o.done = nil, nil
		}
		o.mu.Unlock()
	}()

	o.logger.Debug("speaking", "chars", len(text))
	err := o.synth.Say(ctx, text)
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return err
}

// Cancel stops the current utterance and waits for it to end.
func (o *Output) Cancel() {
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.cancel, o.done = nil, nil
	o.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
