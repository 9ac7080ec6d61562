// Package listener owns the microphone. It arms the wake-word
// detector, captures an utterance once the wake word is heard or a
// manual trigger arrives, transcribes it, and hands the text on.
//
//	Idle -> WakeWordArmed -> Capturing -> Processing -> WakeWordArmed
//
// A manual trigger while armed interrupts the detector through the
// audio queue and goes straight to Capturing. One arriving while
// capturing or processing is remembered and honored on the next lap
// instead of re-arming the detector.
package listener

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nugget/thane-voice/internal/audio"
	"github.com/nugget/thane-voice/internal/events"
	"github.com/nugget/thane-voice/internal/speech"
	"github.com/nugget/thane-voice/internal/wakeword"
)

// ErrInterrupted is what a detector sees when the trigger sentinel
// reaches it.
var ErrInterrupted = audio.ErrInterrupted

// Handler receives each non-empty transcript and returns once the
// response has been delivered.
type Handler func(ctx context.Context, text string)

// Config tunes capture.
type Config struct {
	SampleRate       int
	SilenceThreshold float64
	Silence          time.Duration
	MaxCapture       time.Duration
	RetryPause       time.Duration
}

// Deps are the listener's collaborators.
type Deps struct {
	Source   audio.Source
	Queue    *audio.Queue
	Detector wakeword.Detector
	STT      speech.Transcriber
	Handle   Handler
	// Missed, when set, runs after speech that transcribed to nothing.
	Missed func(ctx context.Context)
	Bus    *events.Bus
}

// Listener runs the listening state machine.
type Listener struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	detecting bool
	pending   bool

	// detectors counts running detector goroutines.
	detectors atomic.Int32
}

// New creates a listener in the Idle state.
func New(cfg Config, deps Deps, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.RetryPause <= 0 {
		cfg.RetryPause = time.Second
	}
	if deps.Queue == nil {
		deps.Queue = audio.NewQueue(0)
	}
	return &Listener{cfg: cfg, deps: deps, logger: logger.With("component", "listener")}
}

// State returns the current state.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Trigger requests a capture without the wake word. While the detector
// is waiting the sentinel goes onto the audio queue; otherwise the
// request is kept for the next lap.
func (l *Listener) Trigger() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == WakeWordArmed && l.detecting {
		l.logger.Debug("manual trigger interrupts detector")
		l.deps.Queue.Trigger()
		return
	}
	l.logger.Debug("manual trigger pending", "state", l.state)
	l.pending = true
}

// Run drives the state machine until ctx ends. It returns nil on
// cancellation; detector, capture, and transcription failures never
// stop it.
func (l *Listener) Run(ctx context.Context) error {
	if l.deps.Detector == nil {
		return errors.New("listener has no wake-word detector")
	}

	var wg sync.WaitGroup
	if l.deps.Source != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.stream(ctx)
		}()
	}
	defer wg.Wait()
	defer l.setState(Idle)

	for ctx.Err() == nil {
		l.setState(WakeWordArmed)

		if l.arm() {
			res, err := l.detect(ctx)
			if ctx.Err() != nil {
				return nil
			}
			if err != nil {
				l.logger.Warn("wake-word detector failed, restarting", "error", err, "pause", l.cfg.RetryPause)
				if !sleep(ctx, l.cfg.RetryPause) {
					return nil
				}
				continue
			}
			if res == wakeword.TimedOut {
				continue
			}
			l.logger.Debug("detector finished", "result", res)
		}

		l.setState(Capturing)
		pcm := l.capture(ctx)
		if ctx.Err() != nil {
			return nil
		}

		l.setState(Processing)
		if text := speech.SafeTranscribe(ctx, l.deps.STT, pcm, l.logger); text != "" {
			l.logger.Info("utterance captured", "text", text, "audio", audio.Duration(len(pcm), l.cfg.SampleRate))
			l.handle(ctx, text)
		} else if l.deps.Missed != nil && ctx.Err() == nil {
			l.deps.Missed(ctx)
		}

		// Audio queued while busy is mostly our own voice.
		if n := l.deps.Queue.Flush(); n > 0 {
			l.logger.Debug("discarded stale audio", "frames", n)
		}
	}
	return nil
}

// arm marks the detector as waiting, unless a trigger is already
// pending, in which case it consumes the trigger and reports false.
func (l *Listener) arm() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending {
		l.pending = false
		return false
	}
	l.detecting = true
	return true
}

type detection struct {
	res wakeword.Result
	err error
}

// detect runs the detector on its own goroutine and waits for it to
// finish, so at most one detector exists at a time. The caller must
// have armed it.
func (l *Listener) detect(ctx context.Context) (wakeword.Result, error) {
	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer func() {
		l.mu.Lock()
		l.detecting = false
		l.mu.Unlock()
	}()

	done := make(chan detection, 1)
	l.detectors.Add(1)
	go func() {
		defer l.detectors.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				done <- detection{err: fmt.Errorf("detector panicked: %v", r)}
			}
		}()
		res, err := l.deps.Detector.Detect(dctx, l.deps.Queue)
		done <- detection{res: res, err: err}
	}()
	d := <-done
	return d.res, d.err
}

// capture records until trailing silence follows speech, or until
// MaxCapture. It returns nil when nothing but silence was heard.
func (l *Listener) capture(ctx context.Context) []byte {
	cctx := ctx
	if l.cfg.MaxCapture > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, l.cfg.MaxCapture)
		defer cancel()
	}

	var (
		buf   bytes.Buffer
		quiet time.Duration
		heard bool
	)
	// Without speech, give up after a few silence spans.
	leadIn := 3 * l.cfg.Silence
	for {
		f, err := l.deps.Queue.Next(cctx)
		if errors.Is(err, audio.ErrInterrupted) {
			continue
		}
		if err != nil {
			break
		}
		buf.Write(f.PCM)

		if audio.RMS(f.PCM) >= l.cfg.SilenceThreshold {
			heard = true
			quiet = 0
			continue
		}
		quiet += audio.Duration(len(f.PCM), l.cfg.SampleRate)
		if l.cfg.Silence > 0 && ((heard && quiet >= l.cfg.Silence) || (!heard && quiet >= leadIn)) {
			break
		}
	}
	if !heard {
		l.logger.Debug("capture heard only silence")
		return nil
	}
	return buf.Bytes()
}

// handle calls the handler, containing any panic.
func (l *Listener) handle(ctx context.Context, text string) {
	if l.deps.Handle == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("utterance handler panicked", "panic", r)
		}
	}()
	l.deps.Handle(ctx, text)
}

// stream keeps the audio source running, restarting it after a pause
// when it fails.
func (l *Listener) stream(ctx context.Context) {
	for {
		err := l.deps.Source.Stream(ctx, l.deps.Queue)
		if ctx.Err() != nil {
			return
		}
		l.logger.Warn("audio source stopped, restarting", "error", err, "pause", l.cfg.RetryPause)
		if !sleep(ctx, l.cfg.RetryPause) {
			return
		}
	}
}

func (l *Listener) setState(s State) {
	l.mu.Lock()
	from := l.state
	l.state = s
	l.mu.Unlock()
	if from == s {
		return
	}
	l.logger.Debug("state change", "from", from, "to", s)
	l.deps.Bus.Emit(events.SourceListener, events.KindStateChange, map[string]any{
		"from": from.String(),
		"to":   s.String(),
	})
}

// sleep waits for d, reporting false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
