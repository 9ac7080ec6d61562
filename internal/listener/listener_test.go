package listener

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/nugget/thane-voice/internal/audio"
	"github.com/nugget/thane-voice/internal/events"
	"github.com/nugget/thane-voice/internal/wakeword"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pcm(n int, amp int16) []byte {
	buf := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[2*i:], uint16(amp))
	}
	return buf
}

// tickSource pushes 10ms frames every few milliseconds.
type tickSource struct {
	amp int16
}

func (s tickSource) Stream(ctx context.Context, q *audio.Queue) error {
	t := time.NewTicker(2 * time.Millisecond)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			q.Push(audio.Frame{PCM: pcm(160, s.amp), At: time.Now()})
		}
	}
}

// scriptedDetector returns the scripted results in order; once they
// run out it waits on the queue like a real detector.
type scriptedDetector struct {
	mu      sync.Mutex
	script  []func() (wakeword.Result, error)
	results []wakeword.Result
	calls   atomic.Int32
	active  atomic.Int32
	overlap atomic.Bool
}

func (d *scriptedDetector) Detect(ctx context.Context, q *audio.Queue) (wakeword.Result, error) {
	d.calls.Add(1)
	if d.active.Add(1) > 1 {
		d.overlap.Store(true)
	}
	defer d.active.Add(-1)

	d.mu.Lock()
	var step func() (wakeword.Result, error)
	if len(d.script) > 0 {
		step, d.script = d.script[0], d.script[1:]
	}
	d.mu.Unlock()

	var res wakeword.Result
	var err error
	if step != nil {
		res, err = step()
	} else {
		res, err = waitForSentinel(ctx, q)
	}
	d.mu.Lock()
	d.results = append(d.results, res)
	d.mu.Unlock()
	return res, err
}

func waitForSentinel(ctx context.Context, q *audio.Queue) (wakeword.Result, error) {
	for {
		_, err := q.Next(ctx)
		if errors.Is(err, audio.ErrInterrupted) {
			return wakeword.Interrupted, nil
		}
		if err != nil {
			return wakeword.TimedOut, err
		}
	}
}

type fixedSTT struct {
	text  string
	calls atomic.Int32
}

func (s *fixedSTT) Transcribe(context.Context, []byte) (string, error) {
	s.calls.Add(1)
	return s.text, nil
}

func testConfig() Config {
	return Config{
		SampleRate:       16000,
		SilenceThreshold: 500,
		Silence:          20 * time.Millisecond,
		MaxCapture:       50 * time.Millisecond,
		RetryPause:       5 * time.Millisecond,
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		Idle:          "idle",
		WakeWordArmed: "wake_word_armed",
		Capturing:     "capturing",
		Processing:    "processing",
		State(42):     "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestListener_TriggerInterruptsDetector(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.New()
	evs, unsub := bus.Subscribe(64)
	defer unsub()

	det := &scriptedDetector{}
	stt := &fixedSTT{text: "what time is it"}
	var got []string
	var mu sync.Mutex

	l := New(testConfig(), Deps{
		Source:   tickSource{amp: 3000},
		Queue:    audio.NewQueue(64),
		Detector: det,
		STT:      stt,
		Bus:      bus,
		Handle: func(_ context.Context, text string) {
			mu.Lock()
			got = append(got, text)
			mu.Unlock()
			cancel()
		},
	}, discardLogger())

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	waitFor(t, "detector to start", func() bool { return l.detectors.Load() == 1 })
	l.Trigger()

	if err := <-done; err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if len(got) != 1 || got[0] != "what time is it" {
		t.Errorf("handled = %v", got)
	}
	if len(det.results) == 0 || det.results[0] != wakeword.Interrupted {
		t.Errorf("detector results = %v, want interrupted first", det.results)
	}
	if l.State() != Idle {
		t.Errorf("State() after Run = %v, want idle", l.State())
	}

	var transitions []string
	for len(evs) > 0 {
		ev := <-evs
		if ev.Kind == events.KindStateChange {
			transitions = append(transitions, ev.Data["to"].(string))
		}
	}
	want := []string{"wake_word_armed", "capturing", "processing"}
	if len(transitions) < len(want) {
		t.Fatalf("transitions = %v", transitions)
	}
	for i, s := range want {
		if transitions[i] != s {
			t.Errorf("transitions = %v, want prefix %v", transitions, want)
			break
		}
	}
}

func TestListener_PendingTriggerSkipsDetector(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	det := &scriptedDetector{script: []func() (wakeword.Result, error){
		func() (wakeword.Result, error) { return wakeword.Heard, nil },
	}}
	var l *Listener
	var handled atomic.Int32
	l = New(testConfig(), Deps{
		Source:   tickSource{amp: 3000},
		Queue:    audio.NewQueue(64),
		Detector: det,
		STT:      &fixedSTT{text: "hello"},
		Handle: func(context.Context, string) {
			if handled.Add(1) == 1 {
				if s := l.State(); s != Processing {
					t.Errorf("State() in handler = %v, want processing", s)
				}
				l.Trigger()
				return
			}
			cancel()
		},
	}, discardLogger())

	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if handled.Load() != 2 {
		t.Errorf("handled %d utterances, want 2", handled.Load())
	}
	if calls := det.calls.Load(); calls != 1 {
		t.Errorf("detector ran %d times, want 1 (pending trigger should skip it)", calls)
	}
}

func TestListener_DetectorFailureRestarts(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	det := &scriptedDetector{script: []func() (wakeword.Result, error){
		func() (wakeword.Result, error) { return wakeword.TimedOut, errors.New("server gone") },
		func() (wakeword.Result, error) { panic("detector bug") },
		func() (wakeword.Result, error) { return wakeword.TimedOut, nil },
		func() (wakeword.Result, error) { return wakeword.Heard, nil },
	}}
	l := New(testConfig(), Deps{
		Source:   tickSource{amp: 3000},
		Queue:    audio.NewQueue(64),
		Detector: det,
		STT:      &fixedSTT{text: "hello"},
		Handle:   func(context.Context, string) { cancel() },
	}, discardLogger())

	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if calls := det.calls.Load(); calls != 4 {
		t.Errorf("detector ran %d times, want 4", calls)
	}
	if det.overlap.Load() {
		t.Error("two detectors ran at once")
	}
}

func TestListener_SilenceSkipsTranscription(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stt := &fixedSTT{text: "never"}
	det := &scriptedDetector{script: []func() (wakeword.Result, error){
		func() (wakeword.Result, error) { return wakeword.Heard, nil },
		func() (wakeword.Result, error) { cancel(); return wakeword.TimedOut, nil },
	}}
	l := New(testConfig(), Deps{
		Source:   tickSource{amp: 0},
		Queue:    audio.NewQueue(64),
		Detector: det,
		STT:      stt,
		Handle:   func(context.Context, string) { t.Error("handler called for silence") },
	}, discardLogger())

	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if stt.calls.Load() != 0 {
		t.Errorf("STT called %d times for silence", stt.calls.Load())
	}
}

func TestListener_EmptyTranscriptIsMissed(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stt := &fixedSTT{text: ""}
	det := &scriptedDetector{script: []func() (wakeword.Result, error){
		func() (wakeword.Result, error) { return wakeword.Heard, nil },
	}}
	var missed atomic.Int32
	l := New(testConfig(), Deps{
		Source:   tickSource{amp: 3000},
		Queue:    audio.NewQueue(64),
		Detector: det,
		STT:      stt,
		Handle:   func(context.Context, string) { t.Error("handler called for an empty transcript") },
		Missed: func(context.Context) {
			missed.Add(1)
			cancel()
		},
	}, discardLogger())

	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if stt.calls.Load() != 1 || missed.Load() != 1 {
		t.Errorf("STT calls = %d, missed = %d; want 1 and 1", stt.calls.Load(), missed.Load())
	}
}

func TestListener_HandlerPanicIsContained(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	det := &scriptedDetector{script: []func() (wakeword.Result, error){
		func() (wakeword.Result, error) { return wakeword.Heard, nil },
		func() (wakeword.Result, error) { return wakeword.Heard, nil },
	}}
	l := New(testConfig(), Deps{
		Source:   tickSource{amp: 3000},
		Queue:    audio.NewQueue(64),
		Detector: det,
		STT:      &fixedSTT{text: "hello"},
		Handle: func(context.Context, string) {
			if calls.Add(1) == 1 {
				panic("pipeline bug")
			}
			cancel()
		},
	}, discardLogger())

	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("handler calls = %d, want 2", calls.Load())
	}
}

func TestListener_TriggerBeforeRun(t *testing.T) {
	l := New(testConfig(), Deps{Detector: &scriptedDetector{}}, discardLogger())
	l.Trigger()
	if l.arm() {
		t.Error("arm() should consume the pending trigger")
	}
	if !l.arm() {
		t.Error("arm() should succeed once the trigger is consumed")
	}
}

func TestListener_NoDetector(t *testing.T) {
	l := New(testConfig(), Deps{}, discardLogger())
	if err := l.Run(context.Background()); err == nil {
		t.Error("Run() without a detector should fail")
	}
}
