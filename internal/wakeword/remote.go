package wakeword

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nugget/thane-voice/internal/audio"
)

// Event is a detection message from a wake-word server.
type Event struct {
	Type       string  `json:"type"`
	WakeWord   string  `json:"wake_word"`
	Confidence float64 `json:"confidence"`
	Timestamp  float64 `json:"timestamp"`
}

// configMessage is sent once per connection.
type configMessage struct {
	Type       string   `json:"type"`
	Enabled    bool     `json:"enabled"`
	WakeWords  []string `json:"wake_words"`
	Threshold  float64  `json:"threshold"`
	SampleRate int      `json:"sample_rate"`
	Timestamp  float64  `json:"timestamp"`
}

var errHeard = errors.New("wake word heard")

const writeTimeout = 5 * time.Second

// Remote streams PCM over a websocket to a wake-word server (for
// example an openWakeWord bridge) and waits for a "wake_word" event.
type Remote struct {
	URL        string
	Phrase     string
	Threshold  float64
	SampleRate int
	Timeout    time.Duration
	Dialer     *websocket.Dialer
	Logger     *slog.Logger
}

// ParseEvent decodes a server message, reporting whether it is a
// wake-word detection.
func ParseEvent(data []byte) (Event, bool) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, false
	}
	return ev, ev.Type == "wake_word"
}

// accepts reports whether ev clears the threshold. Servers that send no
// confidence are trusted.
func (d *Remote) accepts(ev Event) bool {
	return ev.Confidence == 0 || ev.Confidence >= d.Threshold
}

// Detect opens a connection for the duration of one run.
func (d *Remote) Detect(ctx context.Context, q *audio.Queue) (Result, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, _, err := dialer.DialContext(ctx, d.URL, nil)
	if err != nil {
		return TimedOut, fmt.Errorf("connect to wake-word server: %w", err)
	}
	defer conn.Close()

	cfg, err := json.Marshal(configMessage{
		Type:       "wake_word_config",
		Enabled:    true,
		WakeWords:  []string{d.Phrase},
		Threshold:  d.Threshold,
		SampleRate: d.SampleRate,
		Timestamp:  float64(time.Now().UnixNano()) / 1e9,
	})
	if err != nil {
		return TimedOut, fmt.Errorf("marshal wake-word config: %w", err)
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, cfg); err != nil {
		return TimedOut, fmt.Errorf("send wake-word config: %w", err)
	}

	dctx, stop := context.WithCancelCause(ctx)
	defer stop(nil)
	wctx := dctx
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(dctx, d.Timeout)
		defer cancel()
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				stop(fmt.Errorf("read wake-word event: %w", err))
				return
			}
			ev, ok := ParseEvent(data)
			if !ok {
				continue
			}
			if !d.accepts(ev) {
				logger.Debug("wake word below threshold",
					"wake_word", ev.WakeWord, "confidence", ev.Confidence)
				continue
			}
			logger.Info("wake word heard", "wake_word", ev.WakeWord, "confidence", ev.Confidence)
			stop(errHeard)
			return
		}
	}()
	// Closing the connection unblocks the reader.
	defer func() {
		conn.Close()
		<-readerDone
	}()

	for {
		f, err := q.Next(wctx)
		if err != nil {
			if cause := context.Cause(dctx); cause != nil && ctx.Err() == nil {
				if errors.Is(cause, errHeard) {
					return Heard, nil
				}
				return TimedOut, cause
			}
			return interruptedOr(ctx, err)
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.BinaryMessage, f.PCM); err != nil {
			if errors.Is(context.Cause(dctx), errHeard) {
				return Heard, nil
			}
			return TimedOut, fmt.Errorf("stream audio: %w", err)
		}
	}
}
