package wakeword

import (
	"context"
	"log/slog"
	"time"

	"github.com/nugget/thane-voice/internal/audio"
	"github.com/nugget/thane-voice/internal/config"
	"github.com/nugget/thane-voice/internal/speech"
)

// Transcript detects the wake phrase by transcribing short windows of
// audio that are loud enough to contain speech. It needs no dedicated
// wake-word model, at the cost of one STT request per spoken window.
type Transcript struct {
	Phrase string
	// MinDensity is passed to [MatchPhrase].
	MinDensity float64
	// Energy is the RMS level a window must reach to be transcribed.
	Energy     float64
	Window     time.Duration
	SampleRate int
	// Timeout bounds one Detect call; zero waits for ctx.
	Timeout time.Duration
	STT     speech.Transcriber
	Logger  *slog.Logger
}

// Detect consumes frames until the phrase is heard, the sentinel
// arrives, or the timeout passes.
func (d *Transcript) Detect(ctx context.Context, q *audio.Queue) (Result, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	wctx := ctx
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	size := audio.Bytes(d.Window, d.SampleRate)
	if size <= 0 {
		size = audio.Bytes(2*time.Second, 16000)
	}

	buf := make([]byte, 0, size)
	for {
		f, err := q.Next(wctx)
		if err != nil {
			return interruptedOr(ctx, err)
		}
		buf = append(buf, f.PCM...)
		if len(buf) < size {
			continue
		}

		if audio.RMS(buf) >= d.Energy {
			text := speech.SafeTranscribe(wctx, d.STT, buf, logger)
			logger.Log(ctx, config.LevelTrace, "wake window transcribed", "text", text)
			if MatchPhrase(text, d.Phrase, d.MinDensity) {
				logger.Info("wake phrase heard", "phrase", d.Phrase, "text", text)
				return Heard, nil
			}
		}

		// Keep the second half so a phrase spanning two windows is
		// still seen whole once.
		half := len(buf) / 2
		half -= half % 2
		buf = append(buf[:0], buf[half:]...)
	}
}
