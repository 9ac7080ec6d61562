// Package wakeword decides when the listener should start capturing.
// Both detectors consume frames from an [audio.Queue] and stop early
// when they reach the manual-trigger sentinel.
package wakeword

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/sahilm/fuzzy"

	"github.com/nugget/thane-voice/internal/audio"
)

// Result is how one detection run ended.
type Result int

const (
	// TimedOut means the run reached its deadline without hearing
	// anything. The listener simply starts another run.
	TimedOut Result = iota
	// Heard means the wake word was detected.
	Heard
	// Interrupted means the trigger sentinel ended the wait.
	Interrupted
)

func (r Result) String() string {
	switch r {
	case Heard:
		return "heard"
	case Interrupted:
		return "interrupted"
	default:
		return "timed_out"
	}
}

// Detector waits for the wake word on q.
type Detector interface {
	Detect(ctx context.Context, q *audio.Queue) (Result, error)
}

// normalize lowercases s and reduces it to space-separated words of
// letters and digits.
func normalize(s string) string {
	var b strings.Builder
	space := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		case !space:
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// MatchPhrase reports whether transcript contains phrase, tolerating
// the extra or merged letters speech recognizers tend to produce. A
// word window matches when every letter of the phrase appears in order
// and at least minDensity of the spanned letters belong to the phrase.
func MatchPhrase(transcript, phrase string, minDensity float64) bool {
	p := normalize(phrase)
	t := normalize(transcript)
	if p == "" || t == "" {
		return false
	}
	if strings.Contains(" "+t+" ", " "+p+" ") {
		return true
	}

	pattern := strings.ReplaceAll(p, " ", "")
	pw := len(strings.Fields(p))
	words := strings.Fields(t)
	var windows []string
	for size := max(pw-1, 1); size <= pw+1; size++ {
		for i := 0; i+size <= len(words); i++ {
			windows = append(windows, strings.Join(words[i:i+size], ""))
		}
	}
	for _, m := range fuzzy.Find(pattern, windows) {
		idx := m.MatchedIndexes
		if len(idx) == 0 {
			continue
		}
		span := idx[len(idx)-1] - idx[0] + 1
		if float64(len(idx))/float64(span) >= minDensity {
			return true
		}
	}
	return false
}

// interruptedOr maps a queue error to a result. ctx errors from the
// caller's own context are returned as errors; a local deadline is a
// normal timeout.
func interruptedOr(parent context.Context, err error) (Result, error) {
	switch {
	case errors.Is(err, audio.ErrInterrupted):
		return Interrupted, nil
	case parent.Err() != nil:
		return TimedOut, parent.Err()
	case errors.Is(err, context.DeadlineExceeded):
		return TimedOut, nil
	default:
		return TimedOut, fmt.Errorf("read audio: %w", err)
	}
}
