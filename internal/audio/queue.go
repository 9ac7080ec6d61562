// Package audio carries microphone PCM from a capture process to the
// wake-word detector and the listener. Frames travel through a bounded
// [Queue] that drops the oldest audio when full, and the same queue
// carries the manual-trigger sentinel.
package audio

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrInterrupted is returned by [Queue.Next] when it dequeues the
// trigger sentinel instead of audio.
var ErrInterrupted = errors.New("interrupted by manual trigger")

// Frame is one chunk of little-endian 16-bit mono PCM.
type Frame struct {
	PCM []byte
	At  time.Time

	trigger bool
}

// IsTrigger reports whether f is the manual-trigger sentinel.
func (f Frame) IsTrigger() bool { return f.trigger }

// Queue is a bounded single-consumer frame queue. Producers never
// block: a full queue discards its oldest frame.
type Queue struct {
	ch      chan Frame
	rescued atomic.Bool
	dropped atomic.Int64
}

// NewQueue creates a queue holding up to size frames.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 256
	}
	return &Queue{ch: make(chan Frame, size)}
}

// Push enqueues f, evicting the oldest frame if the queue is full.
func (q *Queue) Push(f Frame) {
	for {
		select {
		case q.ch <- f:
			return
		default:
		}
		select {
		case old := <-q.ch:
			if old.trigger {
				// Evicting the sentinel must not lose the trigger.
				q.rescued.Store(true)
			} else {
				q.dropped.Add(1)
			}
		default:
		}
	}
}

// Trigger places the sentinel on the queue. The consumer's next
// [Queue.Next] after it reaches the sentinel returns [ErrInterrupted].
func (q *Queue) Trigger() {
	q.Push(Frame{trigger: true, At: time.Now()})
}

// Next returns the next audio frame, blocking until one arrives or ctx
// ends.
func (q *Queue) Next(ctx context.Context) (Frame, error) {
	if q.rescued.CompareAndSwap(true, false) {
		return Frame{}, ErrInterrupted
	}
	select {
	case f := <-q.ch:
		if f.trigger {
			return Frame{}, ErrInterrupted
		}
		return f, nil
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Flush discards everything queued, sentinel included.
func (q *Queue) Flush() int {
	q.rescued.Store(false)
	n := 0
	for {
		select {
		case <-q.ch:
			n++
		default:
			return n
		}
	}
}

// Len returns the number of queued frames.
func (q *Queue) Len() int { return len(q.ch) }

// Dropped returns how many audio frames were evicted so far.
func (q *Queue) Dropped() int64 { return q.dropped.Load() }
