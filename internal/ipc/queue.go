package ipc

import (
	"context"
	"errors"
)

// ErrQueueFull is returned by TryPush when the queue has no room.
var ErrQueueFull = errors.New("command queue full")

// Queue is a bounded multi-producer, single-consumer command queue.
// Neither side ever blocks on the other unless it asks to.
type Queue struct {
	ch chan Command
}

// NewQueue creates a queue holding up to size commands.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 32
	}
	return &Queue{ch: make(chan Command, size)}
}

// TryPush enqueues c without blocking.
func (q *Queue) TryPush(c Command) error {
	select {
	case q.ch <- c:
		return nil
	default:
		return ErrQueueFull
	}
}

// Submit decodes one JSON message and enqueues it tagged with origin.
func (q *Queue) Submit(data []byte, origin string) (Command, error) {
	cmd, err := Decode(data)
	if err != nil {
		return Command{}, err
	}
	cmd.Origin = origin
	if err := q.TryPush(cmd); err != nil {
		return cmd, err
	}
	return cmd, nil
}

// Poll dequeues one command without blocking.
func (q *Queue) Poll() (Command, bool) {
	select {
	case c := <-q.ch:
		return c, true
	default:
		return Command{}, false
	}
}

// Next blocks until a command arrives or ctx ends.
func (q *Queue) Next(ctx context.Context) (Command, error) {
	select {
	case c := <-q.ch:
		return c, nil
	case <-ctx.Done():
		return Command{}, ctx.Err()
	}
}

// Len returns the number of queued commands.
func (q *Queue) Len() int { return len(q.ch) }
