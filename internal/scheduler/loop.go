// Package scheduler runs the assistant's conversational work serially.
// Submitted jobs execute one at a time, in submission order, on a
// single goroutine, so state they share (the conversation history)
// needs no locking.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrStopped is returned for work submitted after the loop stopped.
var ErrStopped = errors.New("scheduler stopped")

type job struct {
	ctx  context.Context
	fn   func(context.Context)
	done chan error
}

// Loop is a serial work loop.
type Loop struct {
	logger *slog.Logger
	queue  chan job

	mu      sync.Mutex
	running bool
	stopped bool
	stopCh  chan struct{}
	exited  chan struct{} // closed when the worker returns
	wg      sync.WaitGroup
}

// New creates a loop whose queue holds up to backlog pending jobs.
func New(backlog int, logger *slog.Logger) *Loop {
	if backlog <= 0 {
		backlog = 16
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		logger: logger.With("component", "scheduler"),
		queue:  make(chan job, backlog),
		stopCh: make(chan struct{}),
		exited: make(chan struct{}),
	}
}

// Start launches the worker goroutine. A loop runs at most once;
// further calls are no-ops.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running || l.stopped {
		return
	}
	l.running = true
	l.wg.Add(1)
	go l.run()
	l.logger.Debug("scheduler started")
}

// Stop ends the loop after the running job returns. Queued jobs that
// never started fail with ErrStopped.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	l.stopped = true
	close(l.stopCh)
	l.mu.Unlock()

	l.wg.Wait()
	l.logger.Debug("scheduler stopped")
}

// Run starts the loop and stops it when ctx ends.
func (l *Loop) Run(ctx context.Context) error {
	l.Start()
	<-ctx.Done()
	l.Stop()
	return nil
}

func (l *Loop) run() {
	defer l.wg.Done()
	defer close(l.exited)
	for {
		select {
		case <-l.stopCh:
			l.drain()
			return
		case j := <-l.queue:
			j.done <- l.exec(j)
		}
	}
}

// drain fails every job still queued.
func (l *Loop) drain() {
	for {
		select {
		case j := <-l.queue:
			j.done <- ErrStopped
		default:
			return
		}
	}
}

// exec runs one job, converting a panic into an error so the loop
// survives it.
func (l *Loop) exec(j job) (err error) {
	if err := j.ctx.Err(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("scheduled job panicked", "panic", r)
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	j.fn(j.ctx)
	return nil
}

// Do runs fn on the loop and waits for it to finish. It returns early
// with ctx's error if ctx ends first; fn then still runs (or is skipped
// if it had not started) but its completion is not awaited.
func (l *Loop) Do(ctx context.Context, fn func(context.Context)) error {
	if l.isStopped() {
		return ErrStopped
	}
	done := make(chan error, 1)
	select {
	case <-l.stopCh:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	case l.queue <- job{ctx: ctx, fn: fn, done: done}:
	}

	select {
	case err := <-done:
		return err
	case <-l.exited:
		select {
		case err := <-done:
			return err
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Go submits fn without waiting for it.
func (l *Loop) Go(ctx context.Context, fn func(context.Context)) error {
	if l.isStopped() {
		return ErrStopped
	}
	select {
	case <-l.stopCh:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	case l.queue <- job{ctx: ctx, fn: fn, done: make(chan error, 1)}:
		return nil
	}
}

func (l *Loop) isStopped() bool {
	select {
	case <-l.stopCh:
		return true
	default:
		return false
	}
}
