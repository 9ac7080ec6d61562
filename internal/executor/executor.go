// Package executor runs capability handlers on behalf of the dialogue
// pipeline. A handler can fail, hang, or panic; none of that escapes
// [Executor.Run], which always answers with text and a success flag.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nugget/thane-voice/internal/capability"
	"github.com/nugget/thane-voice/internal/events"
	"github.com/nugget/thane-voice/internal/prompts"
	"github.com/nugget/thane-voice/pkg/plugin"
)

// DefaultTimeout bounds a handler when no timeout is configured.
const DefaultTimeout = 60 * time.Second

var errTimeout = errors.New("handler timed out")

// Context carries the request state a handler may use.
type Context struct {
	History  []plugin.Turn
	Language string
	User     string
}

// Lookuper resolves a command to its descriptor in the live generation.
type Lookuper interface {
	Lookup(command string) (*capability.Descriptor, bool)
}

// Executor resolves commands and runs their handlers.
type Executor struct {
	registry Lookuper
	timeout  time.Duration
	bus      *events.Bus
	logger   *slog.Logger
}

// New creates an executor. A non-positive timeout uses DefaultTimeout.
func New(registry Lookuper, timeout time.Duration, bus *events.Bus, logger *slog.Logger) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: registry,
		timeout:  timeout,
		bus:      bus,
		logger:   logger.With("component", "executor"),
	}
}

// Run resolves main/sub and runs the matching handler: the sub-command's
// handler when sub names a declared sub-command, otherwise the
// top-level handler. An unknown sub-command is passed to the top-level
// handler as the first word of string params. Failures come back as a
// localized apology with ok false.
func (e *Executor) Run(ctx context.Context, main, sub string, params any, c Context) (text string, ok bool) {
	main = strings.ToLower(strings.TrimSpace(main))
	sub = strings.ToLower(strings.TrimSpace(sub))
	log := e.logger.With("command", main, "sub", sub)

	handler, params := e.resolve(main, sub, params)
	if handler == nil {
		log.Warn("no handler for command")
		return prompts.Text(prompts.MsgNoHandler, c.Language, strings.TrimSpace(main+" "+sub)), false
	}

	e.bus.Emit(events.SourceExecutor, events.KindCommandRun, map[string]any{
		"command": main, "sub": sub,
	})
	start := time.Now()
	defer func() {
		e.bus.Emit(events.SourceExecutor, events.KindCommandDone, map[string]any{
			"command":    main,
			"sub":        sub,
			"ok":         ok,
			"elapsed_ms": time.Since(start).Milliseconds(),
		})
	}()

	in := plugin.Input{
		Params:   params,
		History:  c.History,
		Language: c.Language,
		User:     c.User,
	}
	v, err := e.call(ctx, handler, in)
	if err != nil {
		log.Error("command failed", "error", err, "elapsed", time.Since(start))
		return prompts.Text(prompts.MsgApology, c.Language), false
	}

	text, ok = Classify(v)
	log.Info("command finished", "ok", ok, "chars", len(text), "elapsed", time.Since(start))
	return text, ok
}

// resolve picks the handler for main/sub and adjusts params when the
// top-level handler takes an unrecognized sub-command.
func (e *Executor) resolve(main, sub string, params any) (plugin.Handler, any) {
	if e.registry == nil {
		return nil, params
	}
	d, found := e.registry.Lookup(main)
	if !found {
		return nil, params
	}
	sc, declared := d.SubCommand(sub)
	if declared && sc.Handler != nil {
		return sc.Handler, params
	}
	if d.Handler == nil {
		return nil, params
	}
	if sub != "" && !declared {
		switch p := params.(type) {
		case nil:
			params = sub
		case string:
			params = strings.TrimSpace(sub + " " + p)
		}
	}
	return d.Handler, params
}

// call runs h on its own goroutine and waits for it, the executor
// timeout, or ctx. A panic becomes an error.
func (e *Executor) call(ctx context.Context, h plugin.Handler, in plugin.Input) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type result struct {
		v   any
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("handler panicked: %v", r)}
			}
		}()
		v, err := h(in)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errTimeout
		}
		return nil, ctx.Err()
	}
}

// Classify converts a handler's return value into (text, ok). A
// [plugin.Result] or a two-element slice ending in a bool is taken as an
// explicit pair; any other value is stringified and successful.
func Classify(v any) (string, bool) {
	switch r := v.(type) {
	case nil:
		return "", true
	case plugin.Result:
		return r.Text, r.OK
	case *plugin.Result:
		if r == nil {
			return "", true
		}
		return r.Text, r.OK
	case string:
		return r, true
	case []any:
		if len(r) == 2 {
			if flag, isBool := r[1].(bool); isBool {
				return stringify(r[0]), flag
			}
		}
	case [2]any:
		if flag, isBool := r[1].(bool); isBool {
			return stringify(r[0]), flag
		}
	}
	return stringify(v), true
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
