package capability

import (
	"context"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/nugget/thane-voice/pkg/plugin"
)

// defaultLoadTimeout bounds evaluating one plugin file and calling its
// entry point.
const defaultLoadTimeout = 5 * time.Second

var errNoCommand = errors.New("descriptor has no command name")

// errLoadAbandoned marks a plugin whose evaluation outlived its load
// timeout. Interpreted code cannot be preempted, so the goroutine
// running it is left behind until it returns on its own.
var errLoadAbandoned = errors.New("plugin load abandoned")

// loadPluginFile interprets one plugin file in a fresh interpreter and
// returns the descriptor produced by its Register function. Every file
// gets its own interpreter so a broken plugin cannot poison another.
// A Register that never returns keeps its goroutine; the load fails
// with errLoadAbandoned and a later reload tries the file again.
func loadPluginFile(ctx context.Context, path string, timeout time.Duration) (plugin.Descriptor, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return plugin.Descriptor{}, fmt.Errorf("read plugin: %w", err)
	}

	f, err := parser.ParseFile(token.NewFileSet(), path, src, parser.PackageClauseOnly)
	if err != nil {
		return plugin.Descriptor{}, fmt.Errorf("parse package clause: %w", err)
	}
	pkg := f.Name.Name

	if timeout <= 0 {
		timeout = defaultLoadTimeout
	}
	loadCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type loaded struct {
		desc plugin.Descriptor
		err  error
	}
	done := make(chan loaded, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- loaded{err: fmt.Errorf("plugin panicked during load: %v", r)}
			}
		}()
		desc, err := evalPlugin(loadCtx, pkg, string(src))
		done <- loaded{desc: desc, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return plugin.Descriptor{}, res.err
		}
		if res.desc.Command == "" {
			return plugin.Descriptor{}, errNoCommand
		}
		return res.desc, nil
	case <-loadCtx.Done():
		return plugin.Descriptor{}, fmt.Errorf("%w after %s: %w", errLoadAbandoned, timeout, loadCtx.Err())
	}
}

func evalPlugin(ctx context.Context, pkg, src string) (plugin.Descriptor, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return plugin.Descriptor{}, fmt.Errorf("load stdlib symbols: %w", err)
	}
	if err := i.Use(plugin.Symbols); err != nil {
		return plugin.Descriptor{}, fmt.Errorf("load plugin symbols: %w", err)
	}

	if _, err := i.EvalWithContext(ctx, src); err != nil {
		return plugin.Descriptor{}, fmt.Errorf("evaluate plugin: %w", err)
	}

	v, err := i.EvalWithContext(ctx, pkg+"."+plugin.EntryPoint)
	if err != nil {
		return plugin.Descriptor{}, fmt.Errorf("%s not found: %w", plugin.EntryPoint, err)
	}
	register, ok := v.Interface().(func() plugin.Descriptor)
	if !ok {
		return plugin.Descriptor{}, fmt.Errorf("%s has signature %s, want func() plugin.Descriptor", plugin.EntryPoint, v.Type())
	}
	return register(), nil
}
