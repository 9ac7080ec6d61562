package capability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nugget/thane-voice/pkg/plugin"
)

const greeterSource = `package greeter

import "github.com/nugget/thane-voice/pkg/plugin"

func hello(in plugin.Input) (any, error) {
	return plugin.OK("hello " + in.User), nil
}

func wave(in plugin.Input) (any, error) {
	return "waving at " + in.Text(), nil
}

func Register() plugin.Descriptor {
	return plugin.Descriptor{
		Command:     "greet",
		Description: "Greets people",
		Handler:     hello,
		SubCommands: map[string]plugin.SubCommand{
			"wave": {Handler: wave, Description: "Wave", ParamsHint: "<who>"},
		},
	}
}
`

const brokenSource = `package broken

func Register() plugin.Descriptor {
	return plugin.Descriptor{ // undefined import
`

const nameless = `package nameless

import "github.com/nugget/thane-voice/pkg/plugin"

func Register() plugin.Descriptor {
	return plugin.Descriptor{Description: "no command"}
}
`

const panicky = `package panicky

import "github.com/nugget/thane-voice/pkg/plugin"

func Register() plugin.Descriptor {
	panic("boom")
}
`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writePlugin(t *testing.T, dir, name, src string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644); err != nil {
		t.Fatalf("write plugin %s: %v", name, err)
	}
}

func TestRegistryReload_LoadsPlugin(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "greeter.go", greeterSource)

	r := NewRegistry(Config{Dir: dir}, discardLogger())
	gen, err := r.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload() error: %v", err)
	}

	d, ok := r.Lookup("greet")
	if !ok {
		t.Fatal("greet not registered")
	}
	if d.Plugin != "greeter" {
		t.Errorf("Plugin = %q, want greeter", d.Plugin)
	}
	if !d.HasSubCommand("wave") {
		t.Error("greet should declare wave")
	}
	if _, ok := gen.Schema("greet_wave"); !ok {
		t.Error("greet_wave schema missing")
	}

	out, err := d.Handler(plugin.Input{User: "ada"})
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	res, ok := out.(plugin.Result)
	if !ok || res.Text != "hello ada" || !res.OK {
		t.Errorf("handler = %#v, want OK(hello ada)", out)
	}
}

func TestRegistryReload_SkipsBadPlugins(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "a_broken.go", brokenSource)
	writePlugin(t, dir, "b_nameless.go", nameless)
	writePlugin(t, dir, "c_panicky.go", panicky)
	writePlugin(t, dir, "greeter.go", greeterSource)
	writePlugin(t, dir, "greeter_copy.go", strings.Replace(greeterSource, "package greeter", "package copy", 1))
	writePlugin(t, dir, "notes.txt", "not a plugin")

	r := NewRegistry(Config{Dir: dir}, discardLogger())
	gen, err := r.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload() error: %v", err)
	}

	if gen.Len() != 1 {
		t.Errorf("Len() = %d, want 1", gen.Len())
	}
	if d, ok := gen.Lookup("greet"); !ok || d.Plugin != "greeter" {
		t.Errorf("greet should come from greeter.go, got %+v", d)
	}

	skipped := map[string]bool{}
	for _, s := range gen.Skipped() {
		skipped[s.Plugin] = true
	}
	for _, name := range []string{"a_broken", "b_nameless", "c_panicky", "greeter_copy"} {
		if !skipped[name] {
			t.Errorf("%s should be skipped, skipped = %v", name, skipped)
		}
	}
}

func TestRegistryReload_EnableState(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "greeter.go", greeterSource)
	stateFile := filepath.Join(t.TempDir(), "plugins.json")
	os.WriteFile(stateFile, []byte(`{"greeter": {"enabled": false}, "memory": {"enabled": true}}`), 0o644)

	r := NewRegistry(Config{Dir: dir, StateFile: stateFile}, discardLogger())
	r.AddBuiltin("memory", plugin.Descriptor{Command: "memory", Handler: noop})

	gen, err := r.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload() error: %v", err)
	}
	if _, ok := gen.Lookup("greet"); ok {
		t.Error("disabled greeter should not load")
	}
	if _, ok := gen.Lookup("memory"); !ok {
		t.Error("enabled builtin memory should load")
	}

	os.WriteFile(stateFile, []byte(`{not json`), 0o644)
	gen, _ = r.Reload(context.Background())
	if _, ok := gen.Lookup("greet"); !ok {
		t.Error("malformed state should be treated as everything enabled")
	}
}

func TestRegistryReload_BuiltinWinsConflict(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "greeter.go", greeterSource)

	r := NewRegistry(Config{Dir: dir}, discardLogger())
	r.AddBuiltin("native", plugin.Descriptor{Command: "GREET", Handler: noop})
	gen, _ := r.Reload(context.Background())

	d, ok := gen.Lookup("greet")
	if !ok || d.Source != SourceBuiltin {
		t.Errorf("Lookup(greet) = %+v, want builtin", d)
	}
}

func TestRegistryReload_MissingDir(t *testing.T) {
	r := NewRegistry(Config{Dir: filepath.Join(t.TempDir(), "absent")}, discardLogger())
	gen, err := r.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload() error: %v", err)
	}
	if gen.Len() != 0 {
		t.Errorf("Len() = %d, want 0", gen.Len())
	}
}

func TestRegistry_GenerationsAreImmutable(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(Config{Dir: dir}, discardLogger())

	first, _ := r.Reload(context.Background())
	writePlugin(t, dir, "greeter.go", greeterSource)
	second, _ := r.Reload(context.Background())

	if first == second || second.Number != first.Number+1 {
		t.Errorf("generations %d and %d should differ", first.Number, second.Number)
	}
	if _, ok := first.Lookup("greet"); ok {
		t.Error("old generation must not see the new plugin")
	}
	if r.Current() != second {
		t.Error("Current() should be the latest generation")
	}
}

func TestRegistryWatch_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	r := NewRegistry(Config{Dir: dir}, discardLogger())
	if _, err := r.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error: %v", err)
	}

	reloaded := make(chan *Generation, 8)
	r.OnReload(func(g *Generation) { reloaded <- g })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx, 20*time.Millisecond) }()

	writePlugin(t, dir, "greeter.go", greeterSource)

	deadline := time.After(5 * time.Second)
	for {
		select {
		case g := <-reloaded:
			if _, ok := g.Lookup("greet"); ok {
				cancel()
				if err := <-done; err != nil {
					t.Errorf("Watch() = %v, want nil", err)
				}
				return
			}
		case <-deadline:
			cancel()
			t.Fatal("watcher did not reload after plugin was added")
		}
	}
}

const sleepy = `package sleepy

import (
	"time"

	"github.com/nugget/thane-voice/pkg/plugin"
)

func Register() plugin.Descriptor {
	time.Sleep(2 * time.Second)
	return plugin.Descriptor{Command: "sleepy"}
}
`

func TestRegistryReload_HungPluginAbandoned(t *testing.T) {
	dir := t.TempDir()
	writePlugin(t, dir, "greeter.go", greeterSource)
	writePlugin(t, dir, "sleepy.go", sleepy)

	r := NewRegistry(Config{Dir: dir, LoadTimeout: 100 * time.Millisecond}, discardLogger())
	start := time.Now()
	gen, err := r.Reload(context.Background())
	if err != nil {
		t.Fatalf("Reload() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Reload() took %s, want it bounded by the load timeout", elapsed)
	}

	if _, ok := gen.Lookup("greet"); !ok {
		t.Error("greet should still load")
	}
	if _, ok := gen.Lookup("sleepy"); ok {
		t.Error("sleepy should be skipped")
	}
	var reason string
	for _, s := range gen.Skipped() {
		if s.Plugin == "sleepy" {
			reason = s.Reason
		}
	}
	if !strings.Contains(reason, errLoadAbandoned.Error()) {
		t.Errorf("skip reason = %q, want %q", reason, errLoadAbandoned)
	}
}
