package capability

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nugget/thane-voice/pkg/plugin"
)

// Config locates plugins and their enable state.
type Config struct {
	Dir         string
	StateFile   string
	LoadTimeout time.Duration
}

// Registry loads capabilities and publishes them as generations. Reads
// through Current and Lookup are lock-free; reloads are serialized.
type Registry struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex // serializes Reload and guards builtins
	builtins []*Descriptor
	number   int64
	onReload []func(*Generation)
	fp       string // fingerprint of the inputs to the last Reload

	current atomic.Pointer[Generation]
}

// NewRegistry creates a registry with an empty live generation. Call
// Reload to populate it.
func NewRegistry(cfg Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		cfg:    cfg,
		logger: logger.With("component", "capability"),
	}
	r.current.Store(newGeneration(0, nil, nil))
	return r
}

// AddBuiltin registers a capability implemented in Go. Builtins are
// loaded before plugin files and win command-name conflicts. The new
// builtin becomes visible on the next Reload.
func (r *Registry) AddBuiltin(name string, d plugin.Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builtins = append(r.builtins, newDescriptor(d, name, SourceBuiltin))
}

// OnReload registers fn to be called with every newly published
// generation.
func (r *Registry) OnReload(fn func(*Generation)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReload = append(r.onReload, fn)
}

// Current returns the live generation. It is never nil.
func (r *Registry) Current() *Generation {
	return r.current.Load()
}

// Lookup finds a capability in the live generation.
func (r *Registry) Lookup(command string) (*Descriptor, bool) {
	return r.Current().Lookup(command)
}

// Reload builds and publishes a new generation from the builtins and
// the plugin directory. Individual plugin failures are logged and
// skipped. A non-nil error means the plugin directory itself could not
// be read; the returned generation is still published and holds
// whatever did load.
func (r *Registry) Reload(ctx context.Context) (*Generation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.fp = r.fingerprint()

	state, err := LoadEnableState(r.cfg.StateFile)
	if err != nil {
		r.logger.Warn("ignoring unreadable plugin enable state", "path", r.cfg.StateFile, "error", err)
		state = EnableState{}
	}

	var (
		descs   []*Descriptor
		skipped []Skipped
		seen    = make(map[string]string)
	)
	add := func(d *Descriptor) {
		if !state.Enabled(d.Plugin) {
			r.logger.Info("plugin disabled", "plugin", d.Plugin)
			skipped = append(skipped, Skipped{Plugin: d.Plugin, Source: d.Source, Reason: "disabled"})
			return
		}
		key := normalizeCommand(d.Command)
		if other, dup := seen[key]; dup {
			r.logger.Warn("skipping plugin with duplicate command",
				"plugin", d.Plugin, "command", d.Command, "registered_by", other)
			skipped = append(skipped, Skipped{Plugin: d.Plugin, Source: d.Source,
				Reason: fmt.Sprintf("command %q already registered by %s", d.Command, other)})
			return
		}
		seen[key] = d.Plugin
		descs = append(descs, d)
	}

	for _, d := range r.builtins {
		add(d)
	}

	files, dirErr := pluginFiles(r.cfg.Dir)
	for _, path := range files {
		name := strings.TrimSuffix(filepath.Base(path), ".go")
		if !state.Enabled(name) {
			r.logger.Info("plugin disabled", "plugin", name)
			skipped = append(skipped, Skipped{Plugin: name, Source: path, Reason: "disabled"})
			continue
		}

		pd, err := loadPluginFile(ctx, path, r.cfg.LoadTimeout)
		if errors.Is(err, errLoadAbandoned) {
			r.logger.Error("plugin load hung, its goroutine is still running",
				"plugin", name, "path", path, "error", err)
		}
		if err != nil {
			r.logger.Warn("skipping plugin", "plugin", name, "path", path, "error", err)
			skipped = append(skipped, Skipped{Plugin: name, Source: path, Reason: err.Error()})
			continue
		}
		add(newDescriptor(pd, name, path))
	}

	r.number++
	gen := newGeneration(r.number, descs, skipped)
	r.current.Store(gen)

	r.logger.Info("capabilities loaded",
		"generation", gen.Number,
		"capabilities", gen.Len(),
		"schemas", len(gen.Schemas()),
		"skipped", len(skipped),
	)

	for _, fn := range r.onReload {
		fn(gen)
	}

	if dirErr != nil {
		return gen, fmt.Errorf("read plugin dir %s: %w", r.cfg.Dir, dirErr)
	}
	return gen, nil
}

// pluginFiles lists *.go files in dir, sorted, skipping tests. A missing
// directory has no plugins.
func pluginFiles(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !isPluginFile(name) {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}

func isPluginFile(name string) bool {
	return strings.HasSuffix(name, ".go") &&
		!strings.HasSuffix(name, "_test.go") &&
		!strings.HasPrefix(name, ".")
}
