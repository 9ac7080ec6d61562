// Package capability discovers capability plugins, publishes them as
// immutable generations, and compiles them into function schemas for
// tool-calling models.
package capability

import (
	"sort"
	"strings"
	"time"

	"github.com/nugget/thane-voice/pkg/plugin"
)

// SourceBuiltin marks descriptors registered from Go code rather than
// loaded from a plugin file.
const SourceBuiltin = "builtin"

// Descriptor is a registered capability together with where it came
// from.
type Descriptor struct {
	plugin.Descriptor

	// Plugin is the name used in the enable-state file: the file name
	// without its .go extension, or the builtin's registered name.
	Plugin string
	// Source is the plugin file path or SourceBuiltin.
	Source string
}

// newDescriptor wraps pd with a copy of its sub-command table keyed by
// lower-cased name, the form callers resolve sub-commands in. When two
// names differ only in case, the one sorting first wins.
func newDescriptor(pd plugin.Descriptor, name, source string) *Descriptor {
	if len(pd.SubCommands) > 0 {
		keys := make([]string, 0, len(pd.SubCommands))
		for k := range pd.SubCommands {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		subs := make(map[string]plugin.SubCommand, len(keys))
		for _, k := range keys {
			key := normalizeCommand(k)
			if _, dup := subs[key]; dup {
				continue
			}
			subs[key] = pd.SubCommands[k]
		}
		pd.SubCommands = subs
	}
	return &Descriptor{Descriptor: pd, Plugin: name, Source: source}
}

// SubCommand returns the sub-command declared as name. Names match
// case-insensitively.
func (d *Descriptor) SubCommand(name string) (plugin.SubCommand, bool) {
	name = normalizeCommand(name)
	if name == "" {
		return plugin.SubCommand{}, false
	}
	if sc, ok := d.SubCommands[name]; ok {
		return sc, true
	}
	for k, sc := range d.SubCommands {
		if normalizeCommand(k) == name {
			return sc, true
		}
	}
	return plugin.SubCommand{}, false
}

// HasSubCommand reports whether name is a declared sub-command.
func (d *Descriptor) HasSubCommand(name string) bool {
	_, ok := d.SubCommand(name)
	return ok
}

// SubCommandNames returns declared sub-command names, sorted.
func (d *Descriptor) SubCommandNames() []string {
	names := make([]string, 0, len(d.SubCommands))
	for name := range d.SubCommands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Skipped records a plugin left out of a generation and why.
type Skipped struct {
	Plugin string
	Source string
	Reason string
}

// Generation is one immutable snapshot of the registry. Reloads build a
// new Generation; nothing mutates a published one.
type Generation struct {
	Number   int64
	LoadedAt time.Time

	byCommand map[string]*Descriptor
	ordered   []*Descriptor
	schemas   []FunctionSchema
	byName    map[string]FunctionSchema
	skipped   []Skipped
}

func newGeneration(number int64, descs []*Descriptor, skipped []Skipped) *Generation {
	sort.Slice(descs, func(i, j int) bool { return descs[i].Command < descs[j].Command })

	g := &Generation{
		Number:    number,
		LoadedAt:  time.Now(),
		byCommand: make(map[string]*Descriptor, len(descs)),
		ordered:   descs,
		skipped:   skipped,
	}
	for _, d := range descs {
		g.byCommand[normalizeCommand(d.Command)] = d
	}
	g.schemas = Compile(descs)
	g.byName = make(map[string]FunctionSchema, len(g.schemas))
	for _, s := range g.schemas {
		g.byName[s.Name] = s
	}
	return g
}

// Lookup returns the descriptor registered for command.
func (g *Generation) Lookup(command string) (*Descriptor, bool) {
	if g == nil {
		return nil, false
	}
	d, ok := g.byCommand[normalizeCommand(command)]
	return d, ok
}

// Descriptors returns all descriptors sorted by command.
func (g *Generation) Descriptors() []*Descriptor {
	if g == nil {
		return nil
	}
	return g.ordered
}

// Schemas returns the function schemas compiled for this generation.
func (g *Generation) Schemas() []FunctionSchema {
	if g == nil {
		return nil
	}
	return g.schemas
}

// Schema resolves a function schema by its tool name.
func (g *Generation) Schema(name string) (FunctionSchema, bool) {
	if g == nil {
		return FunctionSchema{}, false
	}
	s, ok := g.byName[name]
	return s, ok
}

// Skipped lists plugins left out of this generation.
func (g *Generation) Skipped() []Skipped {
	if g == nil {
		return nil
	}
	return g.skipped
}

// Len returns the number of registered capabilities.
func (g *Generation) Len() int {
	if g == nil {
		return 0
	}
	return len(g.ordered)
}

func normalizeCommand(command string) string {
	return strings.ToLower(strings.TrimSpace(command))
}
