// Package plugin is the contract between thane-voice and its capability
// plugins. A plugin is a single Go source file, interpreted at load time,
// that imports this package and exports a registration entry point:
//
//	package weather
//
//	import "github.com/nugget/thane-voice/pkg/plugin"
//
//	func Register() plugin.Descriptor {
//		return plugin.Descriptor{
//			Command:     "weather",
//			Description: "Current weather",
//			Handler:     current,
//			SubCommands: map[string]plugin.SubCommand{
//				"forecast": {Handler: forecast, Description: "Forecast", ParamsHint: "<city>"},
//			},
//		}
//	}
//
// Handlers receive the full [Input] and ignore what they do not need.
// Returning a [Result] reports success explicitly; any other non-nil
// value is stringified and treated as success; a non-nil error (or a
// panic) is reported to the user as a short apology.
package plugin

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EntryPoint is the name of the function every plugin file must export.
const EntryPoint = "Register"

// Handler runs one command.
type Handler func(in Input) (any, error)

// Descriptor is what a plugin's Register function returns.
type Descriptor struct {
	Command     string
	Description string
	Handler     Handler
	SubCommands map[string]SubCommand
}

// SubCommand is one named action under a command. Parameters are
// declared either explicitly with Params or with a legacy angle-bracket
// hint such as "<datetime> <note>".
type SubCommand struct {
	Handler     Handler
	Description string
	Params      []Param
	ParamsHint  string
}

// Param declares a single named parameter.
type Param struct {
	Name        string
	Type        string // JSON schema type; "string" when empty
	Required    bool
	Description string
}

// Turn is a read-only copy of one conversation turn.
type Turn struct {
	Role    string
	Content string
	Intent  string
}

// Input is the fixed argument bag passed to every handler.
type Input struct {
	// Params is whatever the model supplied: a string, a map decoded
	// from JSON, or nil.
	Params   any
	History  []Turn
	Language string
	User     string
}

// Result is an explicit (text, success) pair.
type Result struct {
	Text string
	OK   bool
}

// OK builds a successful Result.
func OK(text string) Result { return Result{Text: text, OK: true} }

// Fail builds a failed Result.
func Fail(text string) Result { return Result{Text: text, OK: false} }

// Text returns Params as a single string. Maps carrying a "params" key
// yield that value; other maps are rendered as JSON.
func (in Input) Text() string {
	switch p := in.Params.(type) {
	case nil:
		return ""
	case string:
		return p
	case map[string]any:
		if v, ok := p["params"]; ok {
			return fmt.Sprint(v)
		}
		if len(p) == 0 {
			return ""
		}
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Sprint(p)
		}
		return string(b)
	default:
		return fmt.Sprint(p)
	}
}

// Arg returns a named parameter as a string. For string Params, the
// first whitespace-separated fields are matched positionally against
// names in the order given by positional (may be nil).
func (in Input) Arg(name string, positional ...string) string {
	switch p := in.Params.(type) {
	case map[string]any:
		if v, ok := p[name]; ok && v != nil {
			return fmt.Sprint(v)
		}
	case string:
		fields := strings.Fields(p)
		for i, n := range positional {
			if n != name || i >= len(fields) {
				continue
			}
			if i == len(positional)-1 {
				return strings.Join(fields[i:], " ")
			}
			return fields[i]
		}
	}
	return ""
}
