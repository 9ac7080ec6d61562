package capability

import (
	"regexp"
	"strings"

	"github.com/nugget/thane-voice/pkg/plugin"
)

// MainSuffix names the schema generated for a capability's top-level
// handler: "<command>_main".
const MainSuffix = "main"

// FunctionSchema is the tool-calling projection of one capability or
// sub-command.
type FunctionSchema struct {
	Name        string
	Description string

	// Command and Sub identify the target; Sub is empty for the
	// top-level handler.
	Command string
	Sub     string

	// Params lists the parameters in declaration order. Parameters is
	// the same list rendered as a JSON-schema object.
	Params     []plugin.Param
	Parameters map[string]any
}

var hintParam = regexp.MustCompile(`<([^<>]+)>`)

// Compile projects descriptors into function schemas. Output order is
// deterministic: by command, with the main schema first and sub-commands
// sorted by name.
func Compile(descs []*Descriptor) []FunctionSchema {
	var out []FunctionSchema
	for _, d := range descs {
		subs := d.SubCommandNames()

		if d.Handler != nil {
			params := []plugin.Param{{
				Name:        "params",
				Type:        "string",
				Description: "Free-form parameters for the command",
			}}
			if len(subs) > 0 {
				params = append(params, plugin.Param{
					Name:        "action",
					Type:        "string",
					Description: "Optional sub-command to run instead of the main action",
				})
			}
			s := newSchema(d.Command, "", d.Description, params)
			if len(subs) > 0 {
				props := s.Parameters["properties"].(map[string]any)
				props["action"].(map[string]any)["enum"] = subs
			}
			out = append(out, s)
		}

		for _, name := range subs {
			sub := d.SubCommands[name]
			out = append(out, newSchema(d.Command, name, sub.Description, subParams(sub)))
		}
	}
	return out
}

// subParams resolves a sub-command's parameters: explicit Params win,
// then an angle-bracket hint, then a single free-form "params" string.
func subParams(sub plugin.SubCommand) []plugin.Param {
	if len(sub.Params) > 0 {
		params := make([]plugin.Param, len(sub.Params))
		copy(params, sub.Params)
		return params
	}

	if params := ParseHint(sub.ParamsHint); len(params) > 0 {
		return params
	}

	desc := "Free-form parameters"
	if hint := strings.TrimSpace(sub.ParamsHint); hint != "" {
		desc = hint
	}
	return []plugin.Param{{Name: "params", Type: "string", Description: desc}}
}

// ParseHint turns a legacy hint such as "<datetime> <note>" into
// required string parameters, in order. Hints without angle brackets
// yield nil.
func ParseHint(hint string) []plugin.Param {
	matches := hintParam.FindAllStringSubmatch(hint, -1)
	if len(matches) == 0 {
		return nil
	}

	params := make([]plugin.Param, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		name := strings.Join(strings.Fields(strings.ToLower(m[1])), "_")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		params = append(params, plugin.Param{Name: name, Type: "string", Required: true})
	}
	return params
}

func newSchema(command, sub, description string, params []plugin.Param) FunctionSchema {
	name := SchemaName(command, sub)

	props := make(map[string]any, len(params))
	var required []string
	for _, p := range params {
		typ := p.Type
		if typ == "" {
			typ = "string"
		}
		prop := map[string]any{"type": typ}
		if p.Description != "" {
			prop["description"] = p.Description
		}
		props[p.Name] = prop
		if p.Required {
			required = append(required, p.Name)
		}
	}

	parameters := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		parameters["required"] = required
	}

	return FunctionSchema{
		Name:        name,
		Description: Enrich(name, description),
		Command:     command,
		Sub:         sub,
		Params:      params,
		Parameters:  parameters,
	}
}

// SchemaName builds the tool name for a command and optional
// sub-command.
func SchemaName(command, sub string) string {
	if sub == "" {
		sub = MainSuffix
	}
	return sanitizeName(command) + "_" + sanitizeName(sub)
}

// sanitizeName keeps tool names within the character set every provider
// accepts.
func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// ToolDefinitions renders schemas in the OpenAI-style tool list shape
// accepted by every provider client.
func ToolDefinitions(schemas []FunctionSchema) []map[string]any {
	if len(schemas) == 0 {
		return nil
	}
	result := make([]map[string]any, 0, len(schemas))
	for _, s := range schemas {
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        s.Name,
				"description": s.Description,
				"parameters":  s.Parameters,
			},
		})
	}
	return result
}

// ParseToolName maps a tool name back to its command and sub-command.
// Names are resolved against the generation first, since commands may
// themselves contain underscores; unknown names are split on the last
// underscore.
func ParseToolName(g *Generation, name string) (command, sub string, ok bool) {
	if s, found := g.Schema(name); found {
		return s.Command, s.Sub, true
	}
	i := strings.LastIndex(name, "_")
	if i <= 0 || i == len(name)-1 {
		return "", "", false
	}
	command, sub = name[:i], name[i+1:]
	if sub == MainSuffix {
		sub = ""
	}
	return command, sub, true
}
