package dialogue

import (
	"strings"
	"unicode"

	"github.com/nugget/thane-voice/internal/capability"
	"github.com/nugget/thane-voice/internal/llm"
	"github.com/nugget/thane-voice/internal/prompts"
)

// replyFrom maps a gateway response onto the reply shape. A native
// tool call wins over text; otherwise the text is parsed and coerced.
func replyFrom(resp llm.Response, gen *capability.Generation) prompts.Reply {
	if len(resp.ToolCalls) > 0 {
		if r, ok := fromToolCall(resp.ToolCalls[0], resp.Content, gen); ok {
			return r
		}
	}
	r := prompts.ParseReply(resp.Content)
	r.Command = normalizeCommand(r.Command, gen)
	return r
}

// fromToolCall converts "core_timer" {seconds: 60} into
// {command: "core timer", params: {seconds: 60}}. For "<cmd>_main" an
// "action" argument selects the sub-command and a lone "params"
// argument is unwrapped.
func fromToolCall(tc llm.ToolCall, content string, gen *capability.Generation) (prompts.Reply, bool) {
	command, sub, ok := capability.ParseToolName(gen, tc.Function.Name)
	if !ok {
		return prompts.Reply{}, false
	}

	args := make(map[string]any, len(tc.Function.Arguments))
	for k, v := range tc.Function.Arguments {
		args[k] = v
	}
	if sub == "" {
		if action, ok := args["action"].(string); ok && action != "" {
			sub = action
		}
		delete(args, "action")
	}

	var params any = args
	if v, ok := args["params"]; ok && len(args) == 1 {
		params = v
	}

	text := ""
	if strings.TrimSpace(content) != "" {
		text = prompts.ParseReply(content).Text
	}
	return prompts.Reply{
		Text:    text,
		Command: strings.TrimSpace(command + " " + sub),
		Params:  params,
	}, true
}

// normalizeCommand accepts tool-name spellings ("core_timer",
// "weather_main") in a text reply's command field.
func normalizeCommand(command string, gen *capability.Generation) string {
	command = strings.TrimSpace(command)
	if command == "" || strings.Contains(command, " ") {
		return command
	}
	if _, found := gen.Lookup(command); found {
		return command
	}
	if s, found := gen.Schema(command); found {
		return strings.TrimSpace(s.Command + " " + s.Sub)
	}
	return command
}

// ToolList renders schemas for the system prompt, using the
// space-separated command form the reply must use.
func ToolList(schemas []capability.FunctionSchema) []prompts.Tool {
	tools := make([]prompts.Tool, 0, len(schemas))
	for _, s := range schemas {
		var params []string
		for _, p := range s.Params {
			if p.Required {
				params = append(params, "<"+p.Name+">")
			} else {
				params = append(params, "["+p.Name+"]")
			}
		}
		tools = append(tools, prompts.Tool{
			Command:     strings.TrimSpace(s.Command + " " + s.Sub),
			Description: s.Description,
			Params:      strings.Join(params, " "),
		})
	}
	return tools
}

// Suggest names the command whose words appear in text: a sub-command
// name, or failing that a command name. It returns "" when nothing
// matches.
func Suggest(text string, schemas []capability.FunctionSchema) string {
	words := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		words[w] = true
	}

	for _, s := range schemas {
		if s.Sub != "" && len(s.Sub) >= 3 && words[strings.ToLower(s.Sub)] {
			return s.Command + " " + s.Sub
		}
	}
	for _, s := range schemas {
		if words[strings.ToLower(s.Command)] {
			return s.Command
		}
	}
	return ""
}
