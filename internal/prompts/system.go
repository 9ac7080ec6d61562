package prompts

import (
	"fmt"
	"strings"
)

// defaultPersonaTemplate is used when no persona is configured. The
// single format verb is the assistant's name.
const defaultPersonaTemplate = `You are %s, a friendly voice assistant running on the user's own computer.

Everything you say is read aloud by a speech synthesizer:
- Keep answers short, one to three sentences unless asked for more.
- Never use markdown, lists, code blocks, or emoji.
- Spell out numbers and units the way a person would say them.

Only run a command when the user asks you to DO or CHECK something a command covers.
For greetings, small talk, and questions about yourself, just answer.`

// DefaultPersona returns the built-in persona for an assistant name.
func DefaultPersona(name string) string {
	return fmt.Sprintf(defaultPersonaTemplate, name)
}

// Tool is one line of the available-tool list.
type Tool struct {
	// Command is how the reply must name it: "core timer", "weather".
	Command     string
	Description string
	// Params summarizes the parameters, e.g. "<seconds>".
	Params string
}

// SystemParts holds the dynamic pieces of the system prompt. Empty
// fields are omitted.
type SystemParts struct {
	Persona  string
	Language string // BCP 47 tag of the detected language

	// Suggestion names a command that likely matches the request.
	Suggestion string
	Tools      []Tool

	// Foreground describes what the user is currently looking at.
	Foreground string
}

// SystemPrompt assembles persona, language directive, tool suggestion,
// available tools, foreground context, and the reply format, in that
// order.
func SystemPrompt(p SystemParts) string {
	var sb strings.Builder

	sb.WriteString(strings.TrimSpace(p.Persona))

	if p.Language != "" {
		sb.WriteString("\n\n## Language\n")
		sb.WriteString(LanguageDirective(p.Language))
	}

	if p.Suggestion != "" {
		sb.WriteString("\n\n## Suggestion\n")
		fmt.Fprintf(&sb, "The request looks like a job for the %q command. Use it if it fits; otherwise ignore this hint.", p.Suggestion)
	}

	sb.WriteString("\n\n")
	sb.WriteString(ToolList(p.Tools))

	if p.Foreground != "" {
		sb.WriteString("\n\n## Current Context\n")
		sb.WriteString("The user is currently looking at: ")
		sb.WriteString(p.Foreground)
		sb.WriteString("\nWords like \"this\" or \"here\" probably refer to it.")
	}

	sb.WriteString("\n\n")
	sb.WriteString(ReplyFormat())

	return sb.String()
}

// ToolList renders the available-tool section. With no tools the model
// is told to leave command empty.
func ToolList(tools []Tool) string {
	var sb strings.Builder
	sb.WriteString("## Available Commands\n")
	if len(tools) == 0 {
		sb.WriteString("No commands are available right now. Always leave \"command\" empty and answer directly.")
		return sb.String()
	}
	for _, t := range tools {
		sb.WriteString("- ")
		sb.WriteString(t.Command)
		if t.Params != "" {
			sb.WriteString(" ")
			sb.WriteString(t.Params)
		}
		if t.Description != "" {
			sb.WriteString(": ")
			sb.WriteString(t.Description)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
