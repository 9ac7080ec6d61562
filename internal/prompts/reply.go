package prompts

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
)

// Reply is the strict object every model answer must be. It doubles as
// the source of the JSON schema shown to the model.
type Reply struct {
	Text    string `json:"text" jsonschema_description:"What to say to the user, in their language. Plain speech, no markdown."`
	Command string `json:"command" jsonschema_description:"Capability to run as 'command' or 'command sub', or an empty string to only speak text."`
	Params  any    `json:"params" jsonschema_description:"Parameters for the command: a string or an object. Empty object when no command."`
}

var replySchema = sync.OnceValue(func() string {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(&Reply{})
	s.Version = ""
	s.Title = "Reply"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		// The struct is static; this cannot fail at runtime.
		panic(fmt.Sprintf("prompts: marshal reply schema: %v", err))
	}
	return string(data)
})

// ReplySchema returns the JSON schema of [Reply].
func ReplySchema() string {
	return replySchema()
}

const replyFormatTemplate = `## Reply Format
Answer with exactly one JSON object matching this schema and nothing else:

%s

Examples:
{"text": "Hi! What can I do for you?", "command": "", "params": {}}
{"text": "Starting a one minute timer.", "command": "core timer", "params": "60"}`

// ReplyFormat returns the reply-format section of the system prompt.
func ReplyFormat() string {
	return fmt.Sprintf(replyFormatTemplate, ReplySchema())
}
