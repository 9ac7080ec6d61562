package prompts

import "fmt"

// retryTemplate follows a failed command. Format verbs: the failed
// command output, then the language directive.
const retryTemplate = `You tried to help the user with a command, but it failed with this output:

%s

No commands are available now. Answer the user's request directly as well as you can, or briefly apologize and say what went wrong in plain words. Do not mention tools, JSON, or internal errors.

%s`

// RetryPrompt returns the system prompt used to answer a request after
// its command produced an error.
func RetryPrompt(persona, errText, lang string) string {
	body := fmt.Sprintf(retryTemplate, errText, LanguageDirective(lang)) + "\n\n" + ReplyFormat()
	if persona == "" {
		return body
	}
	return persona + "\n\n" + body
}
