package prompts

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// LanguageName returns the English display name for a BCP 47 tag, or
// the tag itself when it cannot be parsed.
func LanguageName(tag string) string {
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	if name := display.English.Tags().Name(t); name != "" {
		return name
	}
	return tag
}

// LanguageDirective tells the model which language to answer in.
func LanguageDirective(tag string) string {
	return fmt.Sprintf("The user is speaking %s (%s). Write the \"text\" field in %s, even if tool results are in another language.",
		LanguageName(tag), tag, LanguageName(tag))
}
