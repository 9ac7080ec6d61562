package prompts

import (
	"fmt"

	"golang.org/x/text/language"
)

// Message identifies a fixed user-facing phrase.
type Message int

// Phrases spoken on failure paths.
const (
	// MsgApology follows a command that failed or panicked.
	MsgApology Message = iota
	// MsgUnexpected is the last resort when recovery itself fails.
	MsgUnexpected
	// MsgDegraded is spoken when no language model answered.
	MsgDegraded
	// MsgNoHandler reports a command nothing can run. One format verb:
	// the command.
	MsgNoHandler
	// MsgNotHeard follows a capture that produced no transcript.
	MsgNotHeard
)

var messages = map[string]map[Message]string{
	"en": {
		MsgApology:    "Sorry, something went wrong while doing that.",
		MsgUnexpected: "Sorry, an unexpected error occurred.",
		MsgDegraded:   "I can't reach any of my language models right now. Please try again in a moment.",
		MsgNoHandler:  "Sorry, I don't know how to do %q.",
		MsgNotHeard:   "Sorry, I didn't catch that.",
	},
	"pl": {
		MsgApology:    "Przepraszam, coś poszło nie tak.",
		MsgUnexpected: "Przepraszam, wystąpił nieoczekiwany błąd.",
		MsgDegraded:   "Nie mogę teraz połączyć się z żadnym modelem językowym. Spróbuj ponownie za chwilę.",
		MsgNoHandler:  "Przepraszam, nie wiem, jak wykonać %q.",
		MsgNotHeard:   "Przepraszam, nie dosłyszałem.",
	},
	"de": {
		MsgApology:    "Entschuldigung, dabei ist etwas schiefgelaufen.",
		MsgUnexpected: "Entschuldigung, ein unerwarteter Fehler ist aufgetreten.",
		MsgDegraded:   "Ich kann gerade keines meiner Sprachmodelle erreichen. Bitte versuche es gleich noch einmal.",
		MsgNoHandler:  "Entschuldigung, ich weiß nicht, wie ich %q ausführen soll.",
		MsgNotHeard:   "Entschuldigung, das habe ich nicht verstanden.",
	},
}

// Text returns the phrase for m in lang, falling back to English for
// unknown languages. Region subtags are ignored ("pl-PL" reads as "pl").
func Text(m Message, lang string, args ...any) string {
	table, ok := messages[baseLanguage(lang)]
	if !ok {
		table = messages["en"]
	}
	s, ok := table[m]
	if !ok {
		s = messages["en"][m]
	}
	if len(args) > 0 {
		return fmt.Sprintf(s, args...)
	}
	return s
}

func baseLanguage(tag string) string {
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	base, _ := t.Base()
	return base.String()
}
