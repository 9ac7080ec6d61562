package memory

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"golang.org/x/text/language"

	"github.com/nugget/thane-voice/pkg/plugin"
)

// Command is the capability name the dialogue pipeline routes memory
// recall to.
const Command = "memory"

const recallLimit = 5

// Capability returns the built-in memory descriptor backed by s.
func Capability(s *Store, logger *slog.Logger) plugin.Descriptor {
	if logger == nil {
		logger = slog.Default()
	}
	c := &capability{store: s, logger: logger.With("component", "memory")}
	return plugin.Descriptor{
		Command:     Command,
		Description: "Remember facts for the user and recall them later",
		Handler:     c.get,
		SubCommands: map[string]plugin.SubCommand{
			"add": {
				Handler:     c.add,
				Description: "Remember a fact the user asked to keep",
				ParamsHint:  "<note>",
			},
			"get": {
				Handler:     c.get,
				Description: "Recall remembered facts, optionally about a topic",
				Params: []plugin.Param{
					{Name: "query", Description: "What to recall; empty for the latest notes"},
				},
			},
			"forget": {
				Handler:     c.forget,
				Description: "Forget remembered facts about a topic",
				ParamsHint:  "<topic>",
			},
		},
	}
}

type capability struct {
	store  *Store
	logger *slog.Logger
}

func (c *capability) add(in plugin.Input) (any, error) {
	text := argOrText(in, "note")
	if strings.TrimSpace(text) == "" {
		return plugin.Fail(say(in.Language, msgNothingToAdd)), nil
	}
	if _, err := c.store.Add(user(in), text); err != nil {
		return nil, err
	}
	c.logger.Info("note remembered", "user", user(in))
	return plugin.OK(say(in.Language, msgAdded)), nil
}

func (c *capability) get(in plugin.Input) (any, error) {
	query := argOrText(in, "query")
	terms := Keywords(query)

	notes, err := c.store.Search(user(in), terms, recallLimit)
	if err != nil {
		return nil, err
	}
	if len(notes) == 0 && len(terms) > 0 {
		return plugin.OK(say(in.Language, msgNothingAbout)), nil
	}
	if len(terms) == 0 {
		if notes, err = c.store.Recent(user(in), recallLimit); err != nil {
			return nil, err
		}
	}
	if len(notes) == 0 {
		return plugin.OK(say(in.Language, msgEmpty)), nil
	}

	lines := make([]string, len(notes))
	for i, n := range notes {
		lines[i] = n.Text
	}
	return plugin.OK(say(in.Language, msgRecall) + " " + strings.Join(lines, ". ")), nil
}

func (c *capability) forget(in plugin.Input) (any, error) {
	topic := argOrText(in, "topic")
	terms := Keywords(topic)
	if len(terms) == 0 {
		return plugin.Fail(say(in.Language, msgNothingToForget)), nil
	}
	n, err := c.store.Forget(user(in), terms)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return plugin.OK(say(in.Language, msgNothingAbout)), nil
	}
	c.logger.Info("notes forgotten", "user", user(in), "count", n)
	return plugin.OK(fmt.Sprintf(say(in.Language, msgForgot), n)), nil
}

// argOrText reads the named argument from structured params, or the
// whole text of free-form ones.
func argOrText(in plugin.Input, name string) string {
	m, ok := in.Params.(map[string]any)
	if !ok {
		return in.Text()
	}
	if v := in.Arg(name); v != "" {
		return v
	}
	if v, ok := m["params"]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

func user(in plugin.Input) string {
	if in.User == "" {
		return "default"
	}
	return in.User
}

// Keywords extracts the searchable words of a query: at least three
// letters and not a common function word.
func Keywords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var out []string
	seen := make(map[string]bool)
	for _, f := range fields {
		if len([]rune(f)) < 3 || stopWords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

var stopWords = func() map[string]bool {
	m := make(map[string]bool)
	for _, w := range strings.Fields(`
		the and you your what about remember recall tell know that this with
		from have are was were for did does any anything something everything
		please can could would should forget note keep mine
		czy pamiętasz pamiętaj jest oraz albo przypomnij powiedz wiesz mnie
		mój moja moje moim coś tym tego jak czym
		was weißt erinnerst dich über mein meine bitte und der die das`) {
		m[w] = true
	}
	return m
}()

type message int

const (
	msgAdded message = iota
	msgNothingToAdd
	msgRecall
	msgEmpty
	msgNothingAbout
	msgNothingToForget
	msgForgot
)

var messages = map[string]map[message]string{
	"en": {
		msgAdded:           "Got it, I'll remember that.",
		msgNothingToAdd:    "What should I remember?",
		msgRecall:          "Here is what I remember:",
		msgEmpty:           "I don't remember anything yet.",
		msgNothingAbout:    "I don't remember anything about that.",
		msgNothingToForget: "What should I forget?",
		msgForgot:          "Done, I forgot %d note(s).",
	},
	"pl": {
		msgAdded:           "Jasne, zapamiętam to.",
		msgNothingToAdd:    "Co mam zapamiętać?",
		msgRecall:          "Oto co pamiętam:",
		msgEmpty:           "Jeszcze niczego nie pamiętam.",
		msgNothingAbout:    "Nic o tym nie pamiętam.",
		msgNothingToForget: "Co mam zapomnieć?",
		msgForgot:          "Gotowe, zapomniałem notatek: %d.",
	},
}

func say(lang string, m message) string {
	base := "en"
	if tag, err := language.Parse(lang); err == nil {
		b, _ := tag.Base()
		base = b.String()
	}
	if table, ok := messages[base]; ok {
		return table[m]
	}
	return messages["en"][m]
}
