package dialogue

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/abadojack/whatlanggo"
)

// minDetectRunes is the shortest input handed to the classifier.
const minDetectRunes = 4

// markers are the letters and stop-words that betray a language when
// the classifier is unsure.
type markers struct {
	letters   string
	stopWords []string
}

var languageMarkers = map[string]markers{
	"pl": {letters: "ąćęłńóśźż", stopWords: []string{"i", "w", "nie", "to", "jest", "się", "na", "co", "jak", "czy", "mi", "jaka", "jaki", "która", "proszę"}},
	"de": {letters: "äöüß", stopWords: []string{"und", "ist", "der", "die", "das", "nicht", "wie", "ich", "bitte", "mir"}},
	"fr": {letters: "àâçéèêëîïôûùüÿœ", stopWords: []string{"le", "la", "les", "est", "et", "je", "quel", "quelle", "moi"}},
	"es": {letters: "áéíñóúü¿¡", stopWords: []string{"el", "la", "es", "y", "que", "qué", "cómo", "por", "favor"}},
	"it": {letters: "àèéìòù", stopWords: []string{"il", "la", "è", "e", "che", "come", "per", "favore"}},
	"en": {stopWords: []string{"the", "is", "what", "a", "and", "please", "how", "me"}},
}

// LanguageDetector picks the reply language for an utterance.
type LanguageDetector struct {
	// Fallback is used for very short input and for unsure detections
	// that show the fallback's markers.
	Fallback string
	// MinConfidence below which a detection counts as unsure.
	MinConfidence float64
}

// Detect returns an ISO 639-1 code.
func (d LanguageDetector) Detect(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < minDetectRunes {
		return d.Fallback
	}

	info := whatlanggo.Detect(text)
	code := info.Lang.Iso6391()
	if code == "" {
		return d.Fallback
	}
	if code != d.Fallback && info.Confidence < d.MinConfidence && hasMarkers(text, d.Fallback) {
		return d.Fallback
	}
	return code
}

// hasMarkers reports whether text contains a letter or stop-word
// characteristic of lang.
func hasMarkers(text, lang string) bool {
	m, ok := languageMarkers[lang]
	if !ok {
		return false
	}
	lower := strings.ToLower(text)
	if m.letters != "" && strings.ContainsAny(lower, m.letters) {
		return true
	}
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		for _, s := range m.stopWords {
			if w == s {
				return true
			}
		}
	}
	return false
}
