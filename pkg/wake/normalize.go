package wake

import (
	"strings"
	"unicode"
)

// Transcript is recognized text and its matching form.
type Transcript struct {
	Raw        string
	Normalized string
}

var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "`", "'")

// Normalize lower-cases raw, unifies apostrophes, turns every other
// non-alphanumeric into a space and collapses whitespace.
// Apostrophes are dropped so "nova's" and "novas" read the same.
func Normalize(raw string) Transcript {
	s := apostrophes.Replace(strings.ToLower(raw))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\'':
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	return Transcript{
		Raw:        raw,
		Normalized: strings.Join(strings.Fields(b.String()), " "),
	}
}

// isNonSpeech reports whether a recognizer result carries no words:
// empty text, a marker such as "(music)" or "[BLANK_AUDIO]", or no letters.
func isNonSpeech(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return true
	}
	if (strings.HasPrefix(t, "(") && strings.HasSuffix(t, ")")) ||
		(strings.HasPrefix(t, "[") && strings.HasSuffix(t, "]")) {
		return true
	}
	return strings.IndexFunc(t, unicode.IsLetter) < 0
}
