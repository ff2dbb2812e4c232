package wake

import (
	"errors"
	"regexp"
	"strings"
)

// Matcher finds a wake phrase in recognized text.
type Matcher struct {
	re *regexp.Regexp
}

// NewMatcher compiles phrases into a single pattern bounded by whole words.
func NewMatcher(phrases []string) (*Matcher, error) {
	var alts []string
	for _, p := range phrases {
		words := strings.Fields(Normalize(p).Normalized)
		if len(words) == 0 {
			continue
		}
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		alts = append(alts, strings.Join(words, " "))
	}
	if len(alts) == 0 {
		return nil, errors.New("wake: no usable phrases")
	}

	// Normalized text is single-space separated, so a space or either end
	// bounds a word for any script.
	re, err := regexp.Compile(`(?:^| )(?:` + strings.Join(alts, "|") + `)(?: |$)`)
	if err != nil {
		return nil, err
	}
	return &Matcher{re: re}, nil
}

// Match reports whether text contains a wake phrase.
func (m *Matcher) Match(text string) bool {
	if isNonSpeech(text) {
		return false
	}
	return m.re.MatchString(Normalize(text).Normalized)
}
