package wake

import (
	"errors"
	"fmt"
	"time"
)

// DefaultPhrases are the wake variants matched when none are configured.
var DefaultPhrases = []string{"hey nova", "ok nova", "okay nova"}

// Config holds wake detection timings and phrases.
type Config struct {
	// Phrases are the accepted wake variants, matched on word boundaries
	// after normalization.
	Phrases []string `yaml:"phrases"`

	// ChunkDuration is how much audio the chunked strategy transcribes per pass.
	ChunkDuration time.Duration `yaml:"chunk_duration"`

	// Cooldown suppresses transcription after a wake.
	Cooldown time.Duration `yaml:"cooldown"`

	// RetriggerGap is the minimum time between two wakes.
	RetriggerGap time.Duration `yaml:"retrigger_gap"`

	// Pace is the pause between chunked passes that did not wake.
	Pace time.Duration `yaml:"pace"`

	// Backoff is the pause after a failed transcription or a broken
	// recognizer session.
	Backoff time.Duration `yaml:"backoff"`

	// RecognizerDedupe suppresses repeated continuous-recognizer emits.
	RecognizerDedupe time.Duration `yaml:"recognizer_dedupe"`
}

// DefaultConfig returns the standard wake timings.
func DefaultConfig() Config {
	return Config{
		Phrases:          append([]string(nil), DefaultPhrases...),
		ChunkDuration:    1400 * time.Millisecond,
		Cooldown:         8 * time.Second,
		RetriggerGap:     500 * time.Millisecond,
		Pace:             260 * time.Millisecond,
		Backoff:          900 * time.Millisecond,
		RecognizerDedupe: 1800 * time.Millisecond,
	}
}

// withDefaultPhrases returns c with DefaultPhrases when none are set.
func (c Config) withDefaultPhrases() Config {
	if len(c.Phrases) == 0 {
		c.Phrases = append([]string(nil), DefaultPhrases...)
	}
	return c
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if len(c.Phrases) == 0 {
		errs = append(errs, errors.New("wake: at least one phrase is required"))
	}
	for _, p := range c.Phrases {
		if Normalize(p).Normalized == "" {
			errs = append(errs, fmt.Errorf("wake: phrase %q is empty after normalization", p))
		}
	}
	if c.ChunkDuration <= 0 {
		errs = append(errs, errors.New("wake: chunk_duration must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"cooldown":          c.Cooldown,
		"retrigger_gap":     c.RetriggerGap,
		"pace":              c.Pace,
		"backoff":           c.Backoff,
		"recognizer_dedupe": c.RecognizerDedupe,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("wake: %s must not be negative", name))
		}
	}
	return errors.Join(errs...)
}
