package voice

import (
	"errors"
	"time"
)

// Config holds the controller and capture timings.
type Config struct {
	// SettleDelay separates ARMED from CAPTURING_COMMAND.
	SettleDelay time.Duration `yaml:"settle_delay"`

	// ErrorDisplayDelay keeps an error notice visible before returning to idle.
	ErrorDisplayDelay time.Duration `yaml:"error_display_delay"`

	// SafetyBlock closes the resume gate on wake in case nothing reopens it.
	SafetyBlock time.Duration `yaml:"safety_block"`

	// ResponseCooldown keeps the detector off after transcription so it does
	// not hear the reply.
	ResponseCooldown time.Duration `yaml:"response_cooldown"`

	// ResumePoll is the resume scheduler's tick.
	ResumePoll time.Duration `yaml:"resume_poll"`

	// MaxDuration is the hard capture ceiling.
	MaxDuration time.Duration `yaml:"max_duration"`

	// EndSilence ends capture early after speech followed by this much
	// silence. Zero disables the end-pointer.
	EndSilence time.Duration `yaml:"end_silence"`

	// SpeechLevel is the RMS level in [0,1] above which a slice counts as speech.
	SpeechLevel float64 `yaml:"speech_level"`

	// StartMuted leaves the microphone closed until Unmute.
	StartMuted bool `yaml:"start_muted"`
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{
		SettleDelay:       120 * time.Millisecond,
		ErrorDisplayDelay: 1200 * time.Millisecond,
		SafetyBlock:       60 * time.Second,
		ResponseCooldown:  4 * time.Second,
		ResumePoll:        150 * time.Millisecond,
		MaxDuration:       8 * time.Second,
		EndSilence:        1200 * time.Millisecond,
		SpeechLevel:       0.02,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	var errs []error
	if c.SettleDelay < 0 || c.ErrorDisplayDelay < 0 || c.SafetyBlock < 0 || c.ResponseCooldown < 0 {
		errs = append(errs, errors.New("voice: delays must not be negative"))
	}
	if c.ResumePoll <= 0 {
		errs = append(errs, errors.New("voice: resume_poll must be positive"))
	}
	if c.MaxDuration <= 0 {
		errs = append(errs, errors.New("voice: max_duration must be positive"))
	}
	if c.EndSilence < 0 || c.EndSilence >= c.MaxDuration {
		errs = append(errs, errors.New("voice: end_silence must be in [0, max_duration)"))
	}
	if c.SpeechLevel <= 0 || c.SpeechLevel >= 1 {
		errs = append(errs, errors.New("voice: speech_level must be between 0 and 1"))
	}
	return errors.Join(errs...)
}
