package gesture

import (
	"errors"
	"time"
)

// CursorSample is the pointer position for one frame.
type CursorSample struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Visible bool    `json:"visible"`
}

// PinchState is the button state for one frame.
type PinchState struct {
	Down         bool `json:"down"`
	JustPressed  bool `json:"just_pressed"`
	JustReleased bool `json:"just_released"`
}

// Config holds the pinch thresholds.
type Config struct {
	// Engage is the ratio below which a pinch presses.
	Engage float64 `yaml:"engage"`

	// Release is the ratio above which a pinch releases. It must exceed Engage.
	Release float64 `yaml:"release"`

	// Debounce is the minimum time between two presses.
	Debounce time.Duration `yaml:"debounce"`

	// FPS caps how often the runner processes frames.
	FPS int `yaml:"fps"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		Engage:   0.35,
		Release:  0.45,
		Debounce: 350 * time.Millisecond,
		FPS:      30,
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	var errs []error
	if c.Engage <= 0 {
		errs = append(errs, errors.New("gesture: engage must be positive"))
	}
	if c.Release <= c.Engage {
		errs = append(errs, errors.New("gesture: release must be greater than engage"))
	}
	if c.Debounce < 0 {
		errs = append(errs, errors.New("gesture: debounce must not be negative"))
	}
	if c.FPS <= 0 {
		errs = append(errs, errors.New("gesture: fps must be positive"))
	}
	return errors.Join(errs...)
}

// Tracker maps landmarks to cursor and pinch state. It is not safe for
// concurrent use; one runner owns it.
type Tracker struct {
	cfg       Config
	down      bool
	lastPress time.Time
}

// NewTracker creates a tracker.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{cfg: cfg}
}

// Update processes one frame. hand is nil when no hand was found.
func (t *Tracker) Update(now time.Time, hand *Landmarks) (CursorSample, PinchState) {
	if hand == nil {
		var state PinchState
		if t.down {
			t.down = false
			state.JustReleased = true
		}
		return CursorSample{}, state
	}

	tip := hand[IndexTip]
	cursor := CursorSample{X: clamp01(tip.X), Y: clamp01(tip.Y), Visible: true}

	ratio, ok := hand.PinchRatio()
	if !ok {
		return cursor, PinchState{Down: t.down}
	}

	var state PinchState
	switch {
	case !t.down && ratio < t.cfg.Engage:
		if t.lastPress.IsZero() || now.Sub(t.lastPress) >= t.cfg.Debounce {
			t.down = true
			t.lastPress = now
			state.JustPressed = true
		}
	case t.down && ratio > t.cfg.Release:
		t.down = false
		state.JustReleased = true
	}
	state.Down = t.down
	return cursor, state
}

// Down reports whether a pinch is engaged.
func (t *Tracker) Down() bool {
	return t.down
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
