package voice

import (
	"errors"
	"fmt"
)

// Phase is the controller's position in the wake, capture, respond cycle.
type Phase int

const (
	PhaseIdleListening Phase = iota
	PhaseArmed
	PhaseCapturingCommand
	PhaseResponding
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdleListening:
		return "IDLE_LISTENING"
	case PhaseArmed:
		return "ARMED"
	case PhaseCapturingCommand:
		return "CAPTURING_COMMAND"
	case PhaseResponding:
		return "RESPONDING"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// MarshalText renders the phase name in JSON payloads.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ErrInvalidTransition is returned for an edge the table does not allow.
var ErrInvalidTransition = errors.New("voice: invalid phase transition")

// transitions lists the allowed edges. Typed input goes straight from idle
// to responding.
var transitions = map[Phase][]Phase{
	PhaseIdleListening:    {PhaseArmed, PhaseResponding},
	PhaseArmed:            {PhaseCapturingCommand, PhaseIdleListening},
	PhaseCapturingCommand: {PhaseResponding, PhaseIdleListening},
	PhaseResponding:       {PhaseIdleListening},
}

// CanTransition reports whether from→to is an allowed edge.
func CanTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// checkTransition returns ErrInvalidTransition wrapped with the edge.
func checkTransition(from, to Phase) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
