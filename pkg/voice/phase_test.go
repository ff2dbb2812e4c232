package voice

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseIdleListening, PhaseArmed, true},
		{PhaseIdleListening, PhaseResponding, true},
		{PhaseIdleListening, PhaseCapturingCommand, false},
		{PhaseArmed, PhaseCapturingCommand, true},
		{PhaseArmed, PhaseIdleListening, true},
		{PhaseArmed, PhaseResponding, false},
		{PhaseCapturingCommand, PhaseResponding, true},
		{PhaseCapturingCommand, PhaseIdleListening, true},
		{PhaseCapturingCommand, PhaseArmed, false},
		{PhaseResponding, PhaseIdleListening, true},
		{PhaseResponding, PhaseArmed, false},
		{PhaseResponding, PhaseCapturingCommand, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition() = %v, want %v", got, tt.want)
			}
			err := checkTransition(tt.from, tt.to)
			if tt.want != (err == nil) {
				t.Errorf("checkTransition() error = %v", err)
			}
			if err != nil && !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("error %v is not ErrInvalidTransition", err)
			}
		})
	}
}

func TestPhaseString(t *testing.T) {
	if got := PhaseCapturingCommand.String(); got != "CAPTURING_COMMAND" {
		t.Errorf("String() = %q", got)
	}
	if got := Phase(42).String(); got != "Phase(42)" {
		t.Errorf("String() = %q", got)
	}
	text, _ := PhaseResponding.MarshalText()
	if string(text) != "RESPONDING" {
		t.Errorf("MarshalText() = %q", text)
	}
}

func TestResumeGate(t *testing.T) {
	var g ResumeGate
	now := time.Now()

	if !g.Allows(now) {
		t.Fatal("zero gate is closed")
	}

	g.Block(time.Minute)
	if g.Allows(now) {
		t.Error("Block() did not close the gate")
	}

	g.Unblock(now.Add(2 * time.Minute))
	if g.At().After(now.Add(time.Minute + time.Second)) {
		t.Error("Unblock() moved the gate later")
	}

	g.Unblock(now)
	if !g.Allows(now) {
		t.Error("Unblock() to now did not open the gate")
	}

	g.SetAt(now.Add(time.Hour))
	if g.Allows(now.Add(59 * time.Minute)) {
		t.Error("SetAt() did not move the gate later")
	}
	if !g.Allows(now.Add(time.Hour)) {
		t.Error("gate closed at its own time")
	}

	g.Open()
	if !g.At().IsZero() || !g.Allows(now) {
		t.Error("Open() did not clear the gate")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"no poll", func(c *Config) { c.ResumePoll = 0 }, true},
		{"no ceiling", func(c *Config) { c.MaxDuration = 0 }, true},
		{"silence past ceiling", func(c *Config) { c.EndSilence = c.MaxDuration }, true},
		{"end pointer off", func(c *Config) { c.EndSilence = 0 }, false},
		{"negative delay", func(c *Config) { c.SettleDelay = -time.Second }, true},
		{"bad level", func(c *Config) { c.SpeechLevel = 1.5 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
