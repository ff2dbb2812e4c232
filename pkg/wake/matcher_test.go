package wake

import "testing"

func TestMatcher_DefaultPhrases(t *testing.T) {
	m, err := NewMatcher(DefaultPhrases)
	if err != nil {
		t.Fatalf("NewMatcher() error = %v", err)
	}

	tests := []struct {
		text string
		want bool
	}{
		{"Hey, Nova!", true},
		{"OK NOVA", true},
		{"okay nova please", true},
		{"so, hey nova what's up", true},
		{"Hey Nova, it’s me", true},
		{"hello nova", false},
		{"heynovas", false},
		{"hey novas", false},
		{"they nova", false},
		{"hey novaé", false},
		{"éhey nova", false},
		{"hey nova é", true},
		{"(music)", false},
		{"[BLANK_AUDIO]", false},
		{"...", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			if got := m.Match(tt.text); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestMatcher_CustomPhrases(t *testing.T) {
	m, err := NewMatcher([]string{"Computer", "  "})
	if err != nil {
		t.Fatalf("NewMatcher() error = %v", err)
	}
	if !m.Match("computer, lights") {
		t.Error("expected custom phrase to match")
	}
	if m.Match("hey nova") {
		t.Error("default phrase should not match a custom matcher")
	}

	if _, err := NewMatcher([]string{"!!", ""}); err == nil {
		t.Error("expected error when no phrase survives normalization")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Hey, Nova!", "hey nova"},
		{"  OK\tNOVA  ", "ok nova"},
		{"Nova’s turn", "novas turn"},
		{"it`s fine", "its fine"},
		{"wake-up   call", "wake up call"},
		{"Ünïcode 42", "ünïcode 42"},
	}
	for _, tt := range tests {
		got := Normalize(tt.raw)
		if got.Normalized != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got.Normalized, tt.want)
		}
		if got.Raw != tt.raw {
			t.Errorf("Raw = %q, want %q", got.Raw, tt.raw)
		}
	}
}

func TestIsNonSpeech(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"", true},
		{"   ", true},
		{"(music)", true},
		{"[BLANK_AUDIO]", true},
		{" (wind blowing) ", true},
		{"123 ...", true},
		{"hey nova", false},
		{"(hey) nova", false},
	}
	for _, tt := range tests {
		if got := isNonSpeech(tt.text); got != tt.want {
			t.Errorf("isNonSpeech(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}

	cfg := DefaultConfig()
	cfg.Phrases = nil
	cfg.ChunkDuration = 0
	cfg.Backoff = -1
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error")
	}
}
