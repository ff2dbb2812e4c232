package voice

import (
	"sync"
	"time"
)

// ResumeGate holds the earliest time wake detection may restart.
// The zero value is open.
type ResumeGate struct {
	mu sync.Mutex
	at time.Time
}

// Block closes the gate for d from now.
func (g *ResumeGate) Block(d time.Duration) {
	g.SetAt(time.Now().Add(d))
}

// SetAt moves the gate to t, earlier or later.
func (g *ResumeGate) SetAt(t time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.at = t
}

// Unblock moves the gate to t only if that is earlier than its current time.
func (g *ResumeGate) Unblock(t time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t.Before(g.at) {
		g.at = t
	}
}

// Open clears the gate.
func (g *ResumeGate) Open() {
	g.SetAt(time.Time{})
}

// At returns the gate time. A zero time means open.
func (g *ResumeGate) At() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.at
}

// Allows reports whether resumption is permitted at now.
func (g *ResumeGate) Allows(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !now.Before(g.at)
}
