package chamber

import (
	"time"
)

// Gate states reported by CooldownGate.State.
const (
	GateOpen       = "open"
	GateSuppressed = "suppressed"
)

// CooldownGate suppresses repeated triggers within a configured window. It is
// a two-state machine: Open (accepting triggers) and Suppressed (ignoring
// candidates until the cooldown elapses). The Suppressed->Open transition is
// checked lazily at the next evaluation; no background timer runs.
//
// The gate's timestamp is the only pipeline state that survives across
// frames. It is owned exclusively by the run loop goroutine and must not be
// shared across goroutines without external synchronisation.
type CooldownGate struct {
	enabled     bool
	duration    time.Duration
	lastTrigger time.Time
	triggered   bool
}

// NewCooldownGate returns a gate in the Open state.
func NewCooldownGate(enabled bool, duration time.Duration) *CooldownGate {
	return &CooldownGate{enabled: enabled, duration: duration}
}

// Configure updates the cooldown parameters and resets the gate to Open.
// Configuration changes always restart the window; a half-elapsed cooldown
// under old parameters is meaningless under new ones.
func (g *CooldownGate) Configure(enabled bool, duration time.Duration) {
	g.enabled = enabled
	g.duration = duration
	g.Reset()
}

// Reset returns the gate to its initial Open state. Called when a capture run
// starts or stops.
func (g *CooldownGate) Reset() {
	g.triggered = false
	g.lastTrigger = time.Time{}
}

// OpenAt reports whether the gate accepts triggers at the given instant.
func (g *CooldownGate) OpenAt(now time.Time) bool {
	if !g.enabled || !g.triggered {
		return true
	}
	return now.Sub(g.lastTrigger) >= g.duration
}

// Evaluate confirms or rejects a candidate event at the given instant. A
// confirmation records now as the last trigger time, closing the gate until
// lastTrigger + duration. With cooldown disabled every candidate is
// confirmed.
func (g *CooldownGate) Evaluate(candidate bool, now time.Time) bool {
	if !candidate {
		return false
	}
	if !g.OpenAt(now) {
		return false
	}
	if g.enabled {
		g.lastTrigger = now
		g.triggered = true
	}
	return true
}

// State returns the gate state at the given instant, for status reporting.
func (g *CooldownGate) State(now time.Time) string {
	if g.OpenAt(now) {
		return GateOpen
	}
	return GateSuppressed
}

// Remaining returns how long the gate stays suppressed after now, or zero
// when open.
func (g *CooldownGate) Remaining(now time.Time) time.Duration {
	if g.OpenAt(now) {
		return 0
	}
	return g.duration - now.Sub(g.lastTrigger)
}
