package chamber

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestCooldownGate_InitialStateOpen(t *testing.T) {
	g := NewCooldownGate(true, 5*time.Second)
	if !g.OpenAt(t0) {
		t.Fatal("new gate should be open")
	}
	if g.State(t0) != GateOpen {
		t.Fatalf("state = %q, want %q", g.State(t0), GateOpen)
	}
}

func TestCooldownGate_ConfirmClosesGate(t *testing.T) {
	g := NewCooldownGate(true, 5*time.Second)

	if !g.Evaluate(true, t0) {
		t.Fatal("first candidate should be confirmed")
	}
	if g.OpenAt(t0.Add(time.Second)) {
		t.Fatal("gate should be suppressed inside the cooldown window")
	}
	if g.Evaluate(true, t0.Add(4*time.Second)) {
		t.Fatal("candidate inside cooldown window should be rejected")
	}
	if !g.Evaluate(true, t0.Add(5*time.Second)) {
		t.Fatal("candidate at exactly lastTrigger+duration should be confirmed")
	}
}

func TestCooldownGate_NonCandidateNeverConfirms(t *testing.T) {
	g := NewCooldownGate(true, 5*time.Second)
	if g.Evaluate(false, t0) {
		t.Fatal("non-candidate must not be confirmed")
	}
	// A non-candidate must not affect the gate either.
	if !g.OpenAt(t0) {
		t.Fatal("gate must stay open after a non-candidate")
	}
}

// With cooldown disabled every candidate is confirmed, regardless of spacing.
func TestCooldownGate_DisabledConfirmsEverything(t *testing.T) {
	g := NewCooldownGate(false, time.Hour)
	for i := 0; i < 10; i++ {
		now := t0.Add(time.Duration(i) * time.Millisecond)
		if !g.Evaluate(true, now) {
			t.Fatalf("candidate %d rejected with cooldown disabled", i)
		}
	}
}

// For any candidate sequence, no two confirmations may be closer than the
// cooldown duration.
func TestCooldownGate_MinimumSpacing(t *testing.T) {
	const d = 3 * time.Second
	g := NewCooldownGate(true, d)

	var confirmed []time.Time
	for i := 0; i < 100; i++ {
		now := t0.Add(time.Duration(i) * 500 * time.Millisecond)
		if g.Evaluate(true, now) {
			confirmed = append(confirmed, now)
		}
	}
	if len(confirmed) < 2 {
		t.Fatalf("expected multiple confirmations, got %d", len(confirmed))
	}
	for i := 1; i < len(confirmed); i++ {
		if gap := confirmed[i].Sub(confirmed[i-1]); gap < d {
			t.Fatalf("confirmations %d and %d only %v apart, cooldown is %v", i-1, i, gap, d)
		}
	}
}

func TestCooldownGate_ConfigureResets(t *testing.T) {
	g := NewCooldownGate(true, time.Hour)
	g.Evaluate(true, t0)
	if g.OpenAt(t0.Add(time.Minute)) {
		t.Fatal("gate should be suppressed")
	}

	g.Configure(true, time.Second)
	if !g.OpenAt(t0.Add(time.Minute)) {
		t.Fatal("Configure should reset the gate to open")
	}
}

func TestCooldownGate_Remaining(t *testing.T) {
	g := NewCooldownGate(true, 10*time.Second)
	g.Evaluate(true, t0)

	if got := g.Remaining(t0.Add(4 * time.Second)); got != 6*time.Second {
		t.Fatalf("Remaining = %v, want 6s", got)
	}
	if got := g.Remaining(t0.Add(11 * time.Second)); got != 0 {
		t.Fatalf("Remaining after expiry = %v, want 0", got)
	}
}
