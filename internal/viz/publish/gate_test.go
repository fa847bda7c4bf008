package publish

import (
	"testing"
	"time"
)

func TestPeriodicGate(t *testing.T) {
	g, err := NewGate([]Trigger{Periodic}, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	steps := []struct {
		at   time.Duration
		want bool
	}{
		{0, true},
		{33 * time.Millisecond, false},
		{66 * time.Millisecond, false},
		{100 * time.Millisecond, true},
		{133 * time.Millisecond, false},
		{250 * time.Millisecond, true},
	}
	for _, s := range steps {
		if got := g.Due(s.at); got != s.want {
			t.Fatalf("Due(%v): got %v want %v", s.at, got, s.want)
		}
	}
}

func TestForcedGateFiresOnce(t *testing.T) {
	g, err := NewGate([]Trigger{Forced}, 0)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	if g.Due(0) {
		t.Fatalf("forced gate fired without Force")
	}
	g.Force()
	if !g.Due(time.Second) {
		t.Fatalf("forced gate did not fire after Force")
	}
	if g.Due(2 * time.Second) {
		t.Fatalf("forced gate fired twice")
	}
}

func TestForceIgnoredWithoutForcedTrigger(t *testing.T) {
	g, _ := NewGate([]Trigger{Periodic}, time.Second)
	g.Due(0)
	g.Force()
	if g.Due(10 * time.Millisecond) {
		t.Fatalf("Force should not affect a periodic-only gate")
	}
}

func TestPerStepGate(t *testing.T) {
	g, _ := NewGate([]Trigger{PerStep}, 0)
	for i := 0; i < 3; i++ {
		if !g.Due(time.Duration(i) * time.Millisecond) {
			t.Fatalf("per-step gate skipped step %d", i)
		}
	}
}

func TestNewGateRejects(t *testing.T) {
	if _, err := NewGate(nil, time.Second); err == nil {
		t.Fatalf("expected error for no triggers")
	}
	if _, err := NewGate([]Trigger{Periodic}, 0); err == nil {
		t.Fatalf("expected error for zero period")
	}
	if _, err := NewGate([]Trigger{Trigger(9)}, time.Second); err == nil {
		t.Fatalf("expected error for unknown trigger")
	}
}

func TestParseTriggers(t *testing.T) {
	got, err := ParseTriggers([]string{"periodic", "per_step", "forced"})
	if err != nil {
		t.Fatalf("ParseTriggers: %v", err)
	}
	if len(got) != 3 || got[0] != Periodic || got[1] != PerStep || got[2] != Forced {
		t.Fatalf("triggers: %v", got)
	}
	if _, err := ParseTriggers([]string{"hourly"}); err == nil {
		t.Fatalf("expected error")
	}
}
