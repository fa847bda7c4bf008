// Package publish decides when a visualization component emits a message.
package publish

import (
	"fmt"
	"time"
)

type Trigger int

const (
	// Periodic publishes when at least Period has passed since the last publish.
	Periodic Trigger = iota + 1
	// Forced publishes only when Force was called.
	Forced
	// PerStep publishes on every step.
	PerStep
)

func (t Trigger) String() string {
	switch t {
	case Periodic:
		return "periodic"
	case Forced:
		return "forced"
	case PerStep:
		return "per_step"
	default:
		return fmt.Sprintf("trigger(%d)", int(t))
	}
}

func ParseTrigger(s string) (Trigger, error) {
	switch s {
	case "periodic":
		return Periodic, nil
	case "forced":
		return Forced, nil
	case "per_step":
		return PerStep, nil
	default:
		return 0, fmt.Errorf("unknown publish trigger %q", s)
	}
}

func ParseTriggers(names []string) ([]Trigger, error) {
	out := make([]Trigger, 0, len(names))
	for _, n := range names {
		tr, err := ParseTrigger(n)
		if err != nil {
			return nil, err
		}
		out = append(out, tr)
	}
	return out, nil
}

type Gate struct {
	periodic bool
	forced   bool
	perStep  bool
	period   time.Duration

	pending   bool
	published bool
	last      time.Duration
}

func NewGate(triggers []Trigger, period time.Duration) (*Gate, error) {
	if len(triggers) == 0 {
		return nil, fmt.Errorf("publish gate: no triggers")
	}
	g := &Gate{period: period}
	for _, tr := range triggers {
		switch tr {
		case Periodic:
			g.periodic = true
		case Forced:
			g.forced = true
		case PerStep:
			g.perStep = true
		default:
			return nil, fmt.Errorf("publish gate: %v", tr)
		}
	}
	if g.periodic && period <= 0 {
		return nil, fmt.Errorf("publish gate: periodic trigger needs a positive period (got %v)", period)
	}
	return g, nil
}

// Force requests one publication on the next Due call. It is a no-op unless
// the gate carries the Forced trigger.
func (g *Gate) Force() {
	if g.forced {
		g.pending = true
	}
}

// Due reports whether a component should publish at time at, and if so
// records at as the last publication time.
func (g *Gate) Due(at time.Duration) bool {
	due := g.perStep || g.pending
	if !due && g.periodic {
		due = !g.published || at-g.last >= g.period
	}
	if !due {
		return false
	}
	g.pending = false
	g.published = true
	g.last = at
	return true
}
