package world

import (
	"context"
	"time"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.Tuning.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case <-ticker.C:
			w.step()
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

func (w *World) step() {
	at, err := w.StepOnce()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	// Only log transitions so a persistently broken topic does not flood the log.
	if msg != w.lastErr {
		if err != nil {
			w.log.Printf("step t=%s: %v", at, err)
		} else {
			w.log.Printf("step t=%s: recovered", at)
		}
		w.lastErr = msg
	}
}

// StepOnce advances the sim clock by one tick, poses every frame at the new
// time and evaluates the visualizer. The first step is at time zero.
func (w *World) StepOnce() (time.Duration, error) {
	w.stepMu.Lock()
	defer w.stepMu.Unlock()

	tick := w.tick.Load()
	at := time.Duration(int64(tick) * int64(time.Second) / int64(w.cfg.Tuning.TickRateHz))

	if err := w.kin.Apply(w.graph, at); err != nil {
		return at, err
	}
	w.simTime.Store(int64(at))
	w.tick.Add(1)
	return at, w.viz.Step(w.graph, at)
}
