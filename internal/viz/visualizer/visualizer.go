// Package visualizer wires the marker engines and the transform broadcaster
// to their topics and hands every batch to the registered sinks.
package visualizer

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"sceneviz.dev/internal/sim/geometry"
	"sceneviz.dev/internal/viz/markers"
	"sceneviz.dev/internal/viz/publish"
	"sceneviz.dev/internal/viz/tf"
)

const (
	TopicVisual    = "/scene_markers/visual"
	TopicCollision = "/scene_markers/collision"
	TopicTF        = "/tf"
)

type Sink interface {
	PublishMarkers(topic string, b markers.Batch) error
	PublishTransforms(topic string, b tf.Batch) error
}

// FailureSink is implemented by sinks that want to hear about evaluations
// that produced no batch.
type FailureSink interface {
	PublishFailure(topic string, at time.Duration, err error)
}

type Params struct {
	Triggers  []publish.Trigger
	Period    time.Duration
	PublishTF bool
	RootFrame string

	Illustration markers.Params
	Proximity    markers.Params
}

func DefaultParams() Params {
	return Params{
		Triggers:     []publish.Trigger{publish.Periodic, publish.Forced},
		Period:       100 * time.Millisecond,
		PublishTF:    true,
		RootFrame:    geometry.WorldFrameName,
		Illustration: markers.IllustrationParams(),
		Proximity:    markers.ProximityParams(),
	}
}

type component struct {
	topic string
	gate  *publish.Gate
	run   func(q geometry.Query, at time.Duration) error
}

type Visualizer struct {
	mu sync.Mutex

	visual    *markers.Engine
	collision *markers.Engine
	tf        *tf.Broadcaster

	components []*component
	sinks      []Sink
	resync     bool
}

func New(p Params) (*Visualizer, error) {
	v := &Visualizer{
		visual:    markers.NewEngine(p.Illustration),
		collision: markers.NewEngine(p.Proximity),
	}
	add := func(topic string, run func(geometry.Query, time.Duration) error) error {
		gate, err := publish.NewGate(p.Triggers, p.Period)
		if err != nil {
			return fmt.Errorf("%s: %w", topic, err)
		}
		v.components = append(v.components, &component{topic: topic, gate: gate, run: run})
		return nil
	}
	if err := add(TopicVisual, v.markerRunner(TopicVisual, v.visual)); err != nil {
		return nil, err
	}
	if err := add(TopicCollision, v.markerRunner(TopicCollision, v.collision)); err != nil {
		return nil, err
	}
	if p.PublishTF {
		v.tf = tf.NewBroadcaster(p.RootFrame)
		if err := add(TopicTF, v.tfRunner(TopicTF)); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// AddSink registers s; it must be called before the first Step.
func (v *Visualizer) AddSink(s Sink) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sinks = append(v.sinks, s)
}

func (v *Visualizer) Topics() []string {
	out := make([]string, 0, len(v.components))
	for _, c := range v.components {
		out = append(out, c.topic)
	}
	return out
}

// Force requests a publication from every component on the next Step.
func (v *Visualizer) Force() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, c := range v.components {
		c.gate.Force()
	}
}

// Resync makes the next Step evaluate every component regardless of its
// gate. Presence sets are kept, so viewers that already hold markers still
// receive removals while a new viewer gets every live marker.
func (v *Visualizer) Resync() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.resync = true
}

// Step evaluates each due component at time at. Components fail
// independently; a failed component publishes nothing and its error is
// joined into the result.
func (v *Visualizer) Step(q geometry.Query, at time.Duration) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	resync := v.resync
	v.resync = false

	var errs []error
	for _, c := range v.components {
		due := c.gate.Due(at)
		if !due && !resync {
			continue
		}
		if err := c.run(q, at); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (v *Visualizer) markerRunner(topic string, e *markers.Engine) func(geometry.Query, time.Duration) error {
	return func(q geometry.Query, at time.Duration) error {
		b, err := e.Evaluate(q, at)
		if err != nil {
			v.fail(topic, at, err)
			return fmt.Errorf("%s: %w", topic, err)
		}
		var errs []error
		for _, s := range v.sinks {
			if err := s.PublishMarkers(topic, b); err != nil {
				errs = append(errs, fmt.Errorf("%s: sink: %w", topic, err))
			}
		}
		return errors.Join(errs...)
	}
}

func (v *Visualizer) tfRunner(topic string) func(geometry.Query, time.Duration) error {
	return func(q geometry.Query, at time.Duration) error {
		b, err := v.tf.Broadcast(q, at)
		if err != nil {
			v.fail(topic, at, err)
			return fmt.Errorf("%s: %w", topic, err)
		}
		var errs []error
		for _, s := range v.sinks {
			if err := s.PublishTransforms(topic, b); err != nil {
				errs = append(errs, fmt.Errorf("%s: sink: %w", topic, err))
			}
		}
		return errors.Join(errs...)
	}
}

func (v *Visualizer) fail(topic string, at time.Duration, err error) {
	for _, s := range v.sinks {
		if fs, ok := s.(FailureSink); ok {
			fs.PublishFailure(topic, at, err)
		}
	}
}
