// Package world owns the running scene: it advances the sim clock at a fixed
// tick rate, moves the scene's frames, and drives the visualizer.
package world

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"sceneviz.dev/internal/observerproto"
	"sceneviz.dev/internal/protocol"
	"sceneviz.dev/internal/sim/scene"
	"sceneviz.dev/internal/sim/scenedef"
	"sceneviz.dev/internal/sim/tuning"
	"sceneviz.dev/internal/viz/markers"
	"sceneviz.dev/internal/viz/publish"
	"sceneviz.dev/internal/viz/visualizer"
	"sceneviz.dev/internal/viz/vizcodec"
)

type Config struct {
	Tuning tuning.Tuning
	Scene  *scenedef.Scene
	Logger *log.Logger
}

type World struct {
	cfg Config
	log *log.Logger

	graph *scene.Graph
	kin   *scenedef.Kinematics
	viz   *visualizer.Visualizer

	// stepMu serializes StepOnce between Run and direct callers.
	stepMu  sync.Mutex
	tick    atomic.Uint64
	simTime atomic.Int64
	lastErr string

	stop     chan struct{}
	stopOnce sync.Once
}

func New(cfg Config) (*World, error) {
	if cfg.Scene == nil {
		return nil, errors.New("world: nil scene")
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	graph, kin, err := cfg.Scene.Build()
	if err != nil {
		return nil, fmt.Errorf("world: build scene: %w", err)
	}
	params, err := visualizerParams(cfg.Tuning)
	if err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	viz, err := visualizer.New(params)
	if err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}

	return &World{
		cfg:   cfg,
		log:   logger,
		graph: graph,
		kin:   kin,
		viz:   viz,
		stop:  make(chan struct{}),
	}, nil
}

func visualizerParams(t tuning.Tuning) (visualizer.Params, error) {
	triggers, err := publish.ParseTriggers(t.PublishTriggers)
	if err != nil {
		return visualizer.Params{}, err
	}
	p := visualizer.DefaultParams()
	p.Triggers = triggers
	p.Period = time.Duration(t.PublishPeriodMs) * time.Millisecond
	p.PublishTF = t.PublishTF
	p.RootFrame = t.RootFrame
	p.Illustration = markers.IllustrationParams()
	p.Illustration.DefaultColor = t.IllustrationColor
	p.Proximity = markers.ProximityParams()
	p.Proximity.DefaultColor = t.ProximityColor
	return p, nil
}

// AddSink registers a batch consumer; call before Run.
func (w *World) AddSink(s visualizer.Sink) { w.viz.AddSink(s) }

func (w *World) Topics() []string { return w.viz.Topics() }

func (w *World) Graph() *scene.Graph { return w.graph }

func (w *World) TickRateHz() int { return w.cfg.Tuning.TickRateHz }

func (w *World) Tick() uint64 { return w.tick.Load() }

// SimTime is the stamp of the most recent step.
func (w *World) SimTime() time.Duration { return time.Duration(w.simTime.Load()) }

// Force asks every component with the forced trigger to publish on the next step.
func (w *World) Force() { w.viz.Force() }

// Resync makes the next step republish every topic from scratch.
func (w *World) Resync() { w.viz.Resync() }

func (w *World) Bootstrap() observerproto.BootstrapResponse {
	frames, geoms := w.graph.Counts()
	return observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		WireVersion:     protocol.Version,
		RootFrame:       w.cfg.Tuning.RootFrame,
		Topics:          w.Topics(),
		PublishPeriodMs: w.cfg.Tuning.PublishPeriodMs,
		TickRateHz:      w.cfg.Tuning.TickRateHz,
		SimTime:         vizcodec.Stamp(w.SimTime()),
		Frames:          frames,
		Geometries:      geoms,
	}
}
