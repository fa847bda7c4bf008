// Package markers converts the scene's geometries for one role into marker
// batches with stable identities and create/update/remove lifecycle.
package markers

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"sceneviz.dev/internal/sim/geometry"
	"sceneviz.dev/internal/viz/shapes"
)

type Action int

const (
	Create Action = iota + 1
	Update
	Remove
)

func (a Action) String() string {
	switch a {
	case Create:
		return "CREATE"
	case Update:
		return "UPDATE"
	case Remove:
		return "REMOVE"
	default:
		return fmt.Sprintf("ACTION(%d)", int(a))
	}
}

// Record is one element of a batch. Remove records only carry the identity.
type Record struct {
	Identity    Identity
	Action      Action
	Kind        shapes.RenderKind
	Scale       mgl64.Vec3
	Color       geometry.RGBA
	Pose        geometry.Pose
	Resource    string
	FrameLocked bool
}

type Batch struct {
	Stamp   time.Duration
	FrameID string
	Records []Record
}

type Counts struct {
	Creates int
	Updates int
	Removes int
}

func (b Batch) Counts() Counts {
	var c Counts
	for _, r := range b.Records {
		switch r.Action {
		case Create:
			c.Creates++
		case Update:
			c.Updates++
		case Remove:
			c.Removes++
		}
	}
	return c
}

type Params struct {
	Role         geometry.Role
	DefaultColor geometry.RGBA
}

func IllustrationParams() Params {
	return Params{
		Role:         geometry.RoleIllustration,
		DefaultColor: geometry.RGBA{R: 0.9, G: 0.9, B: 0.9, A: 1.0},
	}
}

func ProximityParams() Params {
	return Params{
		Role:         geometry.RoleProximity,
		DefaultColor: geometry.RGBA{R: 0.5, G: 0.5, B: 0.5, A: 1.0},
	}
}

// Engine is not safe for concurrent use; callers serialize Evaluate.
type Engine struct {
	params  Params
	present map[Identity]struct{}
}

func NewEngine(p Params) *Engine {
	return &Engine{params: p, present: map[Identity]struct{}{}}
}

func (e *Engine) DefaultColor() geometry.RGBA { return e.params.DefaultColor }

// Reset forgets every identity seen so far; the next batch is all Creates.
func (e *Engine) Reset() {
	e.present = map[Identity]struct{}{}
}

// Evaluate reads the scene at time at and returns the batch for this role.
// On error no batch is returned and the presence set is left as it was.
func (e *Engine) Evaluate(q geometry.Query, at time.Duration) (Batch, error) {
	descs, err := q.Geometries(e.params.Role)
	if err != nil {
		return Batch{}, fmt.Errorf("%s markers: %w", e.params.Role, err)
	}

	alloc := newAllocator(len(descs))
	current := make(map[Identity]struct{}, len(e.present))
	live := make([]Record, 0, len(descs))

	for _, d := range descs {
		els, err := shapes.Encode(d.Shape, e.params.DefaultColor)
		if err != nil {
			return Batch{}, fmt.Errorf("%s markers: geometry %s: %w", e.params.Role, Namespace(d.SourceName, d.Name), err)
		}
		ids, err := alloc.assign(d, els)
		if err != nil {
			return Batch{}, fmt.Errorf("%s markers: %w", e.params.Role, err)
		}
		worldPose, err := q.WorldPose(d.ID, at)
		if err != nil {
			return Batch{}, fmt.Errorf("%s markers: pose of %s: %w", e.params.Role, Namespace(d.SourceName, d.Name), err)
		}
		for _, it := range ids {
			action := Create
			if _, ok := e.present[it.Identity]; ok {
				action = Update
			}
			current[it.Identity] = struct{}{}
			live = append(live, Record{
				Identity:    it.Identity,
				Action:      action,
				Kind:        it.Element.Kind,
				Scale:       it.Element.Scale,
				Color:       it.Element.Color,
				Pose:        worldPose.Compose(it.Element.Offset),
				Resource:    it.Element.Resource,
				FrameLocked: true,
			})
		}
	}

	var gone []Identity
	for id := range e.present {
		if _, ok := current[id]; !ok {
			gone = append(gone, id)
		}
	}
	sort.Slice(gone, func(i, j int) bool {
		if gone[i].Namespace != gone[j].Namespace {
			return gone[i].Namespace < gone[j].Namespace
		}
		return gone[i].ID < gone[j].ID
	})

	records := make([]Record, 0, len(gone)+len(live))
	for _, id := range gone {
		records = append(records, Record{Identity: id, Action: Remove, FrameLocked: true})
	}
	records = append(records, live...)

	e.present = current
	return Batch{Stamp: at, FrameID: geometry.WorldFrameName, Records: records}, nil
}
