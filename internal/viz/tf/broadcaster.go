// Package tf publishes every body of the scene as a named frame parented
// directly to the world root.
package tf

import (
	"errors"
	"fmt"
	"time"

	"sceneviz.dev/internal/sim/geometry"
)

var ErrStampNotAdvanced = errors.New("transform stamp did not advance")

type Frame struct {
	Name   string
	Parent string
	Stamp  time.Duration
	Pose   geometry.Pose
}

type Batch struct {
	Stamp  time.Duration
	Frames []Frame
}

// Broadcaster keeps only the stamp of the last emitted batch.
type Broadcaster struct {
	root string

	emitted bool
	last    time.Duration
}

func NewBroadcaster(root string) *Broadcaster {
	if root == "" {
		root = geometry.WorldFrameName
	}
	return &Broadcaster{root: root}
}

func (b *Broadcaster) Root() string { return b.root }

// Broadcast resolves every body pose at time at. A time that is not after the
// previous batch yields ErrStampNotAdvanced and leaves the watermark alone.
func (b *Broadcaster) Broadcast(q geometry.Query, at time.Duration) (Batch, error) {
	if b.emitted && at <= b.last {
		return Batch{}, fmt.Errorf("tf at %v (last %v): %w", at, b.last, ErrStampNotAdvanced)
	}
	bodies, err := q.Bodies()
	if err != nil {
		return Batch{}, fmt.Errorf("tf: %w", err)
	}
	frames := make([]Frame, 0, len(bodies))
	for _, body := range bodies {
		pose, err := q.FramePose(body.Frame, at)
		if err != nil {
			return Batch{}, fmt.Errorf("tf: frame %s: %w", body.FrameName, err)
		}
		frames = append(frames, Frame{
			Name:   body.FrameName,
			Parent: b.root,
			Stamp:  at,
			Pose:   pose,
		})
	}
	b.emitted = true
	b.last = at
	return Batch{Stamp: at, Frames: frames}, nil
}
