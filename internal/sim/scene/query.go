package scene

import (
	"fmt"
	"sort"
	"time"

	"sceneviz.dev/internal/sim/geometry"
)

var _ geometry.Query = (*Graph)(nil)

func (g *Graph) Geometries(role geometry.Role) ([]geometry.Descriptor, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]geometry.Descriptor, 0, len(g.geoms))
	for _, gm := range g.geoms {
		if _, ok := gm.roles[role]; !ok {
			continue
		}
		out = append(out, geometry.Descriptor{
			ID:         gm.id,
			Frame:      gm.frame,
			Shape:      gm.shape,
			SourceName: g.sources[gm.source].name,
			Name:       gm.name,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (g *Graph) WorldPose(id geometry.ID, at time.Duration) (geometry.Pose, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	gm, ok := g.geoms[id]
	if !ok {
		return geometry.Pose{}, fmt.Errorf("geometry %d not registered: %w", id, geometry.ErrSnapshotUnavailable)
	}
	X_WF, err := g.framePoseLocked(gm.frame, at)
	if err != nil {
		return geometry.Pose{}, fmt.Errorf("geometry %q: %w", gm.name, err)
	}
	return X_WF.Compose(gm.pose), nil
}

func (g *Graph) FramePose(id geometry.FrameID, at time.Duration) (geometry.Pose, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.framePoseLocked(id, at)
}

func (g *Graph) framePoseLocked(id geometry.FrameID, at time.Duration) (geometry.Pose, error) {
	if id == geometry.WorldFrame {
		return geometry.IdentityPose(), nil
	}
	f, ok := g.frames[id]
	if !ok {
		return geometry.Pose{}, fmt.Errorf("frame %d not registered: %w", id, geometry.ErrSnapshotUnavailable)
	}
	if !f.posed {
		return geometry.Pose{}, fmt.Errorf("frame %q has no pose: %w", f.name, geometry.ErrSnapshotUnavailable)
	}
	if f.posedAt != at {
		return geometry.Pose{}, fmt.Errorf("frame %q posed at %v, queried at %v: %w", f.name, f.posedAt, at, geometry.ErrSnapshotUnavailable)
	}
	return f.pose, nil
}

func (g *Graph) Bodies() ([]geometry.Body, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]geometry.Body, 0, len(g.frames))
	for _, f := range g.frames {
		out = append(out, geometry.Body{
			FrameName: bodyName(g.sources[f.source].name, f.name),
			Frame:     f.id,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Frame < out[j].Frame })
	return out, nil
}
