// Package scene is the live scene graph: sources register body frames and
// geometries, assign them roles, and push frame poses every step. Graph
// implements geometry.Query for the visualization engines.
package scene

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"sceneviz.dev/internal/sim/geometry"
)

type source struct {
	id   geometry.SourceID
	name string
}

type frame struct {
	id     geometry.FrameID
	source geometry.SourceID
	name   string

	pose    geometry.Pose
	posed   bool
	posedAt time.Duration
}

type geom struct {
	id     geometry.ID
	source geometry.SourceID
	frame  geometry.FrameID
	name   string
	shape  geometry.Shape
	pose   geometry.Pose // X_FG
	roles  map[geometry.Role]struct{}
}

type Graph struct {
	mu sync.RWMutex

	sources      map[geometry.SourceID]*source
	sourceByName map[string]geometry.SourceID
	frames       map[geometry.FrameID]*frame
	geoms        map[geometry.ID]*geom

	nextSource uint64
	nextFrame  uint64
	nextGeom   uint64
}

func NewGraph() *Graph {
	return &Graph{
		sources:      map[geometry.SourceID]*source{},
		sourceByName: map[string]geometry.SourceID{},
		frames:       map[geometry.FrameID]*frame{},
		geoms:        map[geometry.ID]*geom{},
	}
}

func (g *Graph) RegisterSource(name string) (geometry.SourceID, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("register source: empty name")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.sourceByName[name]; ok {
		return 0, fmt.Errorf("register source %q: already registered", name)
	}
	g.nextSource++
	id := geometry.SourceID(g.nextSource)
	g.sources[id] = &source{id: id, name: name}
	g.sourceByName[name] = id
	return id, nil
}

func (g *Graph) RegisterFrame(src geometry.SourceID, name string) (geometry.FrameID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.sources[src]; !ok {
		return 0, fmt.Errorf("register frame %q: unknown source %d", name, src)
	}
	if strings.TrimSpace(name) == "" {
		return 0, fmt.Errorf("register frame: empty name")
	}
	for _, f := range g.frames {
		if f.source == src && f.name == name {
			return 0, fmt.Errorf("register frame %q: already registered", name)
		}
	}
	g.nextFrame++
	id := geometry.FrameID(g.nextFrame)
	g.frames[id] = &frame{id: id, source: src, name: name}
	return id, nil
}

// RegisterGeometry attaches a shape to frame at pose X_FG.
func (g *Graph) RegisterGeometry(src geometry.SourceID, f geometry.FrameID, X_FG geometry.Pose, s geometry.Shape, name string) (geometry.ID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.sources[src]; !ok {
		return 0, fmt.Errorf("register geometry %q: unknown source %d", name, src)
	}
	if f != geometry.WorldFrame {
		fr, ok := g.frames[f]
		if !ok {
			return 0, fmt.Errorf("register geometry %q: unknown frame %d", name, f)
		}
		if fr.source != src {
			return 0, fmt.Errorf("register geometry %q: frame %q belongs to another source", name, fr.name)
		}
	}
	if strings.TrimSpace(name) == "" {
		return 0, fmt.Errorf("register geometry: empty name")
	}
	if err := geometry.ValidateShape(s); err != nil {
		return 0, fmt.Errorf("register geometry %q: %w", name, err)
	}
	for _, other := range g.geoms {
		if other.source == src && other.frame == f && other.name == name {
			return 0, fmt.Errorf("register geometry %q: name already used on this frame", name)
		}
	}
	g.nextGeom++
	id := geometry.ID(g.nextGeom)
	g.geoms[id] = &geom{
		id:     id,
		source: src,
		frame:  f,
		name:   name,
		shape:  s,
		pose:   X_FG.Normalized(),
		roles:  map[geometry.Role]struct{}{},
	}
	return id, nil
}

// RegisterAnchoredGeometry registers a shape fixed in the world frame.
func (g *Graph) RegisterAnchoredGeometry(src geometry.SourceID, X_WG geometry.Pose, s geometry.Shape, name string) (geometry.ID, error) {
	return g.RegisterGeometry(src, geometry.WorldFrame, X_WG, s, name)
}

func (g *Graph) ownedGeom(src geometry.SourceID, id geometry.ID) (*geom, error) {
	gm, ok := g.geoms[id]
	if !ok {
		return nil, fmt.Errorf("unknown geometry %d", id)
	}
	if gm.source != src {
		return nil, fmt.Errorf("geometry %d belongs to another source", id)
	}
	return gm, nil
}

func (g *Graph) AssignRole(src geometry.SourceID, id geometry.ID, role geometry.Role) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	gm, err := g.ownedGeom(src, id)
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	if _, ok := gm.roles[role]; ok {
		return fmt.Errorf("assign role: geometry %q already has role %s", gm.name, role)
	}
	gm.roles[role] = struct{}{}
	return nil
}

// RemoveRole revokes role; it reports whether the geometry had it.
func (g *Graph) RemoveRole(src geometry.SourceID, id geometry.ID, role geometry.Role) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	gm, err := g.ownedGeom(src, id)
	if err != nil {
		return false, fmt.Errorf("remove role: %w", err)
	}
	_, had := gm.roles[role]
	delete(gm.roles, role)
	return had, nil
}

func (g *Graph) RemoveGeometry(src geometry.SourceID, id geometry.ID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := g.ownedGeom(src, id); err != nil {
		return fmt.Errorf("remove geometry: %w", err)
	}
	delete(g.geoms, id)
	return nil
}

// SetFramePoses records X_WF for the given frames as of time at.
func (g *Graph) SetFramePoses(src geometry.SourceID, at time.Duration, poses map[geometry.FrameID]geometry.Pose) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id := range poses {
		f, ok := g.frames[id]
		if !ok {
			return fmt.Errorf("set frame poses: unknown frame %d", id)
		}
		if f.source != src {
			return fmt.Errorf("set frame poses: frame %q belongs to another source", f.name)
		}
	}
	for id, p := range poses {
		f := g.frames[id]
		f.pose = p.Normalized()
		f.posed = true
		f.posedAt = at
	}
	return nil
}

func (g *Graph) SourceName(src geometry.SourceID) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.sources[src]
	if !ok {
		return "", false
	}
	return s.name, true
}

// Counts reports registered frames and geometries.
func (g *Graph) Counts() (frames, geoms int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.frames), len(g.geoms)
}

func bodyName(sourceName, frameName string) string {
	return sourceName + "/" + strings.ReplaceAll(frameName, "::", "/")
}
