package scenedef

import (
	"fmt"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"sceneviz.dev/internal/sim/geometry"
	"sceneviz.dev/internal/sim/scene"
)

func (p Pose) pose() geometry.Pose {
	roll := mgl64.QuatRotate(p.RPY[0], mgl64.Vec3{1, 0, 0})
	pitch := mgl64.QuatRotate(p.RPY[1], mgl64.Vec3{0, 1, 0})
	yaw := mgl64.QuatRotate(p.RPY[2], mgl64.Vec3{0, 0, 1})
	return geometry.Pose{
		Position:    mgl64.Vec3(p.XYZ),
		Orientation: yaw.Mul(pitch).Mul(roll).Normalize(),
	}
}

type movingFrame struct {
	source geometry.SourceID
	frame  geometry.FrameID
	origin geometry.Pose
	motion Motion
}

type scheduled struct {
	source  geometry.SourceID
	id      geometry.ID
	roles   []geometry.Role
	window  *Window
	visible bool
}

// Kinematics drives the frames and visibility windows of a built scene.
type Kinematics struct {
	frames    []movingFrame
	scheduled []*scheduled
}

// Build registers the scene into a fresh graph. Geometries without a
// visibility window get their roles immediately; windowed ones wait for Apply.
func (s *Scene) Build() (*scene.Graph, *Kinematics, error) {
	g := scene.NewGraph()
	k := &Kinematics{}
	for _, src := range s.Sources {
		sid, err := g.RegisterSource(src.Name)
		if err != nil {
			return nil, nil, err
		}
		frames := map[string]geometry.FrameID{}
		for _, f := range src.Frames {
			fid, err := g.RegisterFrame(sid, f.Name)
			if err != nil {
				return nil, nil, err
			}
			frames[f.Name] = fid
			k.frames = append(k.frames, movingFrame{source: sid, frame: fid, origin: f.Origin.pose(), motion: f.Motion})
		}
		for _, gd := range src.Geometries {
			shape, err := gd.Shape.toShape(s.dir)
			if err != nil {
				return nil, nil, fmt.Errorf("%s/%s: %w", src.Name, gd.Name, err)
			}
			fid := geometry.WorldFrame
			if gd.Frame != "" {
				fid = frames[gd.Frame]
			}
			id, err := g.RegisterGeometry(sid, fid, gd.Pose.pose(), shape, gd.Name)
			if err != nil {
				return nil, nil, err
			}
			roles := make([]geometry.Role, 0, len(gd.Roles))
			for _, r := range gd.Roles {
				role, err := geometry.ParseRole(r)
				if err != nil {
					return nil, nil, err
				}
				roles = append(roles, role)
			}
			if gd.Visible != nil {
				k.scheduled = append(k.scheduled, &scheduled{source: sid, id: id, roles: roles, window: gd.Visible})
				continue
			}
			for _, role := range roles {
				if err := g.AssignRole(sid, id, role); err != nil {
					return nil, nil, err
				}
			}
		}
	}
	return g, k, nil
}

// Apply sets every frame pose for sim time t and toggles windowed geometries.
func (k *Kinematics) Apply(g *scene.Graph, t time.Duration) error {
	sec := t.Seconds()
	bySource := map[geometry.SourceID]map[geometry.FrameID]geometry.Pose{}
	for _, f := range k.frames {
		m := bySource[f.source]
		if m == nil {
			m = map[geometry.FrameID]geometry.Pose{}
			bySource[f.source] = m
		}
		m[f.frame] = f.origin.Compose(f.motion.at(sec))
	}
	for src, poses := range bySource {
		if err := g.SetFramePoses(src, t, poses); err != nil {
			return err
		}
	}
	for _, sc := range k.scheduled {
		want := sc.window.contains(sec)
		if want == sc.visible {
			continue
		}
		for _, role := range sc.roles {
			if want {
				if err := g.AssignRole(sc.source, sc.id, role); err != nil {
					return err
				}
			} else if _, err := g.RemoveRole(sc.source, sc.id, role); err != nil {
				return err
			}
		}
		sc.visible = want
	}
	return nil
}

// at is the frame motion relative to its origin at sim second sec.
func (m Motion) at(sec float64) geometry.Pose {
	theta := 2*math.Pi*m.RateHz*sec + m.Phase
	switch m.Type {
	case "spin":
		return geometry.Rotation(theta, mgl64.Vec3(m.Axis))
	case "orbit":
		return geometry.Translation(m.Radius*math.Cos(theta), m.Radius*math.Sin(theta), 0)
	case "bob":
		return geometry.Translation(0, 0, m.Amplitude*math.Sin(theta))
	default:
		return geometry.IdentityPose()
	}
}
