package geometry

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Pose is a rigid transform: position plus unit quaternion orientation.
type Pose struct {
	Position    mgl64.Vec3
	Orientation mgl64.Quat
}

func IdentityPose() Pose {
	return Pose{Orientation: mgl64.QuatIdent()}
}

func Translation(x, y, z float64) Pose {
	return Pose{Position: mgl64.Vec3{x, y, z}, Orientation: mgl64.QuatIdent()}
}

// Rotation returns a pose rotating by angle (radians) around axis.
func Rotation(angle float64, axis mgl64.Vec3) Pose {
	if axis.Len() == 0 {
		return IdentityPose()
	}
	return Pose{Orientation: mgl64.QuatRotate(angle, axis.Normalize())}
}

// Compose returns p * child, i.e. child expressed in p's parent frame.
func (p Pose) Compose(child Pose) Pose {
	return Pose{
		Position:    p.Position.Add(p.Orientation.Rotate(child.Position)),
		Orientation: p.Orientation.Mul(child.Orientation),
	}
}

// Normalized returns p with a unit orientation. A zero quaternion becomes identity.
func (p Pose) Normalized() Pose {
	if p.Orientation.Len() == 0 {
		p.Orientation = mgl64.QuatIdent()
		return p
	}
	p.Orientation = p.Orientation.Normalize()
	return p
}

// ApproxEqual compares with absolute bounds: positions within eps of each other
// and orientations whose rotations differ by at most eps. q and -q are the same
// rotation.
func (p Pose) ApproxEqual(o Pose, eps float64) bool {
	if !Near(p.Position, o.Position, eps) {
		return false
	}
	return 1-math.Abs(p.Orientation.Normalize().Dot(o.Orientation.Normalize())) <= eps
}

// Near reports whether a and b are within eps (euclidean distance).
func Near(a, b mgl64.Vec3, eps float64) bool {
	return a.Sub(b).Len() <= eps
}

// RGBA is a display color with channels in [0,1].
type RGBA struct {
	R float64 `json:"r" yaml:"r" toml:"r"`
	G float64 `json:"g" yaml:"g" toml:"g"`
	B float64 `json:"b" yaml:"b" toml:"b"`
	A float64 `json:"a" yaml:"a" toml:"a"`
}

func (c RGBA) Valid() bool {
	for _, v := range [4]float64{c.R, c.G, c.B, c.A} {
		if v < 0 || v > 1 {
			return false
		}
	}
	return true
}
