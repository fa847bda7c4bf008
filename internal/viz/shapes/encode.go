// Package shapes turns one geometry.Shape into the ordered primitive
// elements a marker display can draw.
package shapes

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl64"

	"sceneviz.dev/internal/sim/geometry"
)

// RenderKind values match the display tool's marker type codes.
type RenderKind int

const (
	Cube         RenderKind = 1
	Sphere       RenderKind = 2
	Cylinder     RenderKind = 3
	MeshResource RenderKind = 10
)

func (k RenderKind) String() string {
	switch k {
	case Cube:
		return "CUBE"
	case Sphere:
		return "SPHERE"
	case Cylinder:
		return "CYLINDER"
	case MeshResource:
		return "MESH_RESOURCE"
	default:
		return fmt.Sprintf("RENDER_KIND(%d)", int(k))
	}
}

// Half spaces are drawn as a slab whose top face lies on the boundary plane.
const (
	HalfSpaceLength    = 50.0
	HalfSpaceThickness = 1.0
)

// Element is one drawable primitive, positioned relative to the geometry frame.
type Element struct {
	Kind     RenderKind
	Scale    mgl64.Vec3
	Offset   geometry.Pose
	Color    geometry.RGBA
	Resource string
}

var ErrUnsupportedShapeKind = errors.New("unsupported shape kind")

type UnsupportedShapeError struct {
	Shape geometry.Shape
}

func (e *UnsupportedShapeError) Error() string {
	if e.Shape == nil {
		return "unsupported shape kind: <nil>"
	}
	return fmt.Sprintf("unsupported shape kind: %T", e.Shape)
}

func (e *UnsupportedShapeError) Is(target error) bool { return target == ErrUnsupportedShapeKind }

// Encode returns the elements for s, all tinted with color. The element
// order is fixed per shape kind; identity allocation depends on it.
func Encode(s geometry.Shape, color geometry.RGBA) ([]Element, error) {
	one := func(kind RenderKind, scale mgl64.Vec3) []Element {
		return []Element{{Kind: kind, Scale: scale, Offset: geometry.IdentityPose(), Color: color}}
	}
	switch s := s.(type) {
	case geometry.Sphere:
		return one(Sphere, mgl64.Vec3{s.Radius, s.Radius, s.Radius}), nil
	case geometry.Ellipsoid:
		return one(Sphere, mgl64.Vec3{s.A, s.B, s.C}), nil
	case geometry.Cylinder:
		return one(Cylinder, mgl64.Vec3{s.Radius, s.Radius, s.Length}), nil
	case geometry.Box:
		return one(Cube, mgl64.Vec3{s.Width, s.Depth, s.Height}), nil
	case geometry.HalfSpace:
		els := one(Cube, mgl64.Vec3{HalfSpaceLength, HalfSpaceLength, HalfSpaceThickness})
		els[0].Offset = geometry.Translation(0, 0, -HalfSpaceThickness/2)
		return els, nil
	case geometry.Capsule:
		return encodeCapsule(s, color), nil
	case geometry.Convex:
		return encodeMesh(s.Filename, s.Scale, color)
	case geometry.Mesh:
		return encodeMesh(s.Filename, s.Scale, color)
	default:
		return nil, &UnsupportedShapeError{Shape: s}
	}
}

// encodeCapsule emits the body cylinder, then the +z cap, then the -z cap.
func encodeCapsule(c geometry.Capsule, color geometry.RGBA) []Element {
	capScale := mgl64.Vec3{c.Radius, c.Radius, c.Radius}
	return []Element{
		{Kind: Cylinder, Scale: mgl64.Vec3{c.Radius, c.Radius, c.Length}, Offset: geometry.IdentityPose(), Color: color},
		{Kind: Sphere, Scale: capScale, Offset: geometry.Translation(0, 0, c.Length/2), Color: color},
		{Kind: Sphere, Scale: capScale, Offset: geometry.Translation(0, 0, -c.Length/2), Color: color},
	}
}

func encodeMesh(filename string, scale float64, color geometry.RGBA) ([]Element, error) {
	uri, err := FileURI(filename)
	if err != nil {
		return nil, err
	}
	return []Element{{
		Kind:     MeshResource,
		Scale:    mgl64.Vec3{scale, scale, scale},
		Offset:   geometry.IdentityPose(),
		Color:    color,
		Resource: uri,
	}}, nil
}

// FileURI returns file://<absolute path> for filename.
func FileURI(filename string) (string, error) {
	if filename == "" {
		return "", fmt.Errorf("mesh resource: empty filename")
	}
	abs, err := filepath.Abs(filename)
	if err != nil {
		return "", fmt.Errorf("mesh resource %q: %w", filename, err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}
