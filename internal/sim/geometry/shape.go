package geometry

import "fmt"

type ShapeKind int

const (
	KindSphere ShapeKind = iota + 1
	KindEllipsoid
	KindCylinder
	KindCapsule
	KindBox
	KindHalfSpace
	KindConvex
	KindMesh
)

var shapeKindNames = map[ShapeKind]string{
	KindSphere:    "sphere",
	KindEllipsoid: "ellipsoid",
	KindCylinder:  "cylinder",
	KindCapsule:   "capsule",
	KindBox:       "box",
	KindHalfSpace: "half_space",
	KindConvex:    "convex",
	KindMesh:      "mesh",
}

func (k ShapeKind) String() string {
	if s, ok := shapeKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("shape_kind(%d)", int(k))
}

// AllShapeKinds lists every kind in declaration order.
func AllShapeKinds() []ShapeKind {
	return []ShapeKind{
		KindSphere, KindEllipsoid, KindCylinder, KindCapsule,
		KindBox, KindHalfSpace, KindConvex, KindMesh,
	}
}

// Shape is the closed set of primitive descriptors. Only types in this
// package implement it.
type Shape interface {
	Kind() ShapeKind
	shape()
}

type Sphere struct {
	Radius float64
}

type Ellipsoid struct {
	A, B, C float64
}

// Cylinder is centered on its frame origin with its axis along +z.
type Cylinder struct {
	Radius float64
	Length float64
}

// Capsule is a Cylinder with hemispherical caps; Length excludes the caps.
type Capsule struct {
	Radius float64
	Length float64
}

type Box struct {
	Width, Depth, Height float64
}

// HalfSpace occupies z <= 0 of its frame; the boundary plane is z = 0.
type HalfSpace struct{}

type Convex struct {
	Filename string
	Scale    float64
}

type Mesh struct {
	Filename string
	Scale    float64
}

func (Sphere) Kind() ShapeKind    { return KindSphere }
func (Ellipsoid) Kind() ShapeKind { return KindEllipsoid }
func (Cylinder) Kind() ShapeKind  { return KindCylinder }
func (Capsule) Kind() ShapeKind   { return KindCapsule }
func (Box) Kind() ShapeKind       { return KindBox }
func (HalfSpace) Kind() ShapeKind { return KindHalfSpace }
func (Convex) Kind() ShapeKind    { return KindConvex }
func (Mesh) Kind() ShapeKind      { return KindMesh }

func (Sphere) shape()    {}
func (Ellipsoid) shape() {}
func (Cylinder) shape()  {}
func (Capsule) shape()   {}
func (Box) shape()       {}
func (HalfSpace) shape() {}
func (Convex) shape()    {}
func (Mesh) shape()      {}

// ValidateShape rejects non-positive dimensions and empty mesh paths.
func ValidateShape(s Shape) error {
	positive := func(name string, vs ...float64) error {
		for _, v := range vs {
			if !(v > 0) {
				return fmt.Errorf("%s: dimensions must be positive", name)
			}
		}
		return nil
	}
	switch s := s.(type) {
	case Sphere:
		return positive("sphere", s.Radius)
	case Ellipsoid:
		return positive("ellipsoid", s.A, s.B, s.C)
	case Cylinder:
		return positive("cylinder", s.Radius, s.Length)
	case Capsule:
		return positive("capsule", s.Radius, s.Length)
	case Box:
		return positive("box", s.Width, s.Depth, s.Height)
	case HalfSpace:
		return nil
	case Convex:
		if s.Filename == "" {
			return fmt.Errorf("convex: missing filename")
		}
		return positive("convex", s.Scale)
	case Mesh:
		if s.Filename == "" {
			return fmt.Errorf("mesh: missing filename")
		}
		return positive("mesh", s.Scale)
	case nil:
		return fmt.Errorf("missing shape")
	default:
		return fmt.Errorf("unknown shape %T", s)
	}
}
