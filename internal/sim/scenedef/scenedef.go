// Package scenedef loads scene description files: sources with moving body
// frames and the geometries attached to them.
package scenedef

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"sceneviz.dev/internal/sim/geometry"
)

type Scene struct {
	Sources []Source `yaml:"sources"`

	// dir resolves relative mesh filenames.
	dir string
}

type Source struct {
	Name       string     `yaml:"name"`
	Frames     []Frame    `yaml:"frames"`
	Geometries []Geometry `yaml:"geometries"`
}

type Frame struct {
	Name   string `yaml:"name"`
	Origin Pose   `yaml:"origin"`
	Motion Motion `yaml:"motion"`
}

// Motion moves a frame relative to its origin. An empty type is static.
type Motion struct {
	Type      string     `yaml:"type"` // static|spin|orbit|bob
	Axis      [3]float64 `yaml:"axis"`
	RateHz    float64    `yaml:"rate_hz"`
	Radius    float64    `yaml:"radius"`
	Amplitude float64    `yaml:"amplitude"`
	Phase     float64    `yaml:"phase"`
}

type Pose struct {
	XYZ [3]float64 `yaml:"xyz"`
	RPY [3]float64 `yaml:"rpy"`
}

type Geometry struct {
	Name string `yaml:"name"`
	// Frame names a frame of the same source; empty anchors to the world.
	Frame string   `yaml:"frame"`
	Pose  Pose     `yaml:"pose"`
	Shape ShapeDef `yaml:"shape"`
	Roles []string `yaml:"roles"`

	// Visible limits when the geometry carries its roles, in sim seconds.
	Visible *Window `yaml:"visible"`
}

type Window struct {
	FromS  float64 `yaml:"from_s"`
	UntilS float64 `yaml:"until_s"` // 0 means forever
}

func (w *Window) contains(sec float64) bool {
	if w == nil {
		return true
	}
	if sec < w.FromS {
		return false
	}
	return w.UntilS <= 0 || sec < w.UntilS
}

type ShapeDef struct {
	Type     string     `yaml:"type"`
	Radius   float64    `yaml:"radius"`
	Length   float64    `yaml:"length"`
	A        float64    `yaml:"a"`
	B        float64    `yaml:"b"`
	C        float64    `yaml:"c"`
	Size     [3]float64 `yaml:"size"`
	Filename string     `yaml:"filename"`
	Scale    float64    `yaml:"scale"`
}

func Load(path string) (*Scene, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	s, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	s.dir = filepath.Dir(path)
	return s, nil
}

func Parse(raw []byte) (*Scene, error) {
	var s Scene
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scene) Validate() error {
	if len(s.Sources) == 0 {
		return fmt.Errorf("scene has no sources")
	}
	seenSource := map[string]bool{}
	for _, src := range s.Sources {
		if strings.TrimSpace(src.Name) == "" {
			return fmt.Errorf("source with empty name")
		}
		if seenSource[src.Name] {
			return fmt.Errorf("duplicate source %q", src.Name)
		}
		seenSource[src.Name] = true

		frames := map[string]bool{}
		for _, f := range src.Frames {
			if f.Name == "" {
				return fmt.Errorf("source %s: frame with empty name", src.Name)
			}
			if frames[f.Name] {
				return fmt.Errorf("source %s: duplicate frame %q", src.Name, f.Name)
			}
			frames[f.Name] = true
			if err := f.Motion.validate(); err != nil {
				return fmt.Errorf("source %s: frame %s: %w", src.Name, f.Name, err)
			}
		}
		for _, g := range src.Geometries {
			if g.Name == "" {
				return fmt.Errorf("source %s: geometry with empty name", src.Name)
			}
			if g.Frame != "" && !frames[g.Frame] {
				return fmt.Errorf("source %s: geometry %s: unknown frame %q", src.Name, g.Name, g.Frame)
			}
			if len(g.Roles) == 0 {
				return fmt.Errorf("source %s: geometry %s: no roles", src.Name, g.Name)
			}
			for _, r := range g.Roles {
				if _, err := geometry.ParseRole(r); err != nil {
					return fmt.Errorf("source %s: geometry %s: %w", src.Name, g.Name, err)
				}
			}
			if _, err := g.Shape.toShape(""); err != nil {
				return fmt.Errorf("source %s: geometry %s: %w", src.Name, g.Name, err)
			}
			if w := g.Visible; w != nil && w.UntilS > 0 && w.UntilS <= w.FromS {
				return fmt.Errorf("source %s: geometry %s: empty visible window", src.Name, g.Name)
			}
		}
	}
	return nil
}

func (m Motion) validate() error {
	switch m.Type {
	case "", "static":
		return nil
	case "spin":
		if m.Axis == [3]float64{} {
			return fmt.Errorf("spin: zero axis")
		}
	case "orbit":
		if m.Radius <= 0 {
			return fmt.Errorf("orbit: radius must be > 0")
		}
	case "bob":
		if m.Amplitude == 0 {
			return fmt.Errorf("bob: zero amplitude")
		}
	default:
		return fmt.Errorf("unknown motion %q", m.Type)
	}
	if m.RateHz == 0 {
		return fmt.Errorf("%s: rate_hz must be non-zero", m.Type)
	}
	return nil
}

func (d ShapeDef) toShape(dir string) (geometry.Shape, error) {
	var s geometry.Shape
	switch d.Type {
	case "sphere":
		s = geometry.Sphere{Radius: d.Radius}
	case "ellipsoid":
		s = geometry.Ellipsoid{A: d.A, B: d.B, C: d.C}
	case "cylinder":
		s = geometry.Cylinder{Radius: d.Radius, Length: d.Length}
	case "capsule":
		s = geometry.Capsule{Radius: d.Radius, Length: d.Length}
	case "box":
		s = geometry.Box{Width: d.Size[0], Depth: d.Size[1], Height: d.Size[2]}
	case "half_space":
		s = geometry.HalfSpace{}
	case "convex", "mesh":
		name := d.Filename
		if name != "" && dir != "" && !filepath.IsAbs(name) {
			name = filepath.Join(dir, name)
		}
		scale := d.Scale
		if scale == 0 {
			scale = 1
		}
		if d.Type == "convex" {
			s = geometry.Convex{Filename: name, Scale: scale}
		} else {
			s = geometry.Mesh{Filename: name, Scale: scale}
		}
	case "":
		return nil, fmt.Errorf("missing shape type")
	default:
		return nil, fmt.Errorf("unknown shape type %q", d.Type)
	}
	if err := geometry.ValidateShape(s); err != nil {
		return nil, err
	}
	return s, nil
}
