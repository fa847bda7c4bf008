// Package geometry holds the scene data model shared by the live scene and
// the visualization engines: shapes, poses, roles and the read-only query
// surface the engines evaluate against.
package geometry

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type (
	ID       uint64
	FrameID  uint64
	SourceID uint64
)

// WorldFrame is the fixed root every pose is resolved against.
const WorldFrame FrameID = 0

// WorldFrameName is the published name of WorldFrame.
const WorldFrameName = "world"

type Role int

const (
	RoleIllustration Role = iota + 1
	RoleProximity
)

func (r Role) String() string {
	switch r {
	case RoleIllustration:
		return "illustration"
	case RoleProximity:
		return "proximity"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "illustration", "visual":
		return RoleIllustration, nil
	case "proximity", "collision":
		return RoleProximity, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

// Descriptor is the immutable description of one registered geometry.
type Descriptor struct {
	ID         ID
	Frame      FrameID
	Shape      Shape
	SourceName string
	Name       string
}

// Body is a kinematic frame that gets its own published transform.
type Body struct {
	FrameName string
	Frame     FrameID
}

// ErrSnapshotUnavailable is wrapped by Query implementations that cannot
// produce a consistent view for the requested time.
var ErrSnapshotUnavailable = errors.New("scene snapshot unavailable")

// Query is the read-only view of the scene the engines pull from.
// Geometries and Bodies return results in a stable order.
type Query interface {
	Geometries(role Role) ([]Descriptor, error)
	WorldPose(id ID, at time.Duration) (Pose, error)
	FramePose(frame FrameID, at time.Duration) (Pose, error)
	Bodies() ([]Body, error)
}
