// Package vizcodec converts marker and transform batches into the JSON wire
// envelopes and maps evaluation errors to wire codes.
package vizcodec

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"sceneviz.dev/internal/protocol"
	"sceneviz.dev/internal/sim/geometry"
	"sceneviz.dev/internal/viz/markers"
	"sceneviz.dev/internal/viz/shapes"
	"sceneviz.dev/internal/viz/tf"
)

// Stamp splits d into whole seconds and a non-negative nanosecond remainder.
func Stamp(d time.Duration) protocol.Time {
	ns := d.Nanoseconds()
	sec := ns / int64(time.Second)
	rem := ns % int64(time.Second)
	if rem < 0 {
		rem += int64(time.Second)
		sec--
	}
	return protocol.Time{Sec: int32(sec), Nanosec: uint32(rem)}
}

func StampDuration(t protocol.Time) time.Duration {
	return time.Duration(t.Sec)*time.Second + time.Duration(t.Nanosec)
}

func vec(v mgl64.Vec3) protocol.Vector3 {
	return protocol.Vector3{X: v[0], Y: v[1], Z: v[2]}
}

func quat(q mgl64.Quat) protocol.Quaternion {
	return protocol.Quaternion{X: q.V[0], Y: q.V[1], Z: q.V[2], W: q.W}
}

func pose(p geometry.Pose) protocol.PoseMsg {
	return protocol.PoseMsg{Position: vec(p.Position), Orientation: quat(p.Orientation)}
}

func markerType(k shapes.RenderKind) int {
	switch k {
	case shapes.Cube:
		return protocol.MarkerCube
	case shapes.Sphere:
		return protocol.MarkerSphere
	case shapes.Cylinder:
		return protocol.MarkerCylinder
	case shapes.MeshResource:
		return protocol.MarkerMeshResource
	default:
		return 0
	}
}

// MarkerArray converts b; creates and updates both go out as ADD.
func MarkerArray(b markers.Batch) protocol.MarkerArrayMsg {
	header := protocol.Header{Stamp: Stamp(b.Stamp), FrameID: b.FrameID}
	out := protocol.MarkerArrayMsg{Markers: make([]protocol.MarkerMsg, 0, len(b.Records))}
	for _, r := range b.Records {
		m := protocol.MarkerMsg{
			Header:      header,
			Ns:          r.Identity.Namespace,
			ID:          r.Identity.ID,
			FrameLocked: r.FrameLocked,
		}
		if r.Action == markers.Remove {
			m.Action = protocol.MarkerDelete
			m.Pose.Orientation.W = 1
			out.Markers = append(out.Markers, m)
			continue
		}
		m.Action = protocol.MarkerAdd
		m.Type = markerType(r.Kind)
		m.Pose = pose(r.Pose)
		m.Scale = vec(r.Scale)
		m.Color = protocol.ColorRGBA{R: r.Color.R, G: r.Color.G, B: r.Color.B, A: r.Color.A}
		m.MeshResource = r.Resource
		out.Markers = append(out.Markers, m)
	}
	return out
}

func TFMessage(b tf.Batch) protocol.TFMsg {
	out := protocol.TFMsg{Transforms: make([]protocol.TransformStampedMsg, 0, len(b.Frames))}
	for _, f := range b.Frames {
		out.Transforms = append(out.Transforms, protocol.TransformStampedMsg{
			Header:       protocol.Header{Stamp: Stamp(f.Stamp), FrameID: f.Parent},
			ChildFrameID: f.Name,
			Transform: protocol.TransformMsg{
				Translation: vec(f.Pose.Position),
				Rotation:    quat(f.Pose.Orientation),
			},
		})
	}
	return out
}

// ErrorCode maps an evaluation error to its wire code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, shapes.ErrUnsupportedShapeKind):
		return protocol.ErrUnsupportedShape
	case errors.Is(err, markers.ErrDuplicateElementIdentity):
		return protocol.ErrDuplicateIdentity
	case errors.Is(err, geometry.ErrSnapshotUnavailable):
		return protocol.ErrSnapshotUnavailable
	case errors.Is(err, tf.ErrStampNotAdvanced):
		return protocol.ErrStampNotAdvanced
	default:
		return protocol.ErrInternal
	}
}

// Encoder numbers envelopes per topic. It is safe for concurrent use.
type Encoder struct {
	mu  sync.Mutex
	seq map[string]uint64
}

func NewEncoder() *Encoder {
	return &Encoder{seq: map[string]uint64{}}
}

func (c *Encoder) next(topic string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.seq[topic]
	c.seq[topic] = n + 1
	return n
}

func (c *Encoder) Markers(topic string, b markers.Batch) (protocol.MarkersEnvelope, []byte, error) {
	env := protocol.MarkersEnvelope{
		Type:            protocol.TypeMarkers,
		ProtocolVersion: protocol.Version,
		Topic:           topic,
		Seq:             c.next(topic),
		Markers:         MarkerArray(b),
	}
	raw, err := json.Marshal(env)
	return env, raw, err
}

func (c *Encoder) Transforms(topic string, b tf.Batch) (protocol.TFEnvelope, []byte, error) {
	env := protocol.TFEnvelope{
		Type:            protocol.TypeTF,
		ProtocolVersion: protocol.Version,
		Topic:           topic,
		Seq:             c.next(topic),
		TF:              TFMessage(b),
	}
	raw, err := json.Marshal(env)
	return env, raw, err
}

func (c *Encoder) Failure(topic string, at time.Duration, failure error) (protocol.ErrorEnvelope, []byte, error) {
	env := protocol.ErrorEnvelope{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Topic:           topic,
		Seq:             c.next(topic),
		Stamp:           Stamp(at),
		Code:            ErrorCode(failure),
		Message:         failure.Error(),
	}
	raw, err := json.Marshal(env)
	return env, raw, err
}
