package vizcodec

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"sceneviz.dev/internal/protocol"
	"sceneviz.dev/internal/sim/geometry"
	"sceneviz.dev/internal/viz/markers"
	"sceneviz.dev/internal/viz/shapes"
	"sceneviz.dev/internal/viz/tf"
)

func TestStamp(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want protocol.Time
	}{
		{0, protocol.Time{}},
		{1500 * time.Millisecond, protocol.Time{Sec: 1, Nanosec: 500000000}},
		{-250 * time.Millisecond, protocol.Time{Sec: -1, Nanosec: 750000000}},
	}
	for _, c := range cases {
		got := Stamp(c.in)
		if got != c.want {
			t.Fatalf("Stamp(%v): got %+v want %+v", c.in, got, c.want)
		}
		if back := StampDuration(got); back != c.in {
			t.Fatalf("StampDuration(%+v): got %v want %v", got, back, c.in)
		}
	}
}

func sampleBatch() markers.Batch {
	return markers.Batch{
		Stamp:   2 * time.Second,
		FrameID: "world",
		Records: []markers.Record{
			{Identity: markers.Identity{Namespace: "arm::old", ID: 0}, Action: markers.Remove, FrameLocked: true},
			{
				Identity:    markers.Identity{Namespace: "arm::link", ID: 1},
				Action:      markers.Create,
				Kind:        shapes.Sphere,
				Scale:       mgl64.Vec3{0.2, 0.2, 0.2},
				Color:       geometry.RGBA{R: 0.9, G: 0.9, B: 0.9, A: 1},
				Pose:        geometry.Translation(0, 0, 0.25),
				FrameLocked: true,
			},
			{
				Identity:    markers.Identity{Namespace: "props::teapot", ID: 0},
				Action:      markers.Update,
				Kind:        shapes.MeshResource,
				Scale:       mgl64.Vec3{1, 1, 1},
				Color:       geometry.RGBA{R: 0.9, G: 0.9, B: 0.9, A: 1},
				Pose:        geometry.IdentityPose(),
				Resource:    "file:///meshes/teapot.obj",
				FrameLocked: true,
			},
		},
	}
}

func TestMarkerArray(t *testing.T) {
	msg := MarkerArray(sampleBatch())
	if len(msg.Markers) != 3 {
		t.Fatalf("markers: %d", len(msg.Markers))
	}
	del := msg.Markers[0]
	if del.Action != protocol.MarkerDelete || del.Ns != "arm::old" || del.Pose.Orientation.W != 1 {
		t.Fatalf("delete marker: %+v", del)
	}
	add := msg.Markers[1]
	if add.Action != protocol.MarkerAdd || add.Type != protocol.MarkerSphere || add.ID != 1 {
		t.Fatalf("create marker: %+v", add)
	}
	if add.Header.FrameID != "world" || add.Header.Stamp.Sec != 2 {
		t.Fatalf("header: %+v", add.Header)
	}
	if add.Pose.Position.Z != 0.25 || add.Pose.Orientation.W != 1 {
		t.Fatalf("pose: %+v", add.Pose)
	}
	if !add.FrameLocked || add.Lifetime != (protocol.Time{}) {
		t.Fatalf("lifetime/frame_locked: %+v", add)
	}
	mesh := msg.Markers[2]
	if mesh.Action != protocol.MarkerAdd || mesh.Type != protocol.MarkerMeshResource || mesh.MeshResource == "" {
		t.Fatalf("mesh marker: %+v", mesh)
	}
}

func TestTFMessage(t *testing.T) {
	b := tf.Batch{
		Stamp: time.Second,
		Frames: []tf.Frame{
			{Name: "arm/base", Parent: "world", Stamp: time.Second, Pose: geometry.Translation(1, 2, 3)},
		},
	}
	msg := TFMessage(b)
	if len(msg.Transforms) != 1 {
		t.Fatalf("transforms: %+v", msg)
	}
	tr := msg.Transforms[0]
	if tr.ChildFrameID != "arm/base" || tr.Header.FrameID != "world" || tr.Header.Stamp.Sec != 1 {
		t.Fatalf("transform: %+v", tr)
	}
	if tr.Transform.Translation != (protocol.Vector3{X: 1, Y: 2, Z: 3}) || tr.Transform.Rotation.W != 1 {
		t.Fatalf("transform body: %+v", tr.Transform)
	}
}

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("wrap: %w", &shapes.UnsupportedShapeError{}), protocol.ErrUnsupportedShape},
		{fmt.Errorf("wrap: %w", &markers.DuplicateIdentityError{}), protocol.ErrDuplicateIdentity},
		{fmt.Errorf("x: %w", geometry.ErrSnapshotUnavailable), protocol.ErrSnapshotUnavailable},
		{errors.Join(errors.New("other"), tf.ErrStampNotAdvanced), protocol.ErrStampNotAdvanced},
		{errors.New("boom"), protocol.ErrInternal},
	}
	for _, c := range cases {
		if got := ErrorCode(c.err); got != c.want {
			t.Fatalf("ErrorCode(%v): got %q want %q", c.err, got, c.want)
		}
		if !protocol.IsKnownCode(ErrorCode(c.err)) {
			t.Fatalf("code not known: %q", ErrorCode(c.err))
		}
	}
}

func TestEncoderOutputMatchesSchemas(t *testing.T) {
	schemas, err := protocol.CompileSchemas()
	if err != nil {
		t.Fatalf("CompileSchemas: %v", err)
	}
	enc := NewEncoder()

	check := func(raw []byte) {
		t.Helper()
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := schemas.Validate(v); err != nil {
			t.Fatalf("validate %s: %v", raw, err)
		}
	}

	env, raw, err := enc.Markers("/scene_markers/visual", sampleBatch())
	if err != nil {
		t.Fatalf("Markers: %v", err)
	}
	if env.Seq != 0 {
		t.Fatalf("first seq: %d", env.Seq)
	}
	check(raw)

	env, raw, err = enc.Markers("/scene_markers/visual", markers.Batch{FrameID: "world"})
	if err != nil {
		t.Fatalf("Markers: %v", err)
	}
	if env.Seq != 1 {
		t.Fatalf("second seq: %d", env.Seq)
	}
	check(raw)

	tfEnv, raw, err := enc.Transforms("/tf", tf.Batch{Stamp: time.Second, Frames: []tf.Frame{
		{Name: "arm/base", Parent: "world", Stamp: time.Second, Pose: geometry.IdentityPose()},
	}})
	if err != nil {
		t.Fatalf("Transforms: %v", err)
	}
	if tfEnv.Seq != 0 {
		t.Fatalf("tf seq is per topic: %d", tfEnv.Seq)
	}
	check(raw)

	errEnv, raw, err := enc.Failure("/scene_markers/collision", time.Second, fmt.Errorf("x: %w", geometry.ErrSnapshotUnavailable))
	if err != nil {
		t.Fatalf("Failure: %v", err)
	}
	if errEnv.Code != protocol.ErrSnapshotUnavailable {
		t.Fatalf("code: %q", errEnv.Code)
	}
	check(raw)
}
