package tf

import (
	"errors"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"sceneviz.dev/internal/sim/geometry"
	"sceneviz.dev/internal/sim/scene"
)

type poseSetter func(at time.Duration)

func newScene(t *testing.T) (*scene.Graph, poseSetter) {
	t.Helper()
	g := scene.NewGraph()
	src, err := g.RegisterSource("robot")
	if err != nil {
		t.Fatalf("RegisterSource: %v", err)
	}
	base, _ := g.RegisterFrame(src, "base")
	elbow, _ := g.RegisterFrame(src, "elbow")
	set := func(at time.Duration) {
		x := at.Seconds()
		poses := map[geometry.FrameID]geometry.Pose{
			base: geometry.Translation(x, 0, 0),
			elbow: {
				Position:    mgl64.Vec3{x, 0, 1},
				Orientation: mgl64.QuatRotate(x, mgl64.Vec3{0, 0, 1}),
			},
		}
		if err := g.SetFramePoses(src, at, poses); err != nil {
			t.Fatalf("SetFramePoses: %v", err)
		}
	}
	return g, set
}

func TestBroadcast_FlatFramesWithSharedStamp(t *testing.T) {
	g, set := newScene(t)
	b := NewBroadcaster("")
	if b.Root() != "world" {
		t.Fatalf("default root: %q", b.Root())
	}

	at := 1500 * time.Millisecond
	set(at)
	batch, err := b.Broadcast(g, at)
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if batch.Stamp != at || len(batch.Frames) != 2 {
		t.Fatalf("batch: %+v", batch)
	}
	wantNames := []string{"robot/base", "robot/elbow"}
	for i, f := range batch.Frames {
		if f.Name != wantNames[i] {
			t.Fatalf("frame %d name: got %q want %q", i, f.Name, wantNames[i])
		}
		if f.Parent != "world" {
			t.Fatalf("frame %s parent: %q", f.Name, f.Parent)
		}
		if f.Stamp != at {
			t.Fatalf("frame %s stamp: got %v want %v", f.Name, f.Stamp, at)
		}
	}
	if got := batch.Frames[1].Pose.Position; !geometry.Near(got, mgl64.Vec3{1.5, 0, 1}, 1e-12) {
		t.Fatalf("elbow position: %v", got)
	}
}

func TestBroadcast_RejectsNonIncreasingStamp(t *testing.T) {
	g, set := newScene(t)
	b := NewBroadcaster("world")
	set(time.Second)
	if _, err := b.Broadcast(g, time.Second); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if _, err := b.Broadcast(g, time.Second); !errors.Is(err, ErrStampNotAdvanced) {
		t.Fatalf("repeat stamp: expected ErrStampNotAdvanced, got %v", err)
	}
	set(2 * time.Second)
	if _, err := b.Broadcast(g, 2*time.Second); err != nil {
		t.Fatalf("Broadcast after advance: %v", err)
	}
}

func TestBroadcast_FirstBatchMayStartAtZero(t *testing.T) {
	g, set := newScene(t)
	b := NewBroadcaster("world")
	set(0)
	if _, err := b.Broadcast(g, 0); err != nil {
		t.Fatalf("Broadcast at zero: %v", err)
	}
}

func TestBroadcast_MissingPoseAbortsWithoutAdvancing(t *testing.T) {
	g, set := newScene(t)
	b := NewBroadcaster("world")

	if _, err := b.Broadcast(g, time.Second); !errors.Is(err, geometry.ErrSnapshotUnavailable) {
		t.Fatalf("expected ErrSnapshotUnavailable, got %v", err)
	}
	set(time.Second)
	if _, err := b.Broadcast(g, time.Second); err != nil {
		t.Fatalf("retry at same stamp: %v", err)
	}
}

func TestBroadcast_EmptySceneStillStamps(t *testing.T) {
	b := NewBroadcaster("world")
	batch, err := b.Broadcast(scene.NewGraph(), time.Second)
	if err != nil {
		t.Fatalf("Broadcast: %v", err)
	}
	if len(batch.Frames) != 0 || batch.Stamp != time.Second {
		t.Fatalf("batch: %+v", batch)
	}
}
