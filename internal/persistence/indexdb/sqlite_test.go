package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"sceneviz.dev/internal/sim/geometry"
	"sceneviz.dev/internal/sim/tuning"
	"sceneviz.dev/internal/viz/markers"
	"sceneviz.dev/internal/viz/tf"
)

func sampleBatch(stamp time.Duration, actions ...markers.Action) markers.Batch {
	b := markers.Batch{Stamp: stamp, FrameID: "world"}
	for i, a := range actions {
		b.Records = append(b.Records, markers.Record{
			Identity: markers.Identity{Namespace: "arm::link", ID: i},
			Action:   a,
			Pose:     geometry.IdentityPose(),
		})
	}
	return b
}

func TestSQLiteIndex_PersistsBatchesAndFailures(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "index", "scene.sqlite")

	idx, err := OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = idx.PublishMarkers("/scene_markers/visual", sampleBatch(0, markers.Create, markers.Create))
	_ = idx.PublishMarkers("/scene_markers/visual", sampleBatch(100*time.Millisecond, markers.Update, markers.Remove))
	_ = idx.PublishTransforms("/tf", tf.Batch{Stamp: 0, Frames: []tf.Frame{{Name: "arm/base"}, {Name: "arm/link"}}})
	idx.PublishFailure("/scene_markers/collision", 200*time.Millisecond, geometry.ErrSnapshotUnavailable)
	if err := idx.RecordTuning(tuning.Defaults()); err != nil {
		t.Fatalf("RecordTuning: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// Publishing after close is a no-op.
	_ = idx.PublishMarkers("/scene_markers/visual", sampleBatch(0, markers.Create))

	idx, err = OpenSQLite(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	visual, err := idx.Batches(ctx, "/scene_markers/visual", 10)
	if err != nil {
		t.Fatalf("Batches: %v", err)
	}
	if len(visual) != 2 {
		t.Fatalf("visual rows=%d want=2", len(visual))
	}
	if visual[0].Seq != 0 || visual[0].Creates != 2 || visual[0].StampNs != 0 {
		t.Fatalf("first row: %+v", visual[0])
	}
	if visual[1].Seq != 1 || visual[1].Updates != 1 || visual[1].Removes != 1 || visual[1].StampNs != int64(100*time.Millisecond) {
		t.Fatalf("second row: %+v", visual[1])
	}

	tfRows, err := idx.Batches(ctx, "/tf", 10)
	if err != nil {
		t.Fatalf("Batches tf: %v", err)
	}
	if len(tfRows) != 1 || tfRows[0].Frames != 2 {
		t.Fatalf("tf rows: %+v", tfRows)
	}

	fails, err := idx.Failures(ctx, 10)
	if err != nil {
		t.Fatalf("Failures: %v", err)
	}
	if len(fails) != 1 {
		t.Fatalf("failures=%d want=1", len(fails))
	}
	if fails[0].Code != "E_SNAPSHOT_UNAVAILABLE" || fails[0].Topic != "/scene_markers/collision" {
		t.Fatalf("failure row: %+v", fails[0])
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("sql open: %v", err)
	}
	defer db.Close()
	var digest string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key='tuning_digest'`).Scan(&digest); err != nil {
		t.Fatalf("tuning digest: %v", err)
	}
	if len(digest) != 64 {
		t.Fatalf("digest=%q", digest)
	}
}

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqBatch}

	_ = s.PublishMarkers("/scene_markers/visual", sampleBatch(0, markers.Create))
	_ = s.PublishTransforms("/tf", tf.Batch{})
	s.PublishFailure("/tf", 0, geometry.ErrSnapshotUnavailable)

	st := s.Stats()
	if st.DropBatchTotal != 2 {
		t.Fatalf("DropBatchTotal=%d want=2", st.DropBatchTotal)
	}
	if st.DropFailTotal != 1 {
		t.Fatalf("DropFailTotal=%d want=1", st.DropFailTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSequencerIsPerTopic(t *testing.T) {
	var s sequencer
	if s.next("/a") != 0 || s.next("/a") != 1 || s.next("/b") != 0 || s.next("/a") != 2 {
		t.Fatalf("unexpected sequence")
	}
}
