package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sceneviz.dev/internal/persistence/indexdb"
	persistlog "sceneviz.dev/internal/persistence/log"
	"sceneviz.dev/internal/sim/scenedef"
	"sceneviz.dev/internal/sim/tuning"
	"sceneviz.dev/internal/sim/world"
	"sceneviz.dev/internal/transport/observer"
)

func findRepoRootForServerTests(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("could not locate go.mod from %s", dir)
		}
		dir = parent
	}
}

func newTestServerMux(t *testing.T) (*world.World, *httptest.Server) {
	t.Helper()
	root := findRepoRootForServerTests(t)
	sc, err := scenedef.Load(filepath.Join(root, "configs", "demo_scene.yaml"))
	if err != nil {
		t.Fatalf("load scene: %v", err)
	}
	tune, err := tuning.Load(filepath.Join(root, "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load tuning: %v", err)
	}
	w, err := world.New(world.Config{Tuning: tune, Scene: sc})
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	logger := log.New(io.Discard, "", 0)
	obsSrv := observer.NewServer(logger, observer.Options{Bootstrap: w.Bootstrap, Resync: w.Resync})
	w.AddSink(obsSrv)

	idx, err := indexdb.OpenSQLite(filepath.Join(t.TempDir(), "index.sqlite"))
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	w.AddSink(idx)

	rec := persistlog.NewRecorder(t.TempDir())
	t.Cleanup(func() { _ = rec.Close() })
	w.AddSink(rec)

	hs := httptest.NewServer(newMux(w, obsSrv, idx, rec, logger))
	t.Cleanup(hs.Close)
	return w, hs
}

func TestHealthAndMetrics(t *testing.T) {
	w, hs := newTestServerMux(t)
	if _, err := w.StepOnce(); err != nil {
		t.Fatalf("step: %v", err)
	}

	resp, err := http.Get(hs.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status: %d", resp.StatusCode)
	}

	resp, err = http.Get(hs.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{"sceneviz_world_tick 1", "sceneviz_observer_sessions 0", "sceneviz_index_queue_capacity", "sceneviz_recorder_write_errors_total 0"} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestAdminEndpoints(t *testing.T) {
	w, hs := newTestServerMux(t)

	resp, err := http.Get(hs.URL + "/admin/v1/force")
	if err != nil {
		t.Fatalf("GET force: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET force status: %d", resp.StatusCode)
	}

	for _, p := range []string{"/admin/v1/force", "/admin/v1/resync"} {
		resp, err := http.Post(hs.URL+p, "application/json", nil)
		if err != nil {
			t.Fatalf("POST %s: %v", p, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("POST %s status: %d", p, resp.StatusCode)
		}
	}

	if _, err := w.StepOnce(); err != nil {
		t.Fatalf("step: %v", err)
	}
	resp, err = http.Get(hs.URL + "/admin/v1/state")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	defer resp.Body.Close()
	var state struct {
		Tick       uint64 `json:"tick"`
		Frames     int    `json:"frames"`
		Geometries int    `json:"geometries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.Tick != 1 || state.Frames != 3 || state.Geometries != 7 {
		t.Fatalf("state: %+v", state)
	}
}

func TestOpenRuntimeIndexBackends(t *testing.T) {
	dir := t.TempDir()

	idx, err := openRuntimeIndex(dir, "demo", true, nil)
	if err != nil || idx != nil {
		t.Fatalf("disabled: idx=%v err=%v", idx, err)
	}

	t.Setenv("SCENEVIZ_INDEX_BACKEND", "none")
	if idx, err := openRuntimeIndex(dir, "demo", false, nil); err != nil || idx != nil {
		t.Fatalf("none: idx=%v err=%v", idx, err)
	}

	t.Setenv("SCENEVIZ_INDEX_BACKEND", "sqlite")
	idx, err = openRuntimeIndex(dir, "demo", false, nil)
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	_ = idx.Close()
	if _, err := os.Stat(filepath.Join(dir, "index", "demo.sqlite")); err != nil {
		t.Fatalf("sqlite file: %v", err)
	}

	t.Setenv("SCENEVIZ_INDEX_BACKEND", "ingest")
	t.Setenv("SCENEVIZ_INDEX_INGEST_URL", "")
	if _, err := openRuntimeIndex(dir, "demo", false, nil); err == nil {
		t.Fatalf("expected missing ingest url error")
	}

	t.Setenv("SCENEVIZ_INDEX_BACKEND", "kafka")
	if _, err := openRuntimeIndex(dir, "demo", false, nil); err == nil {
		t.Fatalf("expected unsupported backend error")
	}
}
