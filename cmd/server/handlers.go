package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"strings"

	persistlog "sceneviz.dev/internal/persistence/log"
	"sceneviz.dev/internal/sim/world"
	"sceneviz.dev/internal/transport/observer"
)

func newMux(w *world.World, obsSrv *observer.Server, idx runtimeIndex, rec *persistlog.Recorder, logger *log.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, w, obsSrv, idx, rec)
	})

	mux.HandleFunc("/v1/observer/bootstrap", obsSrv.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", obsSrv.WSHandler())

	if envBool("SCENEVIZ_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			frames, geoms := w.Graph().Counts()
			rw.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(rw).Encode(map[string]any{
				"tick":       w.Tick(),
				"sim_time_s": w.SimTime().Seconds(),
				"frames":     frames,
				"geometries": geoms,
				"observers":  obsSrv.Sessions(),
			})
		})
		mux.HandleFunc("/admin/v1/force", adminPost(func() { w.Force() }))
		mux.HandleFunc("/admin/v1/resync", adminPost(func() { w.Resync() }))
	} else {
		logger.Printf("admin endpoints disabled (SCENEVIZ_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("SCENEVIZ_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	return mux
}

func adminPost(fn func()) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		fn()
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true})
	}
}

// Minimal Prometheus exposition format.
func writeMetrics(rw http.ResponseWriter, w *world.World, obsSrv *observer.Server, idx runtimeIndex, rec *persistlog.Recorder) {
	fmt.Fprintf(rw, "# HELP sceneviz_world_tick Current sim tick.\n")
	fmt.Fprintf(rw, "# TYPE sceneviz_world_tick gauge\n")
	fmt.Fprintf(rw, "sceneviz_world_tick %d\n", w.Tick())

	fmt.Fprintf(rw, "# HELP sceneviz_world_sim_time_seconds Stamp of the last step.\n")
	fmt.Fprintf(rw, "# TYPE sceneviz_world_sim_time_seconds gauge\n")
	fmt.Fprintf(rw, "sceneviz_world_sim_time_seconds %.6f\n", w.SimTime().Seconds())

	fmt.Fprintf(rw, "# HELP sceneviz_observer_sessions Connected observer sessions.\n")
	fmt.Fprintf(rw, "# TYPE sceneviz_observer_sessions gauge\n")
	fmt.Fprintf(rw, "sceneviz_observer_sessions %d\n", obsSrv.Sessions())

	fmt.Fprintf(rw, "# HELP sceneviz_observer_dropped Messages dropped for connected sessions with full queues.\n")
	fmt.Fprintf(rw, "# TYPE sceneviz_observer_dropped gauge\n")
	fmt.Fprintf(rw, "sceneviz_observer_dropped %d\n", obsSrv.Dropped())

	if rec != nil {
		fmt.Fprintf(rw, "# HELP sceneviz_recorder_write_errors_total Envelopes that could not be recorded.\n")
		fmt.Fprintf(rw, "# TYPE sceneviz_recorder_write_errors_total counter\n")
		fmt.Fprintf(rw, "sceneviz_recorder_write_errors_total %d\n", rec.WriteErrors())
	}

	if idx == nil {
		return
	}
	s := idx.Stats()
	fmt.Fprintf(rw, "# HELP sceneviz_index_queue_depth Index queue depth.\n")
	fmt.Fprintf(rw, "# TYPE sceneviz_index_queue_depth gauge\n")
	fmt.Fprintf(rw, "sceneviz_index_queue_depth %d\n", s.QueueDepth)
	fmt.Fprintf(rw, "sceneviz_index_queue_capacity %d\n", s.QueueCapacity)

	fmt.Fprintf(rw, "# HELP sceneviz_index_dropped_total Index rows dropped because the queue was full.\n")
	fmt.Fprintf(rw, "# TYPE sceneviz_index_dropped_total counter\n")
	fmt.Fprintf(rw, "sceneviz_index_dropped_total{kind=%q} %d\n", "batch", s.DropBatchTotal)
	fmt.Fprintf(rw, "sceneviz_index_dropped_total{kind=%q} %d\n", "failure", s.DropFailTotal)

	fmt.Fprintf(rw, "# HELP sceneviz_index_flush_fail_total Failed remote ingest flushes.\n")
	fmt.Fprintf(rw, "# TYPE sceneviz_index_flush_fail_total counter\n")
	fmt.Fprintf(rw, "sceneviz_index_flush_fail_total %d\n", s.FlushFailTotal)
	fmt.Fprintf(rw, "sceneviz_index_retained_events %d\n", s.RetainedBatches)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
