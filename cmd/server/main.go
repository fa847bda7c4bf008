package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"sceneviz.dev/internal/persistence/indexdb"
	persistlog "sceneviz.dev/internal/persistence/log"
	"sceneviz.dev/internal/sim/scenedef"
	"sceneviz.dev/internal/sim/tuning"
	"sceneviz.dev/internal/sim/world"
	"sceneviz.dev/internal/transport/observer"
)

func main() {
	var (
		addr          = flag.String("addr", ":8080", "http listen address")
		tuningPath    = flag.String("config", "./configs/tuning.yaml", "path to tuning.yaml or tuning.toml")
		scenePath     = flag.String("scene", "./configs/demo_scene.yaml", "scene description to run")
		sceneID       = flag.String("scene_id", "", "scene id used for index files and ingest (default: scene file name)")
		dataDir       = flag.String("data", "./data", "runtime data directory")
		disableDB     = flag.Bool("disable_db", false, "disable the batch index")
		disableRecord = flag.Bool("disable_record", false, "disable the compressed envelope recording")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}
	sc, err := scenedef.Load(*scenePath)
	if err != nil {
		logger.Fatalf("load scene: %v", err)
	}
	id := strings.TrimSpace(*sceneID)
	if id == "" {
		id = strings.TrimSuffix(filepath.Base(*scenePath), filepath.Ext(*scenePath))
	}

	w, err := world.New(world.Config{Tuning: tune, Scene: sc, Logger: logger})
	if err != nil {
		logger.Fatalf("world: %v", err)
	}

	// Optional read-model index; publication never waits on it.
	idx, err := openRuntimeIndex(*dataDir, id, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if s, ok := idx.(*indexdb.SQLiteIndex); ok {
			if err := s.RecordTuning(tune); err != nil {
				logger.Printf("index backend: record tuning: %v", err)
			}
		}
		w.AddSink(idx)
	}

	var rec *persistlog.Recorder
	if !*disableRecord {
		rec = persistlog.NewRecorder(*dataDir)
		defer rec.Close()
		w.AddSink(rec)
	}

	obsSrv := observer.NewServer(logger, observer.Options{
		Queue:     tune.ObserverQueue,
		Bootstrap: w.Bootstrap,
		Resync:    w.Resync,
	})
	w.AddSink(obsSrv)

	ctx, cancel := signalContext()
	defer cancel()

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           newMux(w, obsSrv, idx, rec, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	frames, geoms := w.Graph().Counts()
	logger.Printf("scene=%s frames=%d geometries=%d topics=%v tick_rate_hz=%d", id, frames, geoms, w.Topics(), tune.TickRateHz)
	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	cancel()
	<-worldDone
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
