package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"sceneviz.dev/internal/persistence/indexdb"
	"sceneviz.dev/internal/viz/visualizer"
)

type runtimeIndex interface {
	visualizer.Sink
	visualizer.FailureSink
	Close() error
	Stats() indexdb.Stats
}

func openRuntimeIndex(dataDir, sceneID string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("SCENEVIZ_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(dataDir, "index", sceneID+".sqlite")
		return indexdb.OpenSQLite(dbPath)
	case "ingest":
		endpoint := strings.TrimSpace(os.Getenv("SCENEVIZ_INDEX_INGEST_URL"))
		token := strings.TrimSpace(os.Getenv("SCENEVIZ_INDEX_INGEST_TOKEN"))
		if endpoint == "" {
			return nil, fmt.Errorf("SCENEVIZ_INDEX_BACKEND=ingest but SCENEVIZ_INDEX_INGEST_URL is empty")
		}
		flushMS := envInt("SCENEVIZ_INDEX_INGEST_FLUSH_MS", 500)
		batchSize := envInt("SCENEVIZ_INDEX_INGEST_BATCH_SIZE", 128)
		idx, err := indexdb.OpenIngest(indexdb.IngestConfig{
			Endpoint:      endpoint,
			Token:         token,
			SceneID:       sceneID,
			BatchSize:     batchSize,
			FlushInterval: time.Duration(flushMS) * time.Millisecond,
			Logger:        logger,
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported SCENEVIZ_INDEX_BACKEND: %s", backend)
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
