package indexdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sceneviz.dev/internal/viz/markers"
	"sceneviz.dev/internal/viz/tf"
)

// IngestConfig configures an HTTP batch ingest endpoint that mirrors the
// sqlite index into a remote store.
type IngestConfig struct {
	Endpoint      string
	Token         string
	SceneID       string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	// MaxRetained bounds events kept across failed flushes.
	MaxRetained int
	Logger      *log.Logger
}

type IngestIndex struct {
	cfg        IngestConfig
	httpClient *http.Client

	ch   chan ingestEvent
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
	seq    sequencer

	dropped   atomic.Uint64
	flushFail atomic.Uint64
	retained  atomic.Int64
}

type ingestEvent struct {
	Kind    string `json:"kind"`
	SceneID string `json:"scene_id"`
	Payload any    `json:"payload"`
}

func OpenIngest(cfg IngestConfig) (*IngestIndex, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.SceneID = strings.TrimSpace(cfg.SceneID)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty ingest endpoint")
	}
	if cfg.SceneID == "" {
		return nil, fmt.Errorf("empty scene id")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.MaxRetained <= 0 {
		cfg.MaxRetained = 8 * cfg.BatchSize
	}
	if cfg.MaxRetained < cfg.BatchSize {
		cfg.MaxRetained = cfg.BatchSize
	}

	d := &IngestIndex{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		ch: make(chan ingestEvent, 16384),
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()

	return d, nil
}

func (d *IngestIndex) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.ch)
		d.wg.Wait()
	})
	return nil
}

func (d *IngestIndex) Stats() Stats {
	return Stats{
		QueueDepth:      len(d.ch),
		QueueCapacity:   cap(d.ch),
		DropBatchTotal:  d.dropped.Load(),
		FlushFailTotal:  d.flushFail.Load(),
		RetainedBatches: int(d.retained.Load()),
	}
}

func (d *IngestIndex) PublishMarkers(topic string, b markers.Batch) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	d.enqueue(ingestEvent{Kind: "batch", SceneID: d.cfg.SceneID, Payload: markerRow(d.seq.next(topic), topic, b)})
	return nil
}

func (d *IngestIndex) PublishTransforms(topic string, b tf.Batch) error {
	if d == nil || d.closed.Load() {
		return nil
	}
	d.enqueue(ingestEvent{Kind: "batch", SceneID: d.cfg.SceneID, Payload: transformRow(d.seq.next(topic), topic, b)})
	return nil
}

func (d *IngestIndex) PublishFailure(topic string, at time.Duration, err error) {
	if d == nil || d.closed.Load() {
		return
	}
	d.enqueue(ingestEvent{Kind: "failure", SceneID: d.cfg.SceneID, Payload: failureRow(d.seq.next(topic), topic, at, err)})
}

func (d *IngestIndex) enqueue(ev ingestEvent) {
	select {
	case d.ch <- ev:
	default:
		d.dropped.Add(1)
		d.printf("ingest index queue full; drop kind=%s scene=%s", ev.Kind, ev.SceneID)
	}
}

func (d *IngestIndex) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	pending := make([]ingestEvent, 0, d.cfg.BatchSize)
	// While failing, only the ticker retries so a dead endpoint is hit once per interval.
	failing := false

	flush := func() {
		for len(pending) > 0 {
			n := min(len(pending), d.cfg.BatchSize)
			if err := d.sendBatch(pending[:n]); err != nil {
				failing = true
				d.flushFail.Add(1)
				d.retained.Store(int64(len(pending)))
				d.printf("ingest index flush failed batch=%d retained=%d err=%v", n, len(pending), err)
				return
			}
			pending = append(pending[:0], pending[n:]...)
		}
		failing = false
		d.retained.Store(0)
	}

	for {
		select {
		case ev, ok := <-d.ch:
			if !ok {
				flush()
				return
			}
			pending = append(pending, ev)
			// Oldest out when over the cap.
			if over := len(pending) - d.cfg.MaxRetained; over > 0 {
				pending = append(pending[:0], pending[over:]...)
				d.dropped.Add(uint64(over))
			}
			if failing {
				d.retained.Store(int64(len(pending)))
				continue
			}
			if len(pending) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *IngestIndex) sendBatch(events []ingestEvent) error {
	if len(events) == 0 {
		return nil
	}

	body := struct {
		Events []ingestEvent `json:"events"`
	}{Events: events}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		req.Header.Set("content-type", "application/json")
		if d.cfg.Token != "" {
			req.Header.Set("x-sceneviz-index-token", d.cfg.Token)
		}

		resp, err := d.httpClient.Do(req)
		if err == nil {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
			_ = resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return nil
			}
			err = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		lastErr = err
		time.Sleep(time.Duration(100*(1<<attempt)) * time.Millisecond)
	}
	return lastErr
}

func (d *IngestIndex) printf(format string, args ...any) {
	if d != nil && d.cfg.Logger != nil {
		d.cfg.Logger.Printf(format, args...)
	}
}
