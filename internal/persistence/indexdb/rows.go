package indexdb

import (
	"sync"
	"time"

	"sceneviz.dev/internal/viz/markers"
	"sceneviz.dev/internal/viz/tf"
	"sceneviz.dev/internal/viz/vizcodec"
)

// BatchRow summarizes one published batch.
type BatchRow struct {
	Seq        uint64 `json:"seq"`
	Topic      string `json:"topic"`
	StampNs    int64  `json:"stamp_ns"`
	Creates    int    `json:"creates"`
	Updates    int    `json:"updates"`
	Removes    int    `json:"removes"`
	Frames     int    `json:"frames"`
	RecordedAt string `json:"recorded_at"`
}

// FailureRow records an evaluation that published nothing.
type FailureRow struct {
	Seq     uint64 `json:"seq"`
	Topic   string `json:"topic"`
	StampNs int64  `json:"stamp_ns"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Stats are queue counters for an index backend.
type Stats struct {
	QueueDepth      int
	QueueCapacity   int
	DropBatchTotal  uint64
	DropFailTotal   uint64
	FlushFailTotal  uint64
	RetainedBatches int
}

// sequencer numbers rows per topic across batches and failures.
type sequencer struct {
	mu  sync.Mutex
	seq map[string]uint64
}

func (s *sequencer) next(topic string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq == nil {
		s.seq = map[string]uint64{}
	}
	n := s.seq[topic]
	s.seq[topic] = n + 1
	return n
}

func recordedAt() string { return time.Now().UTC().Format(time.RFC3339Nano) }

func markerRow(seq uint64, topic string, b markers.Batch) BatchRow {
	c := b.Counts()
	return BatchRow{
		Seq:        seq,
		Topic:      topic,
		StampNs:    b.Stamp.Nanoseconds(),
		Creates:    c.Creates,
		Updates:    c.Updates,
		Removes:    c.Removes,
		RecordedAt: recordedAt(),
	}
}

func transformRow(seq uint64, topic string, b tf.Batch) BatchRow {
	return BatchRow{
		Seq:        seq,
		Topic:      topic,
		StampNs:    b.Stamp.Nanoseconds(),
		Frames:     len(b.Frames),
		RecordedAt: recordedAt(),
	}
}

func failureRow(seq uint64, topic string, at time.Duration, err error) FailureRow {
	return FailureRow{
		Seq:     seq,
		Topic:   topic,
		StampNs: at.Nanoseconds(),
		Code:    vizcodec.ErrorCode(err),
		Message: err.Error(),
	}
}
