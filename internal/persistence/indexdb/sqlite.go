package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"sceneviz.dev/internal/sim/tuning"
	"sceneviz.dev/internal/viz/markers"
	"sceneviz.dev/internal/viz/tf"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
	seq    sequencer

	dropBatch atomic.Uint64
	dropFail  atomic.Uint64
}

type reqKind int

const (
	reqBatch reqKind = iota + 1
	reqFailure
)

type req struct {
	kind reqKind

	batch   BatchRow
	failure FailureRow
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Room for several seconds of per-step publication on every topic.
		ch: make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS batches (
			topic TEXT NOT NULL,
			seq INTEGER NOT NULL,
			stamp_ns INTEGER NOT NULL,
			creates INTEGER NOT NULL,
			updates INTEGER NOT NULL,
			removes INTEGER NOT NULL,
			frames INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (topic, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_batches_stamp ON batches(stamp_ns);`,
		`CREATE TABLE IF NOT EXISTS failures (
			topic TEXT NOT NULL,
			seq INTEGER NOT NULL,
			stamp_ns INTEGER NOT NULL,
			code TEXT NOT NULL,
			message TEXT NOT NULL,
			PRIMARY KEY (topic, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_failures_code ON failures(code, stamp_ns);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:     len(s.ch),
		QueueCapacity:  cap(s.ch),
		DropBatchTotal: s.dropBatch.Load(),
		DropFailTotal:  s.dropFail.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req) {
	select {
	case s.ch <- r:
	default:
		// Drop if the indexer falls behind; the JSONL recording remains the source of truth.
		if r.kind == reqFailure {
			s.dropFail.Add(1)
		} else {
			s.dropBatch.Add(1)
		}
	}
}

func (s *SQLiteIndex) PublishMarkers(topic string, b markers.Batch) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	s.enqueue(req{kind: reqBatch, batch: markerRow(s.seq.next(topic), topic, b)})
	return nil
}

func (s *SQLiteIndex) PublishTransforms(topic string, b tf.Batch) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	s.enqueue(req{kind: reqBatch, batch: transformRow(s.seq.next(topic), topic, b)})
	return nil
}

func (s *SQLiteIndex) PublishFailure(topic string, at time.Duration, err error) {
	if s == nil || s.closed.Load() {
		return
	}
	s.enqueue(req{kind: reqFailure, failure: failureRow(s.seq.next(topic), topic, at, err)})
}

// RecordTuning stores the tuning actually applied (canonical JSON) with its digest.
func (s *SQLiteIndex) RecordTuning(t tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	rows := [][2]string{
		{"schema_version", "1"},
		{"tuning", string(b)},
		{"tuning_digest", hex.EncodeToString(sum[:])},
		{"started_at", recordedAt()},
	}
	for _, kv := range rows {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`, kv[0], kv[1]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Batches returns up to limit rows for topic ordered by seq.
func (s *SQLiteIndex) Batches(ctx context.Context, topic string, limit int) ([]BatchRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq,topic,stamp_ns,creates,updates,removes,frames,recorded_at FROM batches WHERE topic=? ORDER BY seq LIMIT ?`,
		topic, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BatchRow
	for rows.Next() {
		var r BatchRow
		if err := rows.Scan(&r.Seq, &r.Topic, &r.StampNs, &r.Creates, &r.Updates, &r.Removes, &r.Frames, &r.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) Failures(ctx context.Context, limit int) ([]FailureRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq,topic,stamp_ns,code,message FROM failures ORDER BY stamp_ns, topic LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FailureRow
	for rows.Next() {
		var r FailureRow
		if err := rows.Scan(&r.Seq, &r.Topic, &r.StampNs, &r.Code, &r.Message); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertBatch, _ := s.db.Prepare(`INSERT OR REPLACE INTO batches(topic,seq,stamp_ns,creates,updates,removes,frames,recorded_at) VALUES(?,?,?,?,?,?,?,?)`)
	insertFailure, _ := s.db.Prepare(`INSERT OR REPLACE INTO failures(topic,seq,stamp_ns,code,message) VALUES(?,?,?,?,?)`)
	defer func() {
		if insertBatch != nil {
			_ = insertBatch.Close()
		}
		if insertFailure != nil {
			_ = insertFailure.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqBatch:
			b := r.batch
			if insertBatch != nil {
				if _, err := tx.Stmt(insertBatch).Exec(b.Topic, int64(b.Seq), b.StampNs, b.Creates, b.Updates, b.Removes, b.Frames, b.RecordedAt); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		case reqFailure:
			f := r.failure
			if insertFailure != nil {
				if _, err := tx.Stmt(insertFailure).Exec(f.Topic, int64(f.Seq), f.StampNs, f.Code, f.Message); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}
