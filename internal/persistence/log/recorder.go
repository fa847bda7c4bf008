package log

import (
	"bufio"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"

	"sceneviz.dev/internal/viz/markers"
	"sceneviz.dev/internal/viz/tf"
	"sceneviz.dev/internal/viz/vizcodec"
)

// Recorder writes every published envelope, as sent to viewers, to
// <dataDir>/recordings/markers-YYYY-MM-DD-HH.jsonl.zst.
type Recorder struct {
	w   *JSONLZstdWriter
	enc *vizcodec.Encoder

	writeErrs atomic.Uint64
}

func NewRecorder(dataDir string) *Recorder {
	return &Recorder{
		w:   NewJSONLZstdWriter(RecordingDir(dataDir), "markers"),
		enc: vizcodec.NewEncoder(),
	}
}

func RecordingDir(dataDir string) string { return filepath.Join(dataDir, "recordings") }

func (r *Recorder) PublishMarkers(topic string, b markers.Batch) error {
	_, raw, err := r.enc.Markers(topic, b)
	if err != nil {
		return err
	}
	return r.write(raw)
}

func (r *Recorder) PublishTransforms(topic string, b tf.Batch) error {
	_, raw, err := r.enc.Transforms(topic, b)
	if err != nil {
		return err
	}
	return r.write(raw)
}

func (r *Recorder) PublishFailure(topic string, at time.Duration, failure error) {
	_, raw, err := r.enc.Failure(topic, at, failure)
	if err != nil {
		r.writeErrs.Add(1)
		return
	}
	_ = r.write(raw)
}

// WriteErrors counts envelopes that could not be recorded.
func (r *Recorder) WriteErrors() uint64 { return r.writeErrs.Load() }

func (r *Recorder) write(raw []byte) error {
	if err := r.w.WriteLine(raw); err != nil {
		r.writeErrs.Add(1)
		return err
	}
	return nil
}

func (r *Recorder) Close() error { return r.w.Close() }

// RecordingFiles lists recording files under dir in chronological order.
func RecordingFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.jsonl.zst"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ReadRecording calls fn for every non-empty line of a recording file.
func ReadRecording(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer zr.Close()

	br := bufio.NewReaderSize(zr, 128*1024)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 && line[len(line)-1] == '\n' {
			line = line[:len(line)-1]
		}
		if len(line) > 0 {
			if ferr := fn(line); ferr != nil {
				return ferr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
