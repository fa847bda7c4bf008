package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	persistlog "sceneviz.dev/internal/persistence/log"
	"sceneviz.dev/internal/protocol"
	"sceneviz.dev/internal/viz/vizcodec"
)

func main() {
	var (
		dataDir  = flag.String("data", "./data", "runtime data directory (reads <data>/recordings)")
		recDir   = flag.String("recordings", "", "recordings dir containing markers-*.jsonl.zst (overrides -data)")
		validate = flag.Bool("validate", false, "validate every envelope against the wire schemas")
	)
	flag.Parse()

	dir := *recDir
	if dir == "" {
		dir = persistlog.RecordingDir(*dataDir)
	}
	files, err := persistlog.RecordingFiles(dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list recordings:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no recordings found in", dir)
		os.Exit(1)
	}

	var schemas *protocol.Schemas
	if *validate {
		schemas, err = protocol.CompileSchemas()
		if err != nil {
			fmt.Fprintln(os.Stderr, "compile schemas:", err)
			os.Exit(1)
		}
	}

	c := newChecker(schemas)
	for _, path := range files {
		err := persistlog.ReadRecording(path, func(line []byte) error {
			if err := c.check(line); err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			return nil
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}

	for _, topic := range c.topics() {
		s := c.stats[topic]
		fmt.Printf("%s envelopes=%d adds=%d deletes=%d frames=%d errors=%d live=%d\n",
			topic, s.Envelopes, s.Adds, s.Deletes, s.Frames, s.Errors, len(c.live[topic]))
	}
	fmt.Printf("replay ok: files=%d envelopes=%d\n", len(files), c.total)
}

type topicStats struct {
	Envelopes int
	Adds      int
	Deletes   int
	Frames    int
	Errors    int
}

type markerKey struct {
	ns string
	id int
}

// checker replays recorded envelopes and verifies the stream invariants a
// viewer depends on: contiguous per-topic sequence numbers, deletes only for
// live markers, and strictly increasing transform stamps.
type checker struct {
	schemas *protocol.Schemas

	total   int
	stats   map[string]*topicStats
	nextSeq map[string]uint64
	live    map[string]map[markerKey]bool
	lastTF  map[string]int64
}

func newChecker(schemas *protocol.Schemas) *checker {
	return &checker{
		schemas: schemas,
		stats:   map[string]*topicStats{},
		nextSeq: map[string]uint64{},
		live:    map[string]map[markerKey]bool{},
		lastTF:  map[string]int64{},
	}
}

func (c *checker) topics() []string {
	out := make([]string, 0, len(c.stats))
	for t := range c.stats {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (c *checker) check(line []byte) error {
	base, err := protocol.DecodeBase(line)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if c.schemas != nil {
		var doc any
		if err := json.Unmarshal(line, &doc); err != nil {
			return err
		}
		if err := c.schemas.Validate(doc); err != nil {
			return fmt.Errorf("envelope %d: %w", c.total, err)
		}
	}

	var seq struct {
		Seq uint64 `json:"seq"`
	}
	if err := json.Unmarshal(line, &seq); err != nil {
		return err
	}
	// A restarted server begins again at zero.
	if seq.Seq != 0 && seq.Seq != c.nextSeq[base.Topic] {
		return fmt.Errorf("topic %s: seq gap want=%d got=%d", base.Topic, c.nextSeq[base.Topic], seq.Seq)
	}
	if seq.Seq == 0 {
		delete(c.live, base.Topic)
		delete(c.lastTF, base.Topic)
	}
	c.nextSeq[base.Topic] = seq.Seq + 1

	s := c.stats[base.Topic]
	if s == nil {
		s = &topicStats{}
		c.stats[base.Topic] = s
	}
	s.Envelopes++
	c.total++

	switch base.Type {
	case protocol.TypeMarkers:
		var env protocol.MarkersEnvelope
		if err := json.Unmarshal(line, &env); err != nil {
			return err
		}
		return c.checkMarkers(s, env)
	case protocol.TypeTF:
		var env protocol.TFEnvelope
		if err := json.Unmarshal(line, &env); err != nil {
			return err
		}
		return c.checkTF(s, env)
	case protocol.TypeError:
		s.Errors++
		return nil
	default:
		return fmt.Errorf("unknown envelope type %q", base.Type)
	}
}

func (c *checker) checkMarkers(s *topicStats, env protocol.MarkersEnvelope) error {
	live := c.live[env.Topic]
	if live == nil {
		live = map[markerKey]bool{}
		c.live[env.Topic] = live
	}
	for _, m := range env.Markers.Markers {
		k := markerKey{ns: m.Ns, id: m.ID}
		switch m.Action {
		case protocol.MarkerAdd:
			s.Adds++
			live[k] = true
		case protocol.MarkerDelete:
			s.Deletes++
			if !live[k] {
				return fmt.Errorf("topic %s seq %d: delete of unknown marker %s#%d", env.Topic, env.Seq, m.Ns, m.ID)
			}
			delete(live, k)
		case protocol.MarkerDeleteAll:
			clear(live)
		}
	}
	return nil
}

func (c *checker) checkTF(s *topicStats, env protocol.TFEnvelope) error {
	if len(env.TF.Transforms) == 0 {
		return nil
	}
	first := env.TF.Transforms[0].Header.Stamp
	for _, tr := range env.TF.Transforms {
		if tr.Header.Stamp != first {
			return fmt.Errorf("topic %s seq %d: mixed stamps in one message", env.Topic, env.Seq)
		}
	}
	s.Frames += len(env.TF.Transforms)

	stamp := int64(vizcodec.StampDuration(first))
	if last, seen := c.lastTF[env.Topic]; seen && stamp <= last {
		return fmt.Errorf("topic %s seq %d: stamp did not advance", env.Topic, env.Seq)
	}
	c.lastTF[env.Topic] = stamp
	return nil
}
