package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"sceneviz.dev/internal/observerproto"
	"sceneviz.dev/internal/viz/markers"
	"sceneviz.dev/internal/viz/tf"
	"sceneviz.dev/internal/viz/vizcodec"
)

type Options struct {
	// Queue is the default per-viewer buffer; SUBSCRIBE may lower it.
	Queue int
	// Bootstrap describes the running scene for GET /v1/observer/bootstrap.
	Bootstrap func() observerproto.BootstrapResponse
	// Resync is called when a viewer (re)subscribes so it receives a full set.
	Resync func()
}

type session struct {
	id  string
	out chan []byte

	mu     sync.RWMutex
	topics map[string]bool // nil: all topics

	dropped atomic.Uint64
}

func (s *session) wants(topic string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topics == nil || s.topics[topic]
}

func (s *session) setTopics(topics []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(topics) == 0 {
		s.topics = nil
		return
	}
	s.topics = make(map[string]bool, len(topics))
	for _, t := range topics {
		s.topics[t] = true
	}
}

// Server fans marker and transform batches out to websocket viewers. It
// implements visualizer.Sink and visualizer.FailureSink.
type Server struct {
	log  *log.Logger
	opts Options
	enc  *vizcodec.Encoder

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewServer(logger *log.Logger, opts Options) *Server {
	if opts.Queue <= 0 {
		opts.Queue = 64
	}
	return &Server{
		log:  logger,
		opts: opts,
		enc:  vizcodec.NewEncoder(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		sessions: map[string]*session{},
	}
}

func (s *Server) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Dropped reports messages discarded for a viewer whose queue was full.
func (s *Server) Dropped() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n uint64
	for _, sess := range s.sessions {
		n += sess.dropped.Load()
	}
	return n
}

func (s *Server) PublishMarkers(topic string, b markers.Batch) error {
	if s.Sessions() == 0 {
		return nil
	}
	_, raw, err := s.enc.Markers(topic, b)
	if err != nil {
		return err
	}
	s.broadcast(topic, raw)
	return nil
}

func (s *Server) PublishTransforms(topic string, b tf.Batch) error {
	if s.Sessions() == 0 {
		return nil
	}
	_, raw, err := s.enc.Transforms(topic, b)
	if err != nil {
		return err
	}
	s.broadcast(topic, raw)
	return nil
}

func (s *Server) PublishFailure(topic string, at time.Duration, failure error) {
	if s.Sessions() == 0 {
		return
	}
	_, raw, err := s.enc.Failure(topic, at, failure)
	if err != nil {
		s.log.Printf("observer: encode failure: %v", err)
		return
	}
	s.broadcast(topic, raw)
}

func (s *Server) broadcast(topic string, raw []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if !sess.wants(topic) {
			continue
		}
		select {
		case sess.out <- raw:
		default:
			sess.dropped.Add(1)
		}
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		resp := observerproto.BootstrapResponse{ProtocolVersion: observerproto.Version}
		if s.opts.Bootstrap != nil {
			resp = s.opts.Bootstrap()
			resp.ProtocolVersion = observerproto.Version
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func readSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	return sub, true
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := readSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		queue := s.opts.Queue
		if sub.MaxQueue > 0 && sub.MaxQueue < queue {
			queue = sub.MaxQueue
		}
		sess := &session{
			id:  fmt.Sprintf("O%d", s.nextID.Add(1)),
			out: make(chan []byte, queue),
		}
		sess.setTopics(sub.Topics)

		// Registered before the ack so nothing published after it is missed.
		s.mu.Lock()
		s.sessions[sess.id] = sess
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.sessions, sess.id)
			s.mu.Unlock()
		}()

		ack, _ := json.Marshal(observerproto.SubscribedMsg{
			Type:            observerproto.TypeSubscribed,
			ProtocolVersion: observerproto.Version,
			SessionID:       sess.id,
			Topics:          sub.Topics,
		})
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, ack); err != nil {
			return
		}

		s.log.Printf("observer %s subscribed topics=%v queue=%d", sess.id, sub.Topics, queue)
		s.resync()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			sub, ok := readSubscribe(msg)
			if !ok {
				continue
			}
			sess.setTopics(sub.Topics)
			s.resync()
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		if n := sess.dropped.Load(); n > 0 {
			s.log.Printf("observer %s closed; dropped %d messages", sess.id, n)
		}
	}
}

func (s *Server) resync() {
	if s.opts.Resync != nil {
		s.opts.Resync()
	}
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
