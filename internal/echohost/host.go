// Package echohost implements a small host-side endpoint: it accepts
// multiplexer connections over WebSocket, answers pings, runs processes
// on request, and broadcasts shell lifecycle notifications to every
// connected client. It backs the `termmux host` command and the
// end-to-end tests.
package echohost

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/termmux-dev/termmux/pkg/envelope"
	"github.com/termmux-dev/termmux/pkg/mux"
	"github.com/termmux-dev/termmux/pkg/protocol"
)

// processTimeout bounds a single RunProcess execution.
const processTimeout = 30 * time.Second

// Host accepts multiplexer connections and serves requests.
type Host struct {
	logger   *slog.Logger
	registry *prometheus.Registry
	tr       *envelope.Translator
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[*session]struct{}
}

type session struct {
	stream *mux.PacketStream
}

// New creates a host. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	return &Host{
		logger:   logger,
		registry: registry,
		tr:       envelope.NewTranslator(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
		sessions: make(map[*session]struct{}),
	}
}

// Registry exposes the host's metrics registry so callers can register
// their own instruments alongside.
func (h *Host) Registry() *prometheus.Registry {
	return h.registry
}

// Router returns the HTTP surface: the multiplexer endpoint, metrics,
// and a liveness probe.
func (h *Host) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/mux", h.handleMux)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return r
}

func (h *Host) handleMux(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	s := &session{stream: mux.NewPacketStream(h.logger, nil)}
	s.stream.OnFrame(func(f *protocol.Frame) {
		h.handleFrame(s, f)
	})

	// Register before the read pump starts so an instant disconnect
	// still finds the session to prune.
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	total := len(h.sessions)
	h.mu.Unlock()

	// Prune the session as soon as the connection goes away, not only
	// when a later write fails.
	sock := mux.NewWebSocket(conn, h.logger)
	sock.OnClose(func() {
		h.drop(s)
	})
	s.stream.SetSocket(sock)

	h.logger.Info("client connected", "sessions", total)
}

func (h *Host) handleFrame(s *session, f *protocol.Frame) {
	m, err := h.tr.Decode(f)
	if err != nil {
		h.logger.Warn("dropping undecodable frame", "error", err)
		return
	}

	switch v := m.(type) {
	case *envelope.Ping:
		h.reply(s, &envelope.Pong{MessageID: v.MessageID})

	case *envelope.Request:
		h.handleRequest(s, v)

	case *envelope.Pong, *envelope.Response:
		h.logger.Warn("unexpected reply from client", "tag", m.Tag().String())

	default:
		h.logger.Warn("dropping envelope with unknown tag", "tag", uint8(m.Tag()))
	}
}

func (h *Host) handleRequest(s *session, req *envelope.Request) {
	switch p := req.Payload.(type) {
	case *envelope.RunProcess:
		result := runProcess(p)
		h.reply(s, &envelope.Response{MessageID: req.MessageID, Payload: result})

	case *envelope.InsertText:
		h.logger.Info("insert text",
			"session", req.SessionID,
			"insertion", p.Insertion,
			"deletion", p.Deletion)

	case *envelope.Intercept:
		h.logger.Info("intercept update",
			"session", req.SessionID,
			"bound", p.BoundKeystrokes,
			"global", p.GlobalKeystrokes)

	case *envelope.UnknownPayload:
		h.logger.Warn("dropping request with unknown kind", "kind", uint8(p.RawKind))

	default:
		h.logger.Warn("unsupported request kind", "kind", req.Payload.Kind().String())
	}
}

func (h *Host) reply(s *session, m envelope.Message) {
	f, err := h.tr.Encode(m)
	if err != nil {
		h.logger.Error("encode reply failed", "error", err)
		return
	}
	if err := s.stream.Write(f); err != nil {
		h.logger.Warn("reply failed, dropping session", "error", err)
		h.drop(s)
	}
}

// sessionCount reports how many sessions are currently registered.
func (h *Host) sessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *Host) drop(s *session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
	s.stream.Close()
}

// Broadcast pushes a notification payload to every connected client.
// Sessions whose socket has gone away are pruned.
func (h *Host) Broadcast(payload envelope.Payload) {
	h.mu.Lock()
	sessions := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	msg := &envelope.Request{
		MessageID: uuid.NewString(),
		Payload:   payload,
	}
	f, err := h.tr.Encode(msg)
	if err != nil {
		h.logger.Error("encode broadcast failed", "error", err)
		return
	}
	for _, s := range sessions {
		if err := s.stream.Write(f); err != nil {
			h.logger.Warn("broadcast failed, dropping session", "error", err)
			h.drop(s)
		}
	}
}

// Close tears down every session.
func (h *Host) Close() {
	h.mu.Lock()
	sessions := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[*session]struct{})
	h.mu.Unlock()

	for _, s := range sessions {
		s.stream.Close()
	}
}

// runProcess executes the requested command and captures its outcome.
// Failures to even start the process come back with exit code -1 and
// the error text on stderr, so the client always gets a result.
func runProcess(p *envelope.RunProcess) *envelope.RunProcessResult {
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.Executable, p.Arguments...)
	cmd.Dir = p.WorkingDirectory

	if len(p.Env) > 0 {
		env := os.Environ()
		for k, v := range p.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &envelope.RunProcessResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	switch {
	case err == nil:
		result.ExitCode = 0
	case cmd.ProcessState != nil:
		result.ExitCode = int32(cmd.ProcessState.ExitCode())
	default:
		result.ExitCode = -1
		result.Stderr = err.Error()
	}
	return result
}
