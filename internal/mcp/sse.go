package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/yclients-mcp/pkg/logging"
)

const (
	defaultMessagePath    = "/messages"
	defaultKeepAlive      = 25 * time.Second
	maxMessageBytes       = 4 << 20
	sessionEventBufferLen = 16
	maxInFlightPerSession = 8
)

// SSEHandler serves the HTTP+SSE transport: clients hold a GET stream open
// and post requests to the endpoint announced on it. Responses are delivered
// on the stream of the session that posted the request.
type SSEHandler struct {
	server      *Server
	logger      *logging.Logger
	messagePath string
	keepAlive   time.Duration

	mu       sync.RWMutex
	sessions map[string]*sseSession

	closing   chan struct{}
	closeOnce sync.Once
}

// sseSession lives as long as its GET stream. ctx is cancelled when the
// stream ends, which also cancels requests still running for it.
type sseSession struct {
	id       string
	ctx      context.Context
	cancel   context.CancelFunc
	events   chan []byte
	done     chan struct{}
	inflight chan struct{}
}

// SSEOption configures an SSEHandler.
type SSEOption func(*SSEHandler)

// WithMessagePath sets the path announced in the endpoint event.
func WithMessagePath(path string) SSEOption {
	return func(h *SSEHandler) {
		if path != "" {
			h.messagePath = path
		}
	}
}

// WithKeepAlive sets the interval between comment frames on idle streams.
func WithKeepAlive(d time.Duration) SSEOption {
	return func(h *SSEHandler) {
		if d > 0 {
			h.keepAlive = d
		}
	}
}

// NewSSEHandler creates the SSE transport for server.
func NewSSEHandler(server *Server, logger *logging.Logger, opts ...SSEOption) *SSEHandler {
	if logger == nil {
		logger = logging.Default()
	}
	h := &SSEHandler{
		server:      server,
		logger:      logger,
		messagePath: defaultMessagePath,
		keepAlive:   defaultKeepAlive,
		sessions:    make(map[string]*sseSession),
		closing:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SessionCount returns the number of open streams.
func (h *SSEHandler) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close ends every open stream and refuses new ones. It is meant for
// http.Server.RegisterOnShutdown, since Shutdown does not interrupt
// long-lived responses on its own.
func (h *SSEHandler) Close() {
	h.closeOnce.Do(func() {
		close(h.closing)
	})
}

// HandleStream opens an event stream and registers a new session for it.
func (h *SSEHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	select {
	case <-h.closing:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	ctx, cancel := context.WithCancel(r.Context())
	sess := &sseSession{
		id:       uuid.New().String(),
		ctx:      ctx,
		cancel:   cancel,
		events:   make(chan []byte, sessionEventBufferLen),
		done:     make(chan struct{}),
		inflight: make(chan struct{}, maxInFlightPerSession),
	}
	h.mu.Lock()
	h.sessions[sess.id] = sess
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.sessions, sess.id)
		h.mu.Unlock()
		cancel()
		close(sess.done)
		h.logger.Info("mcp: sse session closed", "session_id", sess.id)
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	endpoint := fmt.Sprintf("%s?sessionId=%s", h.messagePath, sess.id)
	if err := writeEvent(w, "endpoint", []byte(endpoint)); err != nil {
		return
	}
	flusher.Flush()
	h.logger.Info("mcp: sse session opened", "session_id", sess.id, "remote_addr", r.RemoteAddr)

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.closing:
			return
		case msg := <-sess.events:
			if err := writeEvent(w, "message", msg); err != nil {
				h.logger.Debug("mcp: sse write failed", "session_id", sess.id, "error", err)
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// HandleMessage accepts one JSON-RPC message for the session named by the
// sessionId query parameter. The response is written to that session's stream.
func (h *SSEHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	h.mu.RLock()
	sess, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		writeJSONError(w, http.StatusBadRequest, "No transport found for sessionId")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	select {
	case sess.inflight <- struct{}{}:
	default:
		writeJSONError(w, http.StatusTooManyRequests, "Too many requests in flight for session")
		return
	}

	w.WriteHeader(http.StatusAccepted)
	_, _ = io.WriteString(w, "Accepted")

	go func() {
		defer func() { <-sess.inflight }()
		resp := h.server.Handle(sess.ctx, body)
		if resp == nil {
			return
		}
		select {
		case sess.events <- resp:
		case <-sess.done:
			h.logger.Warn("mcp: dropping response for closed session", "session_id", sess.id)
		}
	}()
}

func writeEvent(w io.Writer, event string, data []byte) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
