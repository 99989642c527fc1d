// Package httpsse implements the MCP Streamable HTTP transport: JSON-RPC
// frames POSTed to a single endpoint, with an optional Server-Sent Events
// stream on the same path for server-to-client notifications and outbound
// calls. It generalizes the teacher's internal/transport/internal/http
// server+router (net/http.Server lifecycle, gorilla/mux routing, the same
// middleware chain) from a single-purpose OAuth metadata/token-introspection
// bridge to a transport carrying arbitrary MCP traffic.
package httpsse

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/jamesprial/mcp-core/pkg/dispatcher"
	"github.com/jamesprial/mcp-core/pkg/mcpcontext"
	"github.com/jamesprial/mcp-core/pkg/protocol"
	"github.com/jamesprial/mcp-core/pkg/session"
)

const sessionHeader = "Mcp-Session-Id"

// brotliThreshold is the payload size at or above which an SSE event is brotli
// compressed and base64-framed instead of sent as plain JSON text,
// mirroring richard-senior-mcp's content-encoding handling applied
// server-side to outbound frames rather than client-side to inbound ones.
const brotliThreshold = 1024

// Config configures the httpsse Transport.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	NewSession   func(sender dispatcher.Sender) *session.Session
	Logger       *slog.Logger
}

// Transport serves MCP over HTTP POST (request/response) and GET
// (Server-Sent Events for server-initiated traffic), keyed by an
// Mcp-Session-Id header the server assigns at initialize.
type Transport struct {
	cfg Config

	httpServer *http.Server
	mu         sync.RWMutex
	listener   net.Listener

	sessMu   sync.Mutex
	sessions map[string]*httpSession
}

type httpSession struct {
	sess   *session.Session
	events chan []byte
}

func (s *httpSession) SendFrame(ctx context.Context, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("httpsse: marshal frame: %w", err)
	}
	select {
	case s.events <- raw:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ dispatcher.Sender = (*httpSession)(nil)

// New builds an httpsse Transport from cfg.
func New(cfg Config) *Transport {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Transport{cfg: cfg, sessions: make(map[string]*httpSession)}
}

func (t *Transport) router() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/mcp", t.handlePost).Methods(http.MethodPost)
	r.HandleFunc("/mcp", t.handleSSE).Methods(http.MethodGet)
	return r
}

// Start listens on cfg.Addr and serves until Shutdown is called, mirroring
// the teacher's server.Start: bind a listener, then Serve it.
func (t *Transport) Start(ctx context.Context) error {
	t.httpServer = &http.Server{
		Addr:         t.cfg.Addr,
		Handler:      t.router(),
		ReadTimeout:  t.cfg.ReadTimeout,
		WriteTimeout: t.cfg.WriteTimeout,
		IdleTimeout:  t.cfg.IdleTimeout,
	}

	listener, err := net.Listen("tcp", t.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("httpsse: listen: %w", err)
	}

	t.mu.Lock()
	t.listener = listener
	t.mu.Unlock()

	if err := t.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("httpsse: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server, mirroring the teacher's
// server.Shutdown default-30s-deadline behavior.
func (t *Transport) Shutdown(ctx context.Context) error {
	if t.httpServer == nil {
		return nil
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}
	if err := t.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("httpsse: shutdown failed: %w", err)
	}
	return nil
}

// Addr returns the address the listener is bound to.
func (t *Transport) Addr() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.listener == nil {
		return t.cfg.Addr
	}
	return t.listener.Addr().String()
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(auth, prefix) {
		return strings.TrimPrefix(auth, prefix)
	}
	return ""
}

func (t *Transport) handlePost(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	frame, err := protocol.Classify(body)
	if err != nil {
		writeJSON(w, protocol.NewErrorResponse(nil, protocol.CodeParseError, err.Error(), nil))
		return
	}

	ctx := r.Context()
	if token := bearerToken(r); token != "" {
		ctx = mcpcontext.WithBearerToken(ctx, token)
	}

	isInitialize := frame.Request != nil && frame.Request.Method == protocol.MethodInitialize
	sessionID := r.Header.Get(sessionHeader)

	var hs *httpSession
	if isInitialize {
		sessionID = newSessionID()
		hs = &httpSession{events: make(chan []byte, 32)}
		hs.sess = t.cfg.NewSession(hs)
		t.sessMu.Lock()
		t.sessions[sessionID] = hs
		t.sessMu.Unlock()
	} else {
		t.sessMu.Lock()
		hs = t.sessions[sessionID]
		t.sessMu.Unlock()
		if hs == nil {
			writeJSON(w, protocol.NewErrorResponse(requestID(frame), protocol.CodeNotInitialized, "unknown or missing Mcp-Session-Id", nil))
			return
		}
	}

	responses := hs.sess.HandleFrame(ctx, frame)

	if sessionID != "" {
		w.Header().Set(sessionHeader, sessionID)
	}
	if len(responses) == 0 {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	if len(responses) == 1 {
		writeJSON(w, responses[0])
		return
	}
	writeJSON(w, responses)
}

func (t *Transport) handleSSE(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		sessionID = r.URL.Query().Get("session")
	}

	t.sessMu.Lock()
	hs := t.sessions[sessionID]
	t.sessMu.Unlock()
	if hs == nil {
		http.Error(w, "unknown or missing Mcp-Session-Id", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	acceptsBrotli := strings.Contains(r.Header.Get("Accept-Encoding"), "br")

	for {
		select {
		case raw := <-hs.events:
			if err := writeSSEEvent(w, raw, acceptsBrotli); err != nil {
				t.cfg.Logger.Warn("httpsse: failed to write SSE event", "error", err)
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// writeSSEEvent writes raw as an SSE "data:" event, brotli-compressing and
// base64-framing it under an "event: br" marker when it is large enough to
// be worth the compression overhead and the client advertised support.
func writeSSEEvent(w io.Writer, raw []byte, acceptsBrotli bool) error {
	if !acceptsBrotli || len(raw) < brotliThreshold {
		_, err := fmt.Fprintf(w, "data: %s\n\n", raw)
		return err
	}

	var buf bytes.Buffer
	bw := brotli.NewWriter(&buf)
	if _, err := bw.Write(raw); err != nil {
		return fmt.Errorf("brotli compress: %w", err)
	}
	if err := bw.Close(); err != nil {
		return fmt.Errorf("brotli close: %w", err)
	}

	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())
	_, err := fmt.Fprintf(w, "event: br\ndata: %s\n\n", encoded)
	return err
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func requestID(frame *protocol.Frame) protocol.RequestID {
	if frame != nil && frame.Request != nil {
		return frame.Request.ID
	}
	return nil
}

func newSessionID() string {
	return uuid.NewString()
}
