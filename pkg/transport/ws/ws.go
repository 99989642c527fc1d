// Package ws implements the MCP transport over a WebSocket connection, one
// Session per upgraded connection. It generalizes the upgrade/read/write
// loop pattern the pack uses for WebSocket-carried JSON-RPC traffic
// (gorilla/websocket's Upgrader, ReadJSON/WriteJSON) to the full MCP
// session lifecycle rather than a single flat request handler.
package ws

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/jamesprial/mcp-core/pkg/dispatcher"
	"github.com/jamesprial/mcp-core/pkg/protocol"
	"github.com/jamesprial/mcp-core/pkg/session"
)

// Transport serves the MCP protocol over WebSocket connections accepted on
// a plain HTTP server at a single upgrade path.
type Transport struct {
	addr       string
	path       string
	newSession func(sender dispatcher.Sender) *session.Session
	logger     *slog.Logger
	upgrader   websocket.Upgrader

	httpServer *http.Server
	mu         sync.RWMutex
	listener   net.Listener

	wg sync.WaitGroup
}

// New builds a ws Transport listening on addr, upgrading connections at
// path (default "/mcp" if empty).
func New(addr, path string, newSession func(sender dispatcher.Sender) *session.Session, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		path = "/mcp"
	}
	return &Transport{
		addr:       addr,
		path:       path,
		newSession: newSession,
		logger:     logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Start listens on t.addr and upgrades incoming connections at t.path until
// Shutdown is called.
func (t *Transport) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(t.path, func(w http.ResponseWriter, r *http.Request) {
		t.handleUpgrade(ctx, w, r)
	})

	t.httpServer = &http.Server{Addr: t.addr, Handler: mux}

	listener, err := net.Listen("tcp", t.addr)
	if err != nil {
		return fmt.Errorf("ws: listen: %w", err)
	}

	t.mu.Lock()
	t.listener = listener
	t.mu.Unlock()

	if err := t.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ws: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops accepting new connections and waits for
// in-flight connection handlers to drain or ctx to expire.
func (t *Transport) Shutdown(ctx context.Context) error {
	if t.httpServer == nil {
		return nil
	}
	if err := t.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ws: shutdown failed: %w", err)
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ws: shutdown drain window exceeded: %w", ctx.Err())
	}
}

// Addr returns the address the listener is bound to.
func (t *Transport) Addr() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.listener == nil {
		return t.addr
	}
	return t.listener.Addr().String()
}

type wsSender struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (s *wsSender) SendFrame(ctx context.Context, v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

var _ dispatcher.Sender = (*wsSender)(nil)

func (t *Transport) handleUpgrade(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Warn("ws: upgrade failed", "error", err)
		return
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.serve(ctx, conn)
	}()
}

func (t *Transport) serve(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	sender := &wsSender{conn: conn}
	sess := t.newSession(sender)

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	defer close(stop)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				t.logger.Debug("ws: connection closed", "error", err)
			}
			_ = sess.ShutdownWithDefaultTimeout(context.Background())
			return
		}

		frame, err := protocol.Classify(data)
		if err != nil {
			if sendErr := sender.SendFrame(ctx, protocol.NewErrorResponse(nil, protocol.CodeParseError, err.Error(), nil)); sendErr != nil {
				return
			}
			continue
		}

		for _, resp := range sess.HandleFrame(ctx, frame) {
			if err := sender.SendFrame(ctx, resp); err != nil {
				t.logger.Warn("ws: failed to write response", "error", err)
				return
			}
		}
	}
}
