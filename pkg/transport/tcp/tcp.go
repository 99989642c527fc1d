// Package tcp implements the length-prefixed MCP transport over a plain TCP
// listener, generalizing the teacher's internal/transport/internal/http
// server lifecycle (Start/Shutdown/Addr over a net.Listener) to a
// non-HTTP, non-TLS socket.
package tcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/jamesprial/mcp-core/pkg/dispatcher"
	"github.com/jamesprial/mcp-core/pkg/session"
	"github.com/jamesprial/mcp-core/pkg/transport/streamconn"
)

// Transport serves the framed MCP protocol over TCP, one Session per
// accepted connection.
type Transport struct {
	addr       string
	frameLimit int
	newSession func(sender dispatcher.Sender) *session.Session
	logger     *slog.Logger

	mu       sync.RWMutex
	listener net.Listener

	wg sync.WaitGroup
}

// New builds a tcp Transport listening on addr. newSession constructs one
// Session per accepted connection, bound to that connection's Sender.
func New(addr string, frameLimit int, newSession func(sender dispatcher.Sender) *session.Session, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{addr: addr, frameLimit: frameLimit, newSession: newSession, logger: logger}
}

// Start listens on t.addr and serves accepted connections until Shutdown is
// called or the listener errors.
func (t *Transport) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", t.addr)
	if err != nil {
		return fmt.Errorf("tcp: listen: %w", err)
	}

	t.mu.Lock()
	t.listener = listener
	t.mu.Unlock()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			t.logger.Warn("tcp: accept error", "error", err)
			continue
		}

		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			streamconn.Serve(ctx, conn, t.frameLimit, t.newSession, t.logger)
		}()
	}
}

// Shutdown closes the listener so Start's Accept loop returns, then waits
// for in-flight connections to finish draining or ctx to expire.
func (t *Transport) Shutdown(ctx context.Context) error {
	t.mu.RLock()
	listener := t.listener
	t.mu.RUnlock()

	if listener != nil {
		_ = listener.Close()
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
		return fmt.Errorf("tcp: shutdown drain window exceeded: %w", ctx.Err())
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

