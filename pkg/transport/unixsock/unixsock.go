// Package unixsock implements the length-prefixed MCP transport over a Unix
// domain socket, sharing tcp's accept/shutdown lifecycle and streamconn's
// frame loop.
package unixsock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/jamesprial/mcp-core/pkg/dispatcher"
	"github.com/jamesprial/mcp-core/pkg/session"
	"github.com/jamesprial/mcp-core/pkg/transport/streamconn"
)

// Transport serves the framed MCP protocol over a Unix domain socket, one
// Session per accepted connection.
type Transport struct {
	path       string
	frameLimit int
	newSession func(sender dispatcher.Sender) *session.Session
	logger     *slog.Logger

	mu       sync.RWMutex
	listener net.Listener

	wg sync.WaitGroup
}

// New builds a unixsock Transport listening on the socket at path. An
// existing stale socket file at path is removed before binding, matching
// how a crashed prior instance's leftover socket is normally handled.
func New(path string, frameLimit int, newSession func(sender dispatcher.Sender) *session.Session, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{path: path, frameLimit: frameLimit, newSession: newSession, logger: logger}
}

// Start binds the socket and serves accepted connections until Shutdown is
// called or the listener errors.
func (t *Transport) Start(ctx context.Context) error {
	if _, err := os.Stat(t.path); err == nil {
		_ = os.Remove(t.path)
	}

	listener, err := net.Listen("unix", t.path)
	if err != nil {
		return fmt.Errorf("unixsock: listen: %w", err)
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
			t.logger.Warn("unixsock: accept error", "error", err)
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
// for in-flight connections to finish draining or ctx to expire, and
// removes the socket file.
func (t *Transport) Shutdown(ctx context.Context) error {
	t.mu.RLock()
	listener := t.listener
	t.mu.RUnlock()

	if listener != nil {
		_ = listener.Close()
	}
	defer os.Remove(t.path)

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("unixsock: shutdown drain window exceeded: %w", ctx.Err())
	}
}

// Addr returns the socket path being listened on.
func (t *Transport) Addr() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.listener == nil {
		return t.path
	}
	return t.listener.Addr().String()
}
