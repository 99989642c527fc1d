// Package tlstransport implements the length-prefixed MCP transport over a
// TLS-wrapped TCP listener, sharing tcp's accept/shutdown lifecycle and
// streamconn's frame loop, differing only in how the listener is built.
package tlstransport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/jamesprial/mcp-core/pkg/dispatcher"
	"github.com/jamesprial/mcp-core/pkg/session"
	"github.com/jamesprial/mcp-core/pkg/transport/streamconn"
)

// Transport serves the framed MCP protocol over TLS, one Session per
// accepted connection.
type Transport struct {
	addr       string
	certFile   string
	keyFile    string
	frameLimit int
	newSession func(sender dispatcher.Sender) *session.Session
	logger     *slog.Logger

	mu       sync.RWMutex
	listener net.Listener

	wg sync.WaitGroup
}

// New builds a tlstransport Transport listening on addr with the given
// certificate and key files.
func New(addr, certFile, keyFile string, frameLimit int, newSession func(sender dispatcher.Sender) *session.Session, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{addr: addr, certFile: certFile, keyFile: keyFile, frameLimit: frameLimit, newSession: newSession, logger: logger}
}

// Start loads the certificate, listens on t.addr, and serves accepted
// connections until Shutdown is called or the listener errors.
func (t *Transport) Start(ctx context.Context) error {
	cert, err := tls.LoadX509KeyPair(t.certFile, t.keyFile)
	if err != nil {
		return fmt.Errorf("tlstransport: load certificate: %w", err)
	}

	listener, err := tls.Listen("tcp", t.addr, &tls.Config{Certificates: []tls.Certificate{cert}})
	if err != nil {
		return fmt.Errorf("tlstransport: listen: %w", err)
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
			t.logger.Warn("tlstransport: accept error", "error", err)
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
		return fmt.Errorf("tlstransport: shutdown drain window exceeded: %w", ctx.Err())
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
