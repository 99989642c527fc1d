// Package streamconn drives one length-prefixed stream connection (as used
// by the tcp, tls, and unix transport backings) against a Session: it reads
// frames, hands them to Session.HandleFrame, and writes back whatever
// Responses come out, while also implementing dispatcher.Sender so the
// Session can originate outbound calls/notifications over the same
// connection.
package streamconn

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/jamesprial/mcp-core/pkg/dispatcher"
	"github.com/jamesprial/mcp-core/pkg/protocol"
	"github.com/jamesprial/mcp-core/pkg/session"
	"github.com/jamesprial/mcp-core/pkg/transport/framing"
)

// Conn wraps a net.Conn as a dispatcher.Sender, serializing concurrent
// writes since multiple goroutines (the read loop's responses, and any
// handler emitting progress notifications) may send frames at once.
type Conn struct {
	conn    net.Conn
	limit   int
	writeMu sync.Mutex
}

// New wraps conn for framed read/write, enforcing limit as the maximum
// frame size in either direction (0 means unbounded).
func New(conn net.Conn, limit int) *Conn {
	return &Conn{conn: conn, limit: limit}
}

var _ dispatcher.Sender = (*Conn)(nil)

// SendFrame marshals v to JSON and writes it as one length-prefixed frame.
func (c *Conn) SendFrame(ctx context.Context, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("streamconn: marshal frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return framing.Write(c.conn, raw)
}

// Serve blocks, reading length-prefixed frames from conn and routing them
// through a freshly constructed Session until the connection is closed or
// ctx is cancelled. newSession builds a Session bound to this connection's
// Sender so outbound Call/Notify traffic flows back over the same socket.
func Serve(ctx context.Context, conn net.Conn, limit int, newSession func(sender dispatcher.Sender) *session.Session, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	defer conn.Close()

	c := New(conn, limit)
	sess := newSession(c)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		raw, err := framing.Read(conn, limit)
		if err != nil {
			logger.Debug("stream connection closed", "remote", conn.RemoteAddr(), "error", err)
			_ = sess.ShutdownWithDefaultTimeout(context.Background())
			return
		}

		frame, err := protocol.Classify(raw)
		if err != nil {
			_ = c.SendFrame(ctx, protocol.NewErrorResponse(nil, protocol.CodeParseError, err.Error(), nil))
			continue
		}

		for _, resp := range sess.HandleFrame(ctx, frame) {
			if err := c.SendFrame(ctx, resp); err != nil {
				logger.Warn("failed to write response", "error", err)
				return
			}
		}
	}
}
