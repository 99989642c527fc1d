// Package stdio implements the MCP transport over the process's standard
// input and output: one newline-delimited JSON value per line, matching the
// framing most MCP stdio clients speak. It keeps the pack's stdio
// transport's read/write-loop shape (a buffered reader feeding a dispatch
// step, a buffered writer flushed per response) but replaces its
// brace-counting read loop with bufio.Scanner, since the wire format here is
// newline-delimited rather than bare concatenated JSON values.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/jamesprial/mcp-core/pkg/dispatcher"
	"github.com/jamesprial/mcp-core/pkg/protocol"
	"github.com/jamesprial/mcp-core/pkg/session"
)

const maxLineSize = 16 * 1024 * 1024

// Transport serves a single MCP session over stdin/stdout. Unlike the
// socket-based backings, stdio carries exactly one session for the
// lifetime of the process.
type Transport struct {
	in     io.Reader
	out    io.Writer
	logger *slog.Logger

	sender *sender
	sess   *session.Session

	done chan struct{}
}

type sender struct {
	w       *bufio.Writer
	writeMu sync.Mutex
}

func (s *sender) SendFrame(ctx context.Context, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("stdio: marshal frame: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.w.Write(raw); err != nil {
		return fmt.Errorf("stdio: write frame: %w", err)
	}
	if err := s.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("stdio: write newline: %w", err)
	}
	return s.w.Flush()
}

var _ dispatcher.Sender = (*sender)(nil)

// New builds a stdio Transport reading from in and writing to out.
// newSession is invoked once, at Start, with the Transport's own Sender.
func New(in io.Reader, out io.Writer, newSession func(sender dispatcher.Sender) *session.Session, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Transport{in: in, out: out, logger: logger, done: make(chan struct{})}
	t.sender = &sender{w: bufio.NewWriter(out)}
	t.sess = newSession(t.sender)
	return t
}

// Start reads newline-delimited JSON frames from stdin until EOF, context
// cancellation, or a fatal write error, dispatching each through the
// Session and writing back any responses.
func (t *Transport) Start(ctx context.Context) error {
	defer close(t.done)

	scanner := bufio.NewScanner(t.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		frame, err := protocol.Classify(append([]byte(nil), line...))
		if err != nil {
			if sendErr := t.sender.SendFrame(ctx, protocol.NewErrorResponse(nil, protocol.CodeParseError, err.Error(), nil)); sendErr != nil {
				return fmt.Errorf("stdio: %w", sendErr)
			}
			continue
		}

		for _, resp := range t.sess.HandleFrame(ctx, frame) {
			if sendErr := t.sender.SendFrame(ctx, resp); sendErr != nil {
				return fmt.Errorf("stdio: %w", sendErr)
			}
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stdio: read: %w", err)
	}
	return nil
}

// Shutdown drains the session, then waits for Start to return. Since stdio
// has no listener to close, Start only returns once stdin reaches EOF or the
// ctx passed to Start is cancelled.
func (t *Transport) Shutdown(ctx context.Context) error {
	if err := t.sess.ShutdownWithDefaultTimeout(ctx); err != nil {
		return fmt.Errorf("stdio: shutdown: %w", err)
	}
	select {
	case <-t.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Addr returns "stdio", since there is no network address to report.
func (t *Transport) Addr() string {
	return "stdio"
}
