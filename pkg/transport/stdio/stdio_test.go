package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jamesprial/mcp-core/pkg/dispatcher"
	"github.com/jamesprial/mcp-core/pkg/protocol"
	"github.com/jamesprial/mcp-core/pkg/registry"
	"github.com/jamesprial/mcp-core/pkg/session"
)

// syncBuffer guards a bytes.Buffer so the test goroutine can poll it safely
// while the transport writes responses concurrently.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(b)
}

func (s *syncBuffer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

func (s *syncBuffer) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buf.Bytes()...)
}

func newSessionFactory(tools *registry.ToolRegistry) func(sender dispatcher.Sender) *session.Session {
	return func(sender dispatcher.Sender) *session.Session {
		return session.New(session.Config{
			ServerInfo: session.Info{Name: "test", Version: "0.0.1"},
			Tools:      tools,
			Sender:     sender,
		})
	}
}

// pipeInput lets the test feed lines into the transport's Start loop while
// controlling when EOF arrives, since bufio.Scanner on a plain bytes.Reader
// would see the whole input immediately.
type pipeInput struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func newPipeInput() *pipeInput {
	r, w := io.Pipe()
	return &pipeInput{r: r, w: w}
}

func (p *pipeInput) Read(b []byte) (int, error) { return p.r.Read(b) }

func TestTransport_InitializeRoundTrip(t *testing.T) {
	tools := registry.NewToolRegistry()
	in := newPipeInput()
	out := &syncBuffer{}

	tr := New(in, out, newSessionFactory(tools), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- tr.Start(ctx) }()

	req := protocol.Request{JSONRPC: protocol.JSONRPCVersion, ID: int64(1), Method: protocol.MethodInitialize,
		Params: json.RawMessage(`{"protocolVersion":"` + protocol.ProtocolVersion + `"}`)}
	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := in.w.Write(append(raw, '\n')); err != nil {
		t.Fatalf("write request line: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for out.Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if out.Len() == 0 {
		t.Fatal("transport produced no output")
	}

	scanner := bufio.NewScanner(bytes.NewReader(out.Bytes()))
	if !scanner.Scan() {
		t.Fatalf("no response line: %v", scanner.Err())
	}
	var resp protocol.Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.IsError() {
		t.Fatalf("unexpected error response: %+v", resp.Error)
	}

	in.w.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after input closed")
	}
}

func TestTransport_Addr(t *testing.T) {
	tools := registry.NewToolRegistry()
	tr := New(bytes.NewReader(nil), &bytes.Buffer{}, newSessionFactory(tools), nil)
	if tr.Addr() != "stdio" {
		t.Fatalf("expected Addr() == stdio, got %q", tr.Addr())
	}
}
