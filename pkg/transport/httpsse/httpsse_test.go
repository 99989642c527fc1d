package httpsse

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/andybalholm/brotli"

	"github.com/jamesprial/mcp-core/pkg/dispatcher"
	"github.com/jamesprial/mcp-core/pkg/protocol"
	"github.com/jamesprial/mcp-core/pkg/registry"
	"github.com/jamesprial/mcp-core/pkg/session"
)

func newSessionFactory(tools *registry.ToolRegistry) func(sender dispatcher.Sender) *session.Session {
	return func(sender dispatcher.Sender) *session.Session {
		return session.New(session.Config{
			ServerInfo: session.Info{Name: "test", Version: "0.0.1"},
			Tools:      tools,
			Sender:     sender,
		})
	}
}

func startTransport(t *testing.T) *Transport {
	t.Helper()
	tools := registry.NewToolRegistry()
	tr := New(Config{Addr: "127.0.0.1:0", NewSession: newSessionFactory(tools)})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	started := make(chan struct{})
	go func() {
		close(started)
		_ = tr.Start(ctx)
	}()
	<-started

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if tr.Addr() != "127.0.0.1:0" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Cleanup(func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer shutdownCancel()
		_ = tr.Shutdown(shutdownCtx)
	})

	return tr
}

func TestTransport_InitializeAssignsSessionID(t *testing.T) {
	tr := startTransport(t)

	req := protocol.Request{JSONRPC: protocol.JSONRPCVersion, ID: int64(1), Method: protocol.MethodInitialize,
		Params: json.RawMessage(`{"protocolVersion":"` + protocol.ProtocolVersion + `"}`)}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	resp, err := http.Post("http://"+tr.Addr()+"/mcp", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	sessionID := resp.Header.Get(sessionHeader)
	if sessionID == "" {
		t.Fatal("expected Mcp-Session-Id header on initialize response")
	}

	var rpcResp protocol.Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rpcResp.IsError() {
		t.Fatalf("unexpected error response: %+v", rpcResp.Error)
	}
}

func TestTransport_UnknownSessionRejected(t *testing.T) {
	tr := startTransport(t)

	req := protocol.Request{JSONRPC: protocol.JSONRPCVersion, ID: int64(1), Method: protocol.MethodPing}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	httpReq, err := http.NewRequest(http.MethodPost, "http://"+tr.Addr()+"/mcp", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	httpReq.Header.Set(sessionHeader, "does-not-exist")

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp protocol.Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !rpcResp.IsError() {
		t.Fatal("expected error response for unknown session id")
	}
}

func TestTransport_SSEDeliversServerNotification(t *testing.T) {
	tr := startTransport(t)

	req := protocol.Request{JSONRPC: protocol.JSONRPCVersion, ID: int64(1), Method: protocol.MethodInitialize,
		Params: json.RawMessage(`{"protocolVersion":"` + protocol.ProtocolVersion + `"}`)}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	resp, err := http.Post("http://"+tr.Addr()+"/mcp", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	sessionID := resp.Header.Get(sessionHeader)
	resp.Body.Close()
	if sessionID == "" {
		t.Fatal("expected session id")
	}

	sseReq, err := http.NewRequest(http.MethodGet, "http://"+tr.Addr()+"/mcp", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	sseReq.Header.Set(sessionHeader, sessionID)

	sseCtx, sseCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer sseCancel()
	sseReq = sseReq.WithContext(sseCtx)

	sseResp, err := http.DefaultClient.Do(sseReq)
	if err != nil {
		t.Fatalf("sse request: %v", err)
	}
	defer sseResp.Body.Close()

	t.Cleanup(func() {
		tr.sessMu.Lock()
		hs := tr.sessions[sessionID]
		tr.sessMu.Unlock()
		if hs != nil {
			_ = hs.sess
		}
	})

	tr.sessMu.Lock()
	hs := tr.sessions[sessionID]
	tr.sessMu.Unlock()
	if hs == nil {
		t.Fatal("session not registered")
	}

	go func() {
		_ = hs.SendFrame(context.Background(), protocol.NewResponse(int64(99), "push"))
	}()

	scanner := bufio.NewScanner(sseResp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: ") {
			if strings.Contains(line, "push") {
				return
			}
		}
	}
	t.Fatal("did not observe pushed event over SSE stream")
}

func TestWriteSSEEvent_SmallPayloadUncompressed(t *testing.T) {
	var buf bytes.Buffer
	if err := writeSSEEvent(&buf, []byte(`{"small":true}`), true); err != nil {
		t.Fatalf("writeSSEEvent: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "data: {") {
		t.Fatalf("expected plain data line for small payload, got %q", buf.String())
	}
}

func TestWriteSSEEvent_LargePayloadBrotliCompressed(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), brotliThreshold+1)

	var buf bytes.Buffer
	if err := writeSSEEvent(&buf, payload, true); err != nil {
		t.Fatalf("writeSSEEvent: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "event: br\ndata: ") {
		t.Fatalf("expected br-framed event, got %q", out[:min(40, len(out))])
	}

	encoded := strings.TrimSuffix(strings.TrimPrefix(out, "event: br\ndata: "), "\n\n")
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}

	decompressed, err := io.ReadAll(brotli.NewReader(bytes.NewReader(raw)))
	if err != nil {
		t.Fatalf("brotli decompress: %v", err)
	}
	if !bytes.Equal(decompressed, payload) {
		t.Fatal("decompressed payload does not match original")
	}
}

func TestWriteSSEEvent_ClientWithoutBrotliSupportGetsPlainText(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), brotliThreshold+1)

	var buf bytes.Buffer
	if err := writeSSEEvent(&buf, payload, false); err != nil {
		t.Fatalf("writeSSEEvent: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "data: ") {
		t.Fatal("expected plain data line when client does not advertise br support")
	}
}
