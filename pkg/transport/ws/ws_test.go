package ws

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"

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

func TestTransport_InitializeRoundTrip(t *testing.T) {
	tools := registry.NewToolRegistry()
	tr := New("127.0.0.1:0", "/mcp", newSessionFactory(tools), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	go func() {
		close(started)
		_ = tr.Start(ctx)
	}()
	<-started

	var conn *websocket.Conn
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		addr := tr.Addr()
		if addr != "127.0.0.1:0" {
			u := url.URL{Scheme: "ws", Host: addr, Path: "/mcp"}
			conn, _, err = websocket.DefaultDialer.Dial(u.String(), nil)
			if err == nil {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	if conn == nil {
		t.Fatalf("failed to dial transport: %v", err)
	}
	defer conn.Close()

	req := protocol.Request{JSONRPC: protocol.JSONRPCVersion, ID: int64(1), Method: protocol.MethodInitialize,
		Params: json.RawMessage(`{"protocolVersion":"` + protocol.ProtocolVersion + `"}`)}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write request: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read response: %v", err)
	}

	var resp protocol.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.IsError() {
		t.Fatalf("unexpected error response: %+v", resp.Error)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shutdownCancel()
	if err := tr.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
