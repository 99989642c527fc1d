package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jamesprial/mcp-core/pkg/protocol"
	"github.com/jamesprial/mcp-core/pkg/registry"
	"github.com/jamesprial/mcp-core/pkg/schema"
)

type echoTool struct{}

func (echoTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	return args["message"], nil
}

func (echoTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{
		Name:        "echo",
		Description: "echoes its message argument",
		InputSchema: schema.Build([]schema.Field{
			{Name: "message", Kind: schema.KindString, Required: true},
		}),
	}
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	tools := registry.NewToolRegistry()
	if err := tools.Register("echo", echoTool{}); err != nil {
		t.Fatalf("register tool: %v", err)
	}
	return New(Config{
		ServerInfo: Info{Name: "test-server", Version: "0.0.1"},
		Tools:      tools,
		Schema:     schema.NewGenerator(),
	})
}

func initializeSession(t *testing.T, s *Session) {
	t.Helper()
	req := &protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      int64(1),
		Method:  protocol.MethodInitialize,
		Params: mustMarshal(t, protocol.InitializeParams{
			ProtocolVersion: protocol.ProtocolVersion,
			ClientInfo:      protocol.ClientInfo{Name: "test-client", Version: "1.0"},
		}),
	}
	resp := s.HandleFrame(context.Background(), &protocol.Frame{Request: req})
	if len(resp) != 1 || resp[0].IsError() {
		t.Fatalf("unexpected initialize response: %+v", resp)
	}

	notif := &protocol.Request{JSONRPC: protocol.JSONRPCVersion, Method: protocol.MethodInitialized}
	if out := s.HandleFrame(context.Background(), &protocol.Frame{Request: notif}); out != nil {
		t.Fatalf("expected no response for notification, got %+v", out)
	}

	if s.State() != StateReady {
		t.Fatalf("expected state Ready after handshake, got %v", s.State())
	}
}

func TestSession_HandshakeRequiredBeforeToolsCall(t *testing.T) {
	s := newTestSession(t)

	req := &protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      int64(1),
		Method:  protocol.MethodToolsCall,
		Params:  mustMarshal(t, protocol.ToolsCallParams{Name: "echo", Arguments: map[string]any{"message": "hi"}}),
	}

	resp := s.HandleFrame(context.Background(), &protocol.Frame{Request: req})
	if len(resp) != 1 || !resp[0].IsError() {
		t.Fatalf("expected NotInitialized error before handshake, got %+v", resp)
	}
	if resp[0].Error.Code != protocol.CodeNotInitialized {
		t.Fatalf("got code %d, want %d", resp[0].Error.Code, protocol.CodeNotInitialized)
	}
}

func TestSession_FullHandshakeThenToolsCall(t *testing.T) {
	s := newTestSession(t)
	initializeSession(t, s)

	req := &protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      int64(2),
		Method:  protocol.MethodToolsCall,
		Params:  mustMarshal(t, protocol.ToolsCallParams{Name: "echo", Arguments: map[string]any{"message": "hello"}}),
	}

	resp := s.HandleFrame(context.Background(), &protocol.Frame{Request: req})
	if len(resp) != 1 || resp[0].IsError() {
		t.Fatalf("unexpected tools/call response: %+v", resp)
	}
}

func TestSession_ToolsCallValidatesArguments(t *testing.T) {
	s := newTestSession(t)
	initializeSession(t, s)

	req := &protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      int64(3),
		Method:  protocol.MethodToolsCall,
		Params:  mustMarshal(t, protocol.ToolsCallParams{Name: "echo", Arguments: map[string]any{}}),
	}

	resp := s.HandleFrame(context.Background(), &protocol.Frame{Request: req})
	if len(resp) != 1 || !resp[0].IsError() {
		t.Fatalf("expected validation error for missing required argument, got %+v", resp)
	}
	if resp[0].Error.Code != protocol.CodeInvalidParams {
		t.Fatalf("got code %d, want %d", resp[0].Error.Code, protocol.CodeInvalidParams)
	}
}

func TestSession_DoubleInitializeRejected(t *testing.T) {
	s := newTestSession(t)
	initializeSession(t, s)

	req := &protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      int64(4),
		Method:  protocol.MethodInitialize,
		Params: mustMarshal(t, protocol.InitializeParams{
			ProtocolVersion: protocol.ProtocolVersion,
			ClientInfo:      protocol.ClientInfo{Name: "test-client", Version: "1.0"},
		}),
	}

	resp := s.HandleFrame(context.Background(), &protocol.Frame{Request: req})
	if len(resp) != 1 || !resp[0].IsError() || resp[0].Error.Code != protocol.CodeAlreadyInitialized {
		t.Fatalf("expected AlreadyInitialized error, got %+v", resp)
	}
}

func TestSession_ShutdownDrainsInFlight(t *testing.T) {
	s := newTestSession(t)
	initializeSession(t, s)

	err := s.Shutdown(context.Background())
	if err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
	if s.State() != StateTerminated {
		t.Fatalf("expected Terminated state, got %v", s.State())
	}
}

func TestSession_ShutdownTimesOutOnSlowRequest(t *testing.T) {
	tools := registry.NewToolRegistry()
	_ = tools.Register("slow", slowTool{})
	s := New(Config{
		ServerInfo: Info{Name: "test-server", Version: "0.0.1"},
		Tools:      tools,
		Schema:     schema.NewGenerator(),
	})
	initializeSession(t, s)

	started := make(chan struct{})
	go func() {
		req := &protocol.Request{
			JSONRPC: protocol.JSONRPCVersion,
			ID:      int64(9),
			Method:  protocol.MethodToolsCall,
			Params:  mustMarshal(t, protocol.ToolsCallParams{Name: "slow", Arguments: map[string]any{}}),
		}
		close(started)
		s.HandleFrame(context.Background(), &protocol.Frame{Request: req})
	}()
	<-started
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Shutdown(ctx); err == nil {
		t.Fatal("expected shutdown to time out while the slow tool is in flight")
	}
}

type slowTool struct{}

func (slowTool) Execute(ctx context.Context, args map[string]any) (any, error) {
	time.Sleep(200 * time.Millisecond)
	return "done", nil
}

func (slowTool) Definition() protocol.ToolDefinition {
	return protocol.ToolDefinition{Name: "slow", Description: "sleeps"}
}
