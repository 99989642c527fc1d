// Package session implements the MCP initialize handshake, the
// Created→Initializing→Ready→ShuttingDown→Terminated lifecycle, and graceful
// shutdown draining. It generalizes the teacher's single-shot
// handler.initialized bool and cmd/server/main.go shutdown sequence into a
// full state machine reusable across every transport backing.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jamesprial/mcp-core/pkg/dispatcher"
	"github.com/jamesprial/mcp-core/pkg/mcpcontext"
	"github.com/jamesprial/mcp-core/pkg/middleware"
	"github.com/jamesprial/mcp-core/pkg/protocol"
	"github.com/jamesprial/mcp-core/pkg/registry"
	"github.com/jamesprial/mcp-core/pkg/schema"
)

// State is one point in the session lifecycle.
type State int

const (
	StateCreated State = iota
	StateInitializing
	StateReady
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Info describes the server identity returned during the handshake.
type Info struct {
	Name    string
	Version string
}

// Config wires a Session together.
type Config struct {
	ServerInfo           Info
	Tools                *registry.ToolRegistry
	Resources            *registry.ResourceRegistry
	Prompts              *registry.PromptRegistry
	Schema               *schema.Generator
	Middlewares          []middleware.Middleware
	Logger               *slog.Logger
	Sender               dispatcher.Sender // nil for a server with no outbound calls
	ShutdownDrain        time.Duration     // default 30s per the handshake spec
	ToolsListChanged     bool
	ResourcesListChanged bool
	PromptsListChanged   bool
}

// Session owns one peer connection's lifecycle and routes its traffic
// through a Dispatcher.
type Session struct {
	cfg        Config
	dispatcher *dispatcher.Dispatcher
	logger     *slog.Logger

	mu              sync.Mutex
	state           State
	negotiatedVer   string
	wg              sync.WaitGroup
	shutdownDrain   time.Duration
}

// New builds a Session wired to dispatch the standard MCP method set against
// the supplied registries.
func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ShutdownDrain <= 0 {
		cfg.ShutdownDrain = 30 * time.Second
	}

	d := dispatcher.New(cfg.Sender, cfg.Logger)
	if len(cfg.Middlewares) > 0 {
		d.Use(cfg.Middlewares...)
	}

	s := &Session{
		cfg:           cfg,
		dispatcher:    d,
		logger:        cfg.Logger,
		state:         StateCreated,
		shutdownDrain: cfg.ShutdownDrain,
	}

	s.registerHandlers()

	if cfg.Tools != nil {
		cfg.Tools.Subscribe(func() { s.notifyListChanged(protocol.MethodToolsListChanged, cfg.ToolsListChanged) })
	}
	if cfg.Resources != nil {
		cfg.Resources.Subscribe(func() { s.notifyListChanged(protocol.MethodResourcesListChanged, cfg.ResourcesListChanged) })
	}
	if cfg.Prompts != nil {
		cfg.Prompts.Subscribe(func() { s.notifyListChanged(protocol.MethodPromptsListChanged, cfg.PromptsListChanged) })
	}

	return s
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// HandleFrame routes one decoded inbound frame (request, notification, or
// batch) and returns the Response(s) to send back, if any. It is the entry
// point every Transport backing calls after decoding bytes into a Frame.
func (s *Session) HandleFrame(ctx context.Context, frame *protocol.Frame) []*protocol.Response {
	switch {
	case frame.Request != nil:
		resp := s.handleRequest(ctx, frame.Request)
		if resp == nil {
			return nil
		}
		return []*protocol.Response{resp}
	case frame.Response != nil:
		s.dispatcher.Complete(frame.Response)
		return nil
	case frame.Batch != nil:
		return s.dispatcher.DispatchBatch(ctx, frame.Batch)
	default:
		return nil
	}
}

func (s *Session) handleRequest(ctx context.Context, req *protocol.Request) *protocol.Response {
	ctx = mcpcontext.WithCorrelationID(ctx, req.ID)
	ctx = mcpcontext.WithLogger(ctx, s.logger)

	// Notifications never produce a Response, so the lifecycle gate below
	// (which returns error Responses) must not apply to them — they flow
	// straight to the Dispatcher, which is how notifications/initialized
	// reaches the handler that flips the state to Ready.
	if req.IsNotification() {
		s.wg.Add(1)
		defer s.wg.Done()
		return s.dispatcher.Dispatch(ctx, req)
	}

	state := s.State()

	switch req.Method {
	case protocol.MethodInitialize:
		if state != StateCreated {
			return protocol.NewErrorResponse(req.ID, protocol.CodeAlreadyInitialized, "session already initialized", nil)
		}
		s.setState(StateInitializing)
	case protocol.MethodPing:
		// ping is always answerable, even pre-handshake, for health probing.
	default:
		if state == StateShuttingDown {
			return protocol.NewErrorResponse(req.ID, protocol.CodeRequestCancelled, "session is shutting down", nil)
		}
		if state != StateReady {
			return protocol.NewErrorResponse(req.ID, protocol.CodeNotInitialized, "server not initialized", nil)
		}
	}

	s.wg.Add(1)
	defer s.wg.Done()

	return s.dispatcher.Dispatch(ctx, req)
}

func (s *Session) notifyListChanged(method string, enabled bool) {
	if !enabled || s.cfg.Sender == nil {
		return
	}
	if s.State() != StateReady {
		return
	}
	if err := s.dispatcher.Notify(context.Background(), method, nil); err != nil {
		s.logger.Warn("failed to emit list_changed notification", "method", method, "error", err)
	}
}

// Shutdown stops accepting new inbound requests and waits up to the
// configured drain window for in-flight requests to finish, mirroring the
// teacher's cmd/server/main.go graceful-shutdown sequence generalized from
// "stop the HTTP server" to "stop the session".
func (s *Session) Shutdown(ctx context.Context) error {
	s.setState(StateShuttingDown)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.setState(StateTerminated)
		return nil
	case <-ctx.Done():
		s.setState(StateTerminated)
		return fmt.Errorf("session: shutdown drain window exceeded: %w", ctx.Err())
	}
}

// ShutdownWithDefaultTimeout runs Shutdown bounded by the configured
// ShutdownDrain instead of a caller-supplied context deadline.
func (s *Session) ShutdownWithDefaultTimeout(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, s.shutdownDrain)
	defer cancel()
	return s.Shutdown(ctx)
}

// Dispatcher exposes the underlying Dispatcher so a Transport can deliver
// decoded frames and register a Sender once the connection is established.
func (s *Session) Dispatcher() *dispatcher.Dispatcher { return s.dispatcher }
