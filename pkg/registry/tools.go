// Package registry holds the three thread-safe name-to-handler tables the
// dispatcher consults: tools, resources, and prompts. All three share the
// same locking and listing shape, generalized from a single-purpose tool
// registry into three parallel registries.
package registry

import (
	"context"
	"fmt"
	"sync"

	internalerrors "github.com/jamesprial/mcp-core/internal/errors"
	"github.com/jamesprial/mcp-core/pkg/protocol"
)

// Tool is an executable MCP tool.
type Tool interface {
	// Execute runs the tool with the given arguments. ctx carries
	// cancellation, the correlation id, and the auth identity.
	Execute(ctx context.Context, args map[string]any) (any, error)

	// Definition returns the tool's metadata for client discovery.
	Definition() protocol.ToolDefinition
}

// ToolRegistry is a thread-safe, insertion-ordered table of registered tools.
type ToolRegistry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	order   []string
	onChange func()
}

// NewToolRegistry returns an empty, ready-to-use ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Subscribe registers a hook invoked after every successful mutation
// (Register). Session uses this to fire tools/list_changed notifications
// when the negotiated capability enables it.
func (r *ToolRegistry) Subscribe(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Register adds a tool under name. Registration is idempotent-by-name: a
// second registration under the same name fails rather than overwriting.
func (r *ToolRegistry) Register(name string, tool Tool) error {
	if name == "" {
		return internalerrors.New("registry", "Register", internalerrors.ErrBadRequest, fmt.Errorf("tool name cannot be empty"))
	}
	if tool == nil {
		return internalerrors.New("registry", "Register", internalerrors.ErrBadRequest, fmt.Errorf("tool cannot be nil"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return internalerrors.New("registry", "Register", internalerrors.ErrBadRequest, fmt.Errorf("tool already registered")).
			WithContext("tool_name", name)
	}

	r.tools[name] = tool
	r.order = append(r.order, name)
	if r.onChange != nil {
		r.onChange()
	}
	return nil
}

// Get retrieves a tool by name.
func (r *ToolRegistry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	if !exists {
		return nil, internalerrors.New("registry", "Get", internalerrors.ErrNotFound, protocol.ErrToolNotFound).
			WithContext("tool_name", name)
	}
	return tool, nil
}

// List returns tool definitions in registration order. The returned slice is
// a snapshot safe for concurrent use.
func (r *ToolRegistry) List() []protocol.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]protocol.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition())
	}
	return defs
}
