package registry

import (
	"context"
	"fmt"
	"strings"
	"sync"

	internalerrors "github.com/jamesprial/mcp-core/internal/errors"
	"github.com/jamesprial/mcp-core/pkg/protocol"
)

// PromptProvider renders a named prompt template into one or more messages.
type PromptProvider interface {
	// Render substitutes arguments into the prompt template and returns the
	// resulting messages.
	Render(ctx context.Context, args map[string]string) (*protocol.PromptsGetResult, error)

	// Definition returns the prompt's metadata for client discovery.
	Definition() protocol.PromptDefinition
}

// PromptRegistry is a thread-safe, insertion-ordered table of prompts.
type PromptRegistry struct {
	mu       sync.RWMutex
	prompts  map[string]PromptProvider
	order    []string
	onChange func()
}

// NewPromptRegistry returns an empty, ready-to-use PromptRegistry.
func NewPromptRegistry() *PromptRegistry {
	return &PromptRegistry{prompts: make(map[string]PromptProvider)}
}

// Subscribe registers a hook invoked after every successful Register.
func (r *PromptRegistry) Subscribe(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Register adds a prompt under name.
func (r *PromptRegistry) Register(name string, prompt PromptProvider) error {
	if name == "" {
		return internalerrors.New("registry", "Register", internalerrors.ErrBadRequest, fmt.Errorf("prompt name cannot be empty"))
	}
	if prompt == nil {
		return internalerrors.New("registry", "Register", internalerrors.ErrBadRequest, fmt.Errorf("prompt cannot be nil"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.prompts[name]; exists {
		return internalerrors.New("registry", "Register", internalerrors.ErrBadRequest, fmt.Errorf("prompt already registered")).
			WithContext("prompt_name", name)
	}

	r.prompts[name] = prompt
	r.order = append(r.order, name)
	if r.onChange != nil {
		r.onChange()
	}
	return nil
}

// Get retrieves a prompt by name.
func (r *PromptRegistry) Get(name string) (PromptProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prompt, exists := r.prompts[name]
	if !exists {
		return nil, internalerrors.New("registry", "Get", internalerrors.ErrNotFound, protocol.ErrPromptNotFound).
			WithContext("prompt_name", name)
	}
	return prompt, nil
}

// List returns prompt definitions in registration order.
func (r *PromptRegistry) List() []protocol.PromptDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]protocol.PromptDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.prompts[name].Definition())
	}
	return defs
}

// SubstituteTemplate replaces "{{name}}" placeholders in template with the
// matching entries from args, left untouched if an argument is missing.
func SubstituteTemplate(template string, args map[string]string) string {
	out := template
	for name, value := range args {
		out = strings.ReplaceAll(out, "{{"+name+"}}", value)
	}
	return out
}
