package registry

import (
	"context"
	"fmt"
	"sync"

	internalerrors "github.com/jamesprial/mcp-core/internal/errors"
	"github.com/jamesprial/mcp-core/pkg/protocol"
	"github.com/jamesprial/mcp-core/pkg/registry/uritemplate"
)

// ResourceProvider serves a resource or a family of resources identified by
// a URI template.
type ResourceProvider interface {
	// Read retrieves the current content of the resource matching uri. vars
	// carries any variables captured from the provider's URI template.
	Read(ctx context.Context, uri string, vars map[string]string) (*protocol.Resource, error)

	// Definition returns the provider's metadata for client discovery. URI
	// may be a literal URI or a template such as "file:///{path}".
	Definition() protocol.ResourceDefinition
}

// ResourceRegistry is a thread-safe table of resource providers, matched by
// URI template with the most specific match winning (see uritemplate.Best).
type ResourceRegistry struct {
	mu        sync.RWMutex
	providers map[string]ResourceProvider
	templates []*uritemplate.Template
	order     []string
	onChange  func()
}

// NewResourceRegistry returns an empty, ready-to-use ResourceRegistry.
func NewResourceRegistry() *ResourceRegistry {
	return &ResourceRegistry{providers: make(map[string]ResourceProvider)}
}

// Subscribe registers a hook invoked after every successful Register.
func (r *ResourceRegistry) Subscribe(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Register adds a provider under the given URI template.
func (r *ResourceRegistry) Register(uriTemplate string, provider ResourceProvider) error {
	if uriTemplate == "" {
		return internalerrors.New("registry", "Register", internalerrors.ErrBadRequest, fmt.Errorf("resource uri cannot be empty"))
	}
	if provider == nil {
		return internalerrors.New("registry", "Register", internalerrors.ErrBadRequest, fmt.Errorf("resource provider cannot be nil"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[uriTemplate]; exists {
		return internalerrors.New("registry", "Register", internalerrors.ErrBadRequest, fmt.Errorf("resource already registered")).
			WithContext("resource_uri", uriTemplate)
	}

	r.providers[uriTemplate] = provider
	r.templates = append(r.templates, uritemplate.Parse(uriTemplate))
	r.order = append(r.order, uriTemplate)
	if r.onChange != nil {
		r.onChange()
	}
	return nil
}

// Get resolves uri against the registered templates and reads the winning
// provider's content.
func (r *ResourceRegistry) Get(ctx context.Context, uri string) (*protocol.Resource, error) {
	if uri == "" {
		return nil, internalerrors.New("registry", "Get", internalerrors.ErrBadRequest, fmt.Errorf("resource uri cannot be empty"))
	}

	r.mu.RLock()
	tpl, vars, matched := uritemplate.Best(r.templates, uri)
	var provider ResourceProvider
	if matched {
		provider = r.providers[tpl.String()]
	}
	r.mu.RUnlock()

	if !matched {
		return nil, internalerrors.New("registry", "Get", internalerrors.ErrNotFound, protocol.ErrResourceNotFound).
			WithContext("resource_uri", uri)
	}

	res, err := provider.Read(ctx, uri, vars)
	if err != nil {
		return nil, internalerrors.New("registry", "Get", internalerrors.ErrInternal, fmt.Errorf("read resource: %w", err)).
			WithContext("resource_uri", uri)
	}
	return res, nil
}

// List returns resource definitions in registration order.
func (r *ResourceRegistry) List() []protocol.ResourceDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]protocol.ResourceDefinition, 0, len(r.order))
	for _, uri := range r.order {
		defs = append(defs, r.providers[uri].Definition())
	}
	return defs
}
