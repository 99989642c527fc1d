// Package middleware generalizes the teacher's http.Handler middleware chain
// down to the dispatch layer, so the same pre/post hooks apply to every
// inbound request regardless of which Transport backing delivered it.
package middleware

import (
	"context"
	"encoding/json"

	"github.com/jamesprial/mcp-core/pkg/protocol"
)

// Next is the remainder of the chain (eventually the registered Handler).
type Next func(ctx context.Context, method string, params json.RawMessage) (any, error)

// Middleware wraps Next with pre/post behavior. A middleware may
// short-circuit by returning without calling next.
type Middleware func(next Next) Next

// Chain composes middlewares so the first one registered is the outermost
// layer (runs first on the way in, last on the way out) — the same ordering
// rule the teacher's router.applyMiddleware documents and implements by
// folding from the end of the slice.
func Chain(middlewares ...Middleware) Middleware {
	return func(final Next) Next {
		wrapped := final
		for i := len(middlewares) - 1; i >= 0; i-- {
			wrapped = middlewares[i](wrapped)
		}
		return wrapped
	}
}

// ErrorWithCode lets a middleware reject a request with a specific JSON-RPC
// error code without reaching into internal/errors.
type ErrorWithCode struct {
	Code    int
	Message string
	Data    any
}

func (e *ErrorWithCode) Error() string { return e.Message }

// ToProtocolError projects an ErrorWithCode into a wire *protocol.Error.
func ToProtocolError(err error) *protocol.Error {
	if ewc, ok := err.(*ErrorWithCode); ok {
		return protocol.NewError(ewc.Code, ewc.Message, ewc.Data)
	}
	return protocol.NewError(protocol.CodeInternalError, err.Error(), nil)
}
