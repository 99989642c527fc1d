package middleware

import (
	"context"
	"encoding/json"

	"github.com/jamesprial/mcp-core/internal/oauth"
	"github.com/jamesprial/mcp-core/pkg/mcpcontext"
)

// NewAuthMiddleware is the one concrete, swappable implementation of the
// spec's auth identity hook: it validates the bearer token a transport
// backing attached to the request context, and — on success — installs the
// resulting claims as the request's mcpcontext Identity. It generalizes the
// teacher's HTTP-layer OAuth middleware down to the dispatch layer so it
// applies uniformly regardless of which transport delivered the frame.
//
// Scope enforcement is delegated to the pluggable checker port rather than
// hand-rolled here, so a deployment can swap in its own "all required" vs.
// "any of" policy without touching this middleware. checker may be nil when
// no scopes are required; with requiredScopes empty (cmd/server's case when
// OAUTH_REQUIRED_SCOPES is unset) the checker is not consulted at all.
func NewAuthMiddleware(validator oauth.TokenValidator, checker oauth.ScopeChecker, requiredScopes ...string) Middleware {
	return func(next Next) Next {
		return func(ctx context.Context, method string, params json.RawMessage) (any, error) {
			token, ok := mcpcontext.BearerToken(ctx)
			if !ok || token == "" {
				return nil, &ErrorWithCode{Code: unauthorizedCode, Message: "missing bearer token"}
			}

			claims, err := validator.ValidateToken(ctx, token)
			if err != nil {
				return nil, &ErrorWithCode{Code: unauthorizedCode, Message: "invalid bearer token: " + err.Error()}
			}

			if len(requiredScopes) > 0 && checker != nil {
				if err := checker.RequireScopes(claims, requiredScopes...); err != nil {
					return nil, &ErrorWithCode{Code: forbiddenCode, Message: "insufficient scope: " + err.Error()}
				}
			}

			ctx = mcpcontext.WithIdentity(ctx, claims)
			return next(ctx, method, params)
		}
	}
}

// unauthorizedCode and forbiddenCode mirror internal/errors.KindToJSONRPCCode
// for ErrUnauthorized/ErrForbidden; duplicated here as constants rather than
// imported to keep pkg/middleware free of a dependency on internal/errors'
// domain-error machinery, which this narrow port does not need.
const (
	unauthorizedCode = -32001
	forbiddenCode    = -32001
)
