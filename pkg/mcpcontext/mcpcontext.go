// Package mcpcontext carries the per-request ambient values the dispatch
// core threads through every handler call: a correlation id, a logger, an
// auth identity populated by the pluggable auth middleware, and a progress
// emitter. It follows the same context-key idiom the teacher's transport
// layer uses for OAuth claims, generalized beyond just auth.
package mcpcontext

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jamesprial/mcp-core/pkg/protocol"
)

type contextKey string

const (
	correlationKey contextKey = "mcp_correlation_id"
	loggerKey      contextKey = "mcp_logger"
	identityKey    contextKey = "mcp_identity"
	progressKey    contextKey = "mcp_progress_emitter"
	bearerKey      contextKey = "mcp_bearer_token"
)

// Identity is the auth middleware port's output: whatever the active
// authentication collaborator determined about the caller. The dispatch
// core treats it as opaque; concrete middlewares (e.g. the OAuth bearer
// validator) populate it and handlers type-assert to their own claims type.
type Identity any

// ProgressFunc reports incremental progress for a long-running tool call
// back to the client via notifications/progress, keyed by the progress
// token the caller supplied in _meta.progressToken.
type ProgressFunc func(progress, total float64)

// WithCorrelationID attaches id, generating a random one via google/uuid
// when the inbound frame carried no JSON-RPC id (e.g. a notification that
// still needs a log-correlatable identifier).
func WithCorrelationID(ctx context.Context, id any) context.Context {
	if id == nil {
		id = uuid.NewString()
	}
	return context.WithValue(ctx, correlationKey, id)
}

// CorrelationID returns the correlation id attached to ctx, or nil.
func CorrelationID(ctx context.Context) any {
	return ctx.Value(correlationKey)
}

// WithLogger attaches a *slog.Logger, pre-bound with the correlation id when
// one is present, so every log line a handler emits is traceable to its
// request without the handler doing so manually.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		logger = slog.Default()
	}
	if id := CorrelationID(ctx); id != nil {
		logger = logger.With("correlation_id", id)
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// Logger returns the logger attached to ctx, falling back to slog.Default.
func Logger(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithIdentity attaches the auth identity the middleware port resolved for
// this request.
func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFrom returns the identity attached to ctx, and whether one was present.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	v := ctx.Value(identityKey)
	return v, v != nil
}

// WithBearerToken attaches the raw bearer token a transport backing
// extracted from its own framing (an HTTP Authorization header, a WebSocket
// handshake header, ...), so the auth middleware can validate it without
// any transport-specific knowledge.
func WithBearerToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, bearerKey, token)
}

// BearerToken returns the bearer token attached to ctx, and whether one was
// present.
func BearerToken(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(bearerKey).(string)
	return v, ok
}

// WithProgress attaches a ProgressFunc a tool handler can call to report
// incremental progress.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey, fn)
}

// EmitProgress reports progress via the ProgressFunc attached to ctx, if
// any. Calling it when no progress token was supplied is a silent no-op,
// since the client never asked to be notified.
func EmitProgress(ctx context.Context, progress, total float64) {
	if fn, ok := ctx.Value(progressKey).(ProgressFunc); ok && fn != nil {
		fn(progress, total)
	}
}

// Cancelled reports ctx's cancellation error if its token has already been
// signaled, or nil otherwise. A handler doing long-running or iterative work
// calls it at its own cancellation points to bail out with the dispatcher's
// recognized cancellation error instead of hand-rolling a ctx.Done() check
// and propagating ctx.Err() itself; the dispatcher maps it to the wire
// Request Cancelled error regardless of which cancellation point returned it.
func Cancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// NewProgressEmitter builds a ProgressFunc that sends notifications/progress
// frames for the given token through send.
func NewProgressEmitter(ctx context.Context, send func(ctx context.Context, method string, params any) error, token any) ProgressFunc {
	return func(progress, total float64) {
		_ = send(ctx, protocol.MethodProgress, protocol.ProgressParams{
			ProgressToken: token,
			Progress:      progress,
			Total:         total,
		})
	}
}
