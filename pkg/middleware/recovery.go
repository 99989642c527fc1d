package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/jamesprial/mcp-core/pkg/protocol"
)

// NewRecoveryMiddleware recovers a panicking handler and turns it into an
// internal-error Response instead of taking down the whole dispatch loop,
// generalizing the teacher's HTTP panic recovery middleware.
func NewRecoveryMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next Next) (result Next) {
		return func(ctx context.Context, method string, params json.RawMessage) (value any, err error) {
			defer func() {
				if recovered := recover(); recovered != nil {
					logger.Error("panic recovered",
						"method", method,
						"panic", recovered,
						"stack", string(debug.Stack()),
					)
					err = &ErrorWithCode{
						Code:    protocol.CodeInternalError,
						Message: fmt.Sprintf("internal error: %v", recovered),
					}
				}
			}()
			return next(ctx, method, params)
		}
	}
}
