package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jamesprial/mcp-core/pkg/mcpcontext"
)

// NewLoggingMiddleware logs method, duration, and outcome for every inbound
// dispatch, generalizing the teacher's HTTP request logger from
// method/path/status down to method/error at the dispatch layer.
func NewLoggingMiddleware(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}

	return func(next Next) Next {
		return func(ctx context.Context, method string, params json.RawMessage) (any, error) {
			start := time.Now()
			result, err := next(ctx, method, params)
			duration := time.Since(start)

			log := mcpcontext.Logger(ctx)
			if log == slog.Default() {
				log = logger
			}

			if err != nil {
				log.Warn("dispatch failed", "method", method, "duration_ms", duration.Milliseconds(), "error", err)
			} else {
				log.Info("dispatch ok", "method", method, "duration_ms", duration.Milliseconds())
			}
			return result, err
		}
	}
}
