// Package transport defines the common lifecycle every backing (stdio,
// httpsse, ws, tcp, tls, unix) implements, generalizing the teacher's
// transportcore.Server interface beyond HTTP.
package transport

import "context"

// Transport manages one backing's listen/serve lifecycle. It mirrors the
// teacher's transportcore.Server shape (Start/Shutdown/Addr) so
// cmd/server/main.go can wire any backing the same way the teacher wired
// its single HTTP server.
type Transport interface {
	// Start begins serving on the configured address or stream. It blocks
	// until Shutdown is called or an unrecoverable error occurs.
	Start(ctx context.Context) error

	// Shutdown stops accepting new connections/frames and waits for
	// in-flight work to finish or ctx to expire.
	Shutdown(ctx context.Context) error

	// Addr reports the address this backing is listening on; stdio, which
	// has no network address, reports "stdio".
	Addr() string
}
