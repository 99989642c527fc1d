// Package main provides the entry point for the MCP server. It wires
// together the protocol, registry, dispatcher, session, and transport
// layers using dependency injection and manages the server lifecycle with
// graceful shutdown.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jamesprial/mcp-core/internal/config"
	"github.com/jamesprial/mcp-core/internal/oauth"
	"github.com/jamesprial/mcp-core/pkg/dispatcher"
	"github.com/jamesprial/mcp-core/pkg/middleware"
	"github.com/jamesprial/mcp-core/pkg/registry"
	"github.com/jamesprial/mcp-core/pkg/schema"
	"github.com/jamesprial/mcp-core/pkg/session"
	"github.com/jamesprial/mcp-core/pkg/transport"
	"github.com/jamesprial/mcp-core/pkg/transport/httpsse"
	"github.com/jamesprial/mcp-core/pkg/transport/stdio"
	"github.com/jamesprial/mcp-core/pkg/transport/tcp"
	"github.com/jamesprial/mcp-core/pkg/transport/tlstransport"
	"github.com/jamesprial/mcp-core/pkg/transport/unixsock"
	"github.com/jamesprial/mcp-core/pkg/transport/ws"
)

const (
	serverName    = "mcp-core"
	serverVersion = "1.0.0"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	slog.Info("server configuration loaded",
		"transport", cfg.Transport,
		"addr", cfg.Addr,
	)

	toolRegistry := registry.NewToolRegistry()
	resourceRegistry := registry.NewResourceRegistry()
	promptRegistry := registry.NewPromptRegistry()
	schemaGenerator := schema.NewGenerator()

	middlewares := []middleware.Middleware{
		middleware.NewRecoveryMiddleware(logger),
		middleware.NewLoggingMiddleware(logger),
	}
	if requiresBearerAuth(cfg.Transport) {
		oauthCfg := &oauth.Config{
			BaseURL:              cfg.BaseURL,
			AuthorizationServers: cfg.AuthorizationServers,
			Audience:             cfg.Audience,
			ScopesSupported:      cfg.ScopesSupported,
			JWKSCacheTTL:         cfg.JWKSCacheTTL,
			ClockSkew:            cfg.ClockSkew,
		}
		tokenValidator, scopeChecker, _ := oauth.NewOAuthServices(oauthCfg)
		middlewares = append(middlewares, middleware.NewAuthMiddleware(tokenValidator, scopeChecker, cfg.RequiredScopes...))
		slog.Info("bearer auth middleware enabled", "audience", cfg.Audience, "required_scopes", cfg.RequiredScopes)
	}

	newSession := func(sender dispatcher.Sender) *session.Session {
		return session.New(session.Config{
			ServerInfo:    session.Info{Name: serverName, Version: serverVersion},
			Tools:         toolRegistry,
			Resources:     resourceRegistry,
			Prompts:       promptRegistry,
			Schema:        schemaGenerator,
			Middlewares:   middlewares,
			Logger:        logger,
			Sender:        sender,
			ShutdownDrain: cfg.ShutdownDrainWindow,

			ToolsListChanged:     true,
			ResourcesListChanged: true,
			PromptsListChanged:   true,
		})
	}

	backing, err := buildTransport(cfg, newSession, logger)
	if err != nil {
		log.Fatalf("failed to build transport: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErrCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "transport", cfg.Transport, "addr", backing.Addr())
		if err := backing.Start(ctx); err != nil {
			serverErrCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping server gracefully...")
	case err := <-serverErrCh:
		slog.Error("server error", "error", err)
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := backing.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped successfully")
}

// requiresBearerAuth reports whether the selected transport carries bearer
// tokens the way the auth middleware expects (an Authorization header or
// equivalent), matching internal/config.requiresHTTPValidation's scoping of
// the OAuth bridge to HTTP-shaped transports.
func requiresBearerAuth(transportName string) bool {
	return transportName == "http" || transportName == "ws" || transportName == ""
}

func buildTransport(cfg *config.Config, newSession func(sender dispatcher.Sender) *session.Session, logger *slog.Logger) (transport.Transport, error) {
	switch cfg.Transport {
	case "", "http":
		return httpsse.New(httpsse.Config{
			Addr:         cfg.Addr,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
			NewSession:   newSession,
			Logger:       logger,
		}), nil
	case "ws":
		return ws.New(cfg.Addr, "/mcp", newSession, logger), nil
	case "tcp":
		return tcp.New(cfg.TCPAddr, cfg.FrameSizeLimit, newSession, logger), nil
	case "tls":
		return tlstransport.New(cfg.TCPAddr, cfg.TLSCertFile, cfg.TLSKeyFile, cfg.FrameSizeLimit, newSession, logger), nil
	case "unix":
		return unixsock.New(cfg.UnixSocketPath, cfg.FrameSizeLimit, newSession, logger), nil
	case "stdio":
		return stdio.New(os.Stdin, os.Stdout, newSession, logger), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
