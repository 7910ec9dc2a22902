// Package server hosts the RPC endpoint: per-request context building,
// the protected-procedure guard, and the HTTP serve loop.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/taskforge/authsync/internal/config"
	"github.com/taskforge/authsync/internal/logger"
	"github.com/taskforge/authsync/internal/provider"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	// shutdownTimeout is the maximum time to wait for server shutdown
	shutdownTimeout = 5 * time.Second
)

// Server is the RPC server instance. Identity is established per
// request by the context builder and enforced by the guard; nothing the
// client claims about its own auth state is trusted here.
type Server struct {
	config   *config.Config
	provider provider.Provider
	handler  http.Handler
}

// NewServer creates a new RPC server over the given provider.
func NewServer(cfg *config.Config, p provider.Provider) *Server {
	if cfg == nil {
		logger.Fatal("Config cannot be nil")
	}
	if p == nil {
		logger.Fatal("Provider cannot be nil")
	}

	srv := &Server{config: cfg, provider: p}

	mux := http.NewServeMux()
	srv.registerProcedures(mux)
	srv.handler = BuildContext(p)(mux)

	return srv
}

// Handler exposes the fully wired handler stack, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start runs the HTTP server until the context is canceled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: s.config.Server.Timeout,
	}

	errChan := make(chan error, 1)

	go func() {
		logger.Info("Starting RPC server",
			zap.String("address", addr),
			zap.String("name", s.config.Server.Name),
			zap.String("version", s.config.Server.Version),
		)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down RPC server",
			zap.Duration("timeout", shutdownTimeout),
		)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil

	case err := <-errChan:
		return err
	}
}

// Module provides the RPC server dependencies
var Module = fx.Module("server",
	fx.Provide(
		NewServer,
	),
)
