package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/caskfs/caskfs/internal/logger"
	"github.com/caskfs/caskfs/pkg/registry"
)

// Server provides the loopback HTTP control API.
//
// The server exposes health endpoints and the vault management API the CLI
// talks to. It binds to 127.0.0.1 only and supports graceful shutdown.
type Server struct {
	server       *http.Server
	config       Config
	shutdownOnce sync.Once
}

// NewServer creates a new control API server.
//
// The server is created in a stopped state; call Start to begin serving.
// Defaults are applied here so the server also works when constructed
// directly in tests.
func NewServer(config Config, reg *registry.Registry) *Server {
	config.applyDefaults()

	server := &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", config.Port),
		Handler:      NewRouter(reg),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return &Server{
		server: server,
		config: config,
	}
}

// Start starts the API server and blocks until the context is cancelled or
// an error occurs. Cancellation triggers graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Control API listening", "addr", s.server.Addr)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
				// Context was cancelled, error is not needed
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Control API shutdown signal received")
		// Don't reuse the cancelled ctx; it would abort the graceful drain.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("control API failed: %w", err)
	}
}

// Stop initiates graceful shutdown. Safe to call multiple times and
// concurrently with Start.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("Control API shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("control API shutdown error: %w", err)
			logger.Error("Control API shutdown error", "error", err)
		} else {
			logger.Info("Control API stopped gracefully")
		}
	})
	return shutdownErr
}

// Port returns the TCP port the server is configured on.
func (s *Server) Port() int {
	return s.config.Port
}
