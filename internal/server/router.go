// Package server provides HTTP server setup for the sync status surface.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/telhawk-systems/reportsync/common/logging"
	"github.com/telhawk-systems/reportsync/common/middleware"
	"github.com/telhawk-systems/reportsync/internal/config"
	"github.com/telhawk-systems/reportsync/internal/handlers"
)

// NewRouter constructs a ServeMux with the status API routes registered.
// Cross-origin reads are allowed only from corsOrigins; none disables CORS.
func NewRouter(h *handlers.Handler, logger *logging.Logger, corsOrigins []string) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoints
	mux.HandleFunc("/healthz", h.HealthCheck)
	mux.HandleFunc("/readyz", h.ReadyCheck)
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/api/v1/sync/status", h.Status)
	mux.HandleFunc("/api/v1/sync/runs", h.Runs)
	mux.HandleFunc("/api/v1/sync/trigger", h.Trigger)

	var handler http.Handler = mux
	if len(corsOrigins) > 0 {
		handler = cors.New(cors.Options{
			AllowedOrigins:   corsOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
			ExposedHeaders:   []string{middleware.RequestIDHeader},
			AllowCredentials: false,
			MaxAge:           300,
		}).Handler(mux)
	}

	return middleware.RequestID(middleware.AccessLog(logger.Logger)(handler))
}

// Server is the status HTTP server.
type Server struct {
	srv             *http.Server
	logger          *logging.Logger
	shutdownTimeout time.Duration
}

// New creates a Server from the server section of the config.
func New(cfg config.ServerConfig, handler http.Handler, logger *logging.Logger) *Server {
	shutdown := cfg.WriteTimeout
	if shutdown <= 0 {
		shutdown = 10 * time.Second
	}
	return &Server{
		srv: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		logger:          logger,
		shutdownTimeout: shutdown,
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.srv.Addr
}

// Run serves until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.InfoContext(ctx, "status server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("status server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down status server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown status server: %w", err)
	}
	return nil
}
