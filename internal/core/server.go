// Package core provides the HTTP chassis for the SiteScore API: the chi
// router, the global middleware chain, the JSON response envelope and request
// validation. Domain handlers plug in through RouteRegistrars.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"sitescore/internal/config"
)

// Server holds the dependencies shared by every request.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   MetricsCollector

	HealthProbes    []HealthProbe
	RouteRegistrars []RouteRegistrar

	// Closers run in order on Shutdown (database pool, telemetry flush).
	Closers []func(ctx context.Context) error

	router *chi.Mux
}

// NewServer creates a Server with an empty router. Callers set probes and
// registrars, then call MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown runs the registered closers. Every closer runs even if an earlier
// one fails; the first error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var firstErr error
	for _, closeFn := range s.Closers {
		if err := closeFn(ctx); err != nil {
			s.Logger.Error("shutdown step failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return fmt.Errorf("shutdown: %w", firstErr)
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
