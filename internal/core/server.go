// Package core provides the HTTP chassis for the pre-heating service.
// It creates a chi router and enforces cross-cutting concerns -- security,
// logging, observability, and error handling -- before requests reach the
// domain handlers in internal/api.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"preheat/internal/config"
)

// MetricsCollector defines the interface for recording API telemetry.
// Implementations record request latency and count metrics to whatever
// backend the deployment uses.
type MetricsCollector interface {
	// RecordRequest records API request metrics including latency and count.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Server encapsulates all dependencies for the pre-heating API, allowing for
// easy injection during testing and distinct configuration for different
// environments.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   MetricsCollector

	// HealthProbes are checked concurrently by GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars are populated by the application entry point and
	// mount the domain handlers under /v1. This indirection avoids import
	// cycles between core and the handler package.
	V1RouteRegistrars []func(chi.Router)

	closers []namedCloser
	router  *chi.Mux
}

type namedCloser struct {
	name  string
	close func() error
}

// NewServer initializes dependencies, sets up the router, and prepares the
// server for route mounting. It performs a "fail-fast" check on critical
// configuration.
//
// The caller is responsible for mounting routes (via MountRoutes or equivalent)
// after construction. This separation allows tests to customize route
// registration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	s := &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}

	return s, nil
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration.
// This is used internally by route-mounting methods and tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// RegisterCloser adds a resource (database pool, broker connection) to be
// closed during Shutdown. Closers run in reverse registration order.
func (s *Server) RegisterCloser(name string, close func() error) {
	s.closers = append(s.closers, namedCloser{name: name, close: close})
}

// Shutdown performs a graceful termination of server resources, closing
// registered resources in reverse registration order. The first close error
// is returned; later closers still run.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		c := s.closers[i]
		if err := c.close(); err != nil {
			s.Logger.Error("error closing resource", "resource", c.name, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("closing %s: %w", c.name, err)
			}
		}
	}

	if firstErr != nil {
		return firstErr
	}
	s.Logger.Info("server shutdown complete")
	return nil
}
