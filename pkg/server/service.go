// Package server wires the runbook engine's core Service, JWT auth, and
// rate limiting into an HTTP API, mirroring the teacher's standalone proxy
// server lifecycle (bind-then-serve, graceful shutdown on a background
// goroutine).
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/runbook-engine/pkg/auth"
	"github.com/ethpandaops/runbook-engine/pkg/config"
	"github.com/ethpandaops/runbook-engine/pkg/middleware"
	"github.com/ethpandaops/runbook-engine/pkg/observability"
	"github.com/ethpandaops/runbook-engine/pkg/runbook"
)

// Service is the runnable HTTP server for the runbook execution engine.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// HealthResponse is the liveness probe body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type service struct {
	log logrus.FieldLogger
	cfg config.Config

	runbooks    *runbook.Service
	authMW      *authMiddleware
	authValid   auth.Validator
	rateLimiter *middleware.RateLimiter
	loggingMW   *observability.LoggingMiddleware
	version     string

	router        chi.Router
	server        *http.Server
	metricsServer *http.Server

	mu      sync.Mutex
	running bool
}

// NewService constructs the HTTP service, wiring the core runbook.Service,
// JWT validator, and rate limiter into a chi router per the route table.
func NewService(
	log logrus.FieldLogger,
	cfg config.Config,
	runbooks *runbook.Service,
	authValid auth.Validator,
	rateLimiter *middleware.RateLimiter,
	version string,
) Service {
	s := &service{
		log:         log.WithField("component", "server"),
		cfg:         cfg,
		runbooks:    runbooks,
		authValid:   authValid,
		rateLimiter: rateLimiter,
		version:     version,
	}
	s.authMW = newAuthMiddleware(s.log, authValid, cfg.Auth.Enabled)
	s.loggingMW = observability.NewLoggingMiddleware(s.log)
	s.router = s.buildRouter()
	return s
}

func (s *service) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(s.loggingMW.Middleware())

	r.Get("/healthz", s.handleHealthz)

	r.Group(func(api chi.Router) {
		api.Use(s.authMW.Handler)

		api.Get("/api/runbooks", s.rateLimited("list", s.handleList))
		api.Get("/api/runbooks/{filename}", s.rateLimited("get", s.handleGet))
		api.Get("/api/runbooks/{filename}/required-env", s.rateLimited("required-env", s.handleRequiredEnv))
		api.Patch("/api/runbooks/{filename}/validate", s.rateLimited("validate", s.handleValidate))
		api.Post("/api/runbooks/{filename}/execute", s.rateLimited("execute", s.handleExecute))
	})

	return r
}

func (s *service) rateLimited(operation string, h http.HandlerFunc) http.HandlerFunc {
	if s.rateLimiter == nil {
		return h
	}
	return s.rateLimiter.Middleware(operation)(h).ServeHTTP
}

func (s *service) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Version:   s.version,
		Timestamp: time.Now().UTC(),
	})
}

// Start binds the API listener (and, when metrics are enabled, a separate
// internal listener for Prometheus scraping) and begins serving in the
// background.
func (s *service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server already started")
	}

	if err := s.authValid.Start(ctx); err != nil {
		return fmt.Errorf("starting auth validator: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding to %s: %w", addr, err)
	}

	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	s.log.WithField("addr", addr).Info("starting runbook engine API server")

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("API server error")
		}
	}()

	if s.cfg.Observability.MetricsEnabled {
		if err := s.startMetricsServer(ctx); err != nil {
			return err
		}
	}

	s.running = true
	return nil
}

func (s *service) startMetricsServer(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Observability.MetricsPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding metrics listener on %s: %w", addr, err)
	}

	s.metricsServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	s.log.WithField("addr", addr).Info("starting metrics server")

	go func() {
		if err := s.metricsServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("metrics server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down both listeners.
func (s *service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	if err := s.authValid.Stop(); err != nil {
		s.log.WithError(err).Warn("error stopping auth validator")
	}

	if s.rateLimiter != nil {
		if err := s.rateLimiter.Close(); err != nil {
			s.log.WithError(err).Warn("error closing rate limiter")
		}
	}

	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("error shutting down metrics server")
		}
	}

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutting down API server: %w", err)
		}
	}

	s.running = false
	s.log.Info("runbook engine API server stopped")
	return nil
}
