// Package server assembles the sync HTTP server: sqlite record store,
// JWT authentication, rate limiting, metrics and the /api/v1 routes.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iudanet/lexisync/internal/models"
	"github.com/iudanet/lexisync/internal/server/config"
	"github.com/iudanet/lexisync/internal/server/handlers"
	"github.com/iudanet/lexisync/internal/server/jwt"
	"github.com/iudanet/lexisync/internal/server/middleware"
	"github.com/iudanet/lexisync/internal/server/storage/sqlite"
)

// Server is the sync server with its dependencies
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *sqlite.Storage
	tokens   *jwt.Service
	limiter  *middleware.RateLimiter
	metrics  *middleware.Metrics
	registry *prometheus.Registry
	version  string
}

// New validates the config, opens the database and prepares the router dependencies
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tokens, err := jwt.NewService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create token service: %w", err)
	}

	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register go collector: %w", err)
	}
	metrics, err := middleware.NewMetrics(registry)
	if err != nil {
		return nil, err
	}

	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open server database: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		tokens:   tokens,
		metrics:  metrics,
		registry: registry,
		version:  version,
	}
	if cfg.RateLimit.Requests > 0 {
		s.limiter = middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, logger.With("component", "ratelimit"))
	}

	return s, nil
}

// IssueToken creates a bearer token for a sync client
func (s *Server) IssueToken(userID, deviceID string) (string, time.Time, error) {
	return s.tokens.GenerateToken(userID, deviceID)
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RecoveryMiddleware(s.logger))
	r.Use(middleware.LoggingWithSkip(s.logger, []string{"/api/v1/health", "/metrics"}))
	r.Use(s.metrics.Middleware)

	health := handlers.NewHealthHandler(s.logger, s.store, s.version)
	records := handlers.NewSyncHandler(s.logger, s.store, models.NewTableRegistry(models.DefaultTables()))

	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", health.Health)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(s.logger, s.tokens))
			if s.limiter != nil {
				r.Use(s.limiter.Middleware)
			}
			records.Routes(r)
		})
	})

	return r
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Sync server listening", "addr", s.cfg.Address, "version", s.version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("sync server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down sync server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("sync server shutdown failed: %w", err)
	}
	return nil
}

// Close releases the rate limiter and the database
func (s *Server) Close() error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.store.Close()
}
