package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/trackarr/trackarr/internal/api/handlers"
	"github.com/trackarr/trackarr/internal/api/middleware"
	"github.com/trackarr/trackarr/internal/config"
	"github.com/trackarr/trackarr/internal/models"
	"github.com/trackarr/trackarr/internal/registry"
	"github.com/trackarr/trackarr/internal/scheduler"
	"github.com/trackarr/trackarr/internal/syncer"
)

// Server represents the HTTP server
type Server struct {
	server   *http.Server
	db       *models.Database
	registry *registry.Registry
	orch     *syncer.Orchestrator
	sched    *scheduler.Scheduler
	logger   *logrus.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, db *models.Database, reg *registry.Registry, orch *syncer.Orchestrator, sched *scheduler.Scheduler, logger *logrus.Logger) *Server {
	s := &Server{
		db:       db,
		registry: reg,
		orch:     orch,
		sched:    sched,
		logger:   logger,
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)

	s.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      middleware.Logging(mux, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Health check
	healthHandler := handlers.NewHealthHandler(s.logger)
	mux.HandleFunc("/health", healthHandler.ServeHTTP)

	// Status endpoint
	statusHandler := handlers.NewStatusHandler(s.db, s.sched, s.orch, s.logger)
	mux.HandleFunc("/api/status", statusHandler.Handle)

	// Connection management
	connHandler := handlers.NewConnectionsHandler(s.registry, s.logger)
	mux.HandleFunc("/api/connections", connHandler.Collection)
	mux.HandleFunc("/api/connections/", connHandler.Item)

	// Sync status and manual triggers
	syncHandler := handlers.NewSyncHandler(s.orch, s.logger)
	mux.HandleFunc("/api/sync/status", syncHandler.Status)
	mux.HandleFunc("/api/sync/", syncHandler.Trigger)

	// Prometheus metrics
	mux.Handle("/metrics", promhttp.Handler())
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("port", s.server.Addr).Info("Starting HTTP server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
