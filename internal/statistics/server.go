package statistics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/internal/gateway"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/config"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/logger"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/monitoring"
)

// Server exposes the statistics API together with health and metrics endpoints
type Server struct {
	config     *config.Config
	logger     *logger.Logger
	handler    *Handler
	auth       *gateway.AuthMiddleware
	metrics    *monitoring.MetricsCollector
	health     *monitoring.HealthManager
	middleware *monitoring.MonitoringMiddleware
	server     *http.Server
}

// NewServer wires the HTTP surface of the statistics service
func NewServer(
	cfg *config.Config,
	log *logger.Logger,
	handler *Handler,
	auth *gateway.AuthMiddleware,
	metrics *monitoring.MetricsCollector,
	tracing *monitoring.TracingManager,
	health *monitoring.HealthManager,
) *Server {
	s := &Server{
		config:     cfg,
		logger:     log,
		handler:    handler,
		auth:       auth,
		metrics:    metrics,
		health:     health,
		middleware: monitoring.NewMonitoringMiddleware(metrics, tracing, log),
	}
	s.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.Router(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}
	return s
}

// Router builds the route tree. Only /api routes require a bearer token.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.middleware.HTTPMiddleware)

	if s.config.Monitoring.Enabled {
		router.Handle(s.config.Monitoring.HealthPath, s.health.HTTPHandler()).Methods("GET")
		router.Handle(s.config.Monitoring.MetricsPath, s.metrics.Handler()).Methods("GET")
	}

	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.auth.Handler)
	s.handler.RegisterRoutes(api)

	return router
}

// Start listens on the configured address until Stop is called
func (s *Server) Start() error {
	s.logger.WithField("addr", s.server.Addr).Info("Starting Statistics Service")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping Statistics Service")
	return s.server.Shutdown(ctx)
}
