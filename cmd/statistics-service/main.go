package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/internal/gateway"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/internal/statistics"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/internal/store"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/internal/upstream"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/config"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/database"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/interfaces"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/logger"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/monitoring"
)

const (
	serviceName    = "statistics-service"
	serviceVersion = "1.0.0"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)

	if cfg.JWT.SecretKey == "" {
		logger.Fatal("JWT secret key is required (jwt.secret_key or JWT_SECRET_KEY)")
	}

	metrics := monitoring.NewMetricsCollector(serviceName)
	tracing, err := monitoring.NewTracingManager(&monitoring.TracingConfig{
		Enabled:        cfg.Tracing.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		JaegerEndpoint: cfg.Tracing.JaegerEndpoint,
		Environment:    cfg.Tracing.Environment,
		SamplingRate:   cfg.Tracing.SamplingRate,
	})
	if err != nil {
		logger.Fatalf("Failed to initialize tracing: %v", err)
	}
	health := monitoring.NewHealthManager(serviceName, serviceVersion)

	// Pick the snapshot source
	var source interfaces.AppointmentSource
	var db *database.DB

	switch cfg.Statistics.Source {
	case config.SourceMemory:
		mem := store.NewMemoryStore(logger)
		if cfg.Statistics.FixturesFile != "" {
			if _, err := mem.LoadFixtures(context.Background(), cfg.Statistics.FixturesFile); err != nil {
				logger.Fatalf("Failed to load fixtures: %v", err)
			}
		}
		health.RegisterChecker("memory_store", monitoring.NewCustomHealthChecker(mem.HealthCheck))
		source = mem

	case config.SourcePostgres:
		db, err = database.NewConnection(&cfg.Database, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to database: %v", err)
		}
		health.RegisterChecker("database", monitoring.NewDatabaseHealthChecker(db))
		source = store.NewPostgresStore(db.DB, logger, tracing)

	case config.SourceUpstream:
		source = upstream.NewClient(&cfg.Upstream, logger, metrics, tracing)
		health.RegisterChecker("backend", monitoring.NewHTTPHealthChecker(
			strings.TrimRight(cfg.Upstream.BaseURL, "/")+"/",
			cfg.Upstream.TimeoutDuration(),
		))
	}

	logger.WithField("source", cfg.Statistics.Source).Info("Statistics source selected")

	// Initialize Statistics Service
	service := statistics.NewService(source, logger, metrics, tracing, cfg.Statistics.Location())
	handler := statistics.NewHandler(service, logger, cfg.Statistics.Location())
	validator := gateway.NewTokenValidator(
		cfg.JWT.SecretKey,
		cfg.JWT.Issuer,
		time.Duration(cfg.JWT.AccessTokenTTL)*time.Second,
	)
	auth := gateway.NewAuthMiddleware(validator, logger)
	server := statistics.NewServer(cfg, logger, handler, auth, metrics, tracing, health)

	// Start service in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatalf("Failed to start Statistics Service: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Statistics Service...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
	if err := tracing.Shutdown(ctx); err != nil {
		logger.Errorf("Error flushing traces: %v", err)
	}
	if db != nil {
		db.Close()
	}
	logger.Info("Statistics Service stopped")
}
