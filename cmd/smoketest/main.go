package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/internal/smoketest"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/internal/upstream"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/config"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/logger"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/monitoring"
	"github.com/dodo12345znssn/Ambulatorio-Infermieristico/pkg/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logger.NewWithOutput(cfg.LogLevel, os.Stderr)

	tracing, err := monitoring.NewTracingManager(&monitoring.TracingConfig{ServiceName: "smoketest"})
	if err != nil {
		logger.Fatalf("Failed to initialize tracing: %v", err)
	}

	client := upstream.NewClient(&cfg.Upstream, logger, monitoring.NewMetricsCollector("smoketest"), tracing)
	runner := smoketest.NewRunner(
		client,
		types.Credentials{Username: cfg.Upstream.Username, Password: cfg.Upstream.Password},
		cfg.SmokeTest.Ambulatorio,
		cfg.Statistics.Location(),
		logger,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logger.WithField("backend", cfg.Upstream.BaseURL).Info("Running smoke test")
	tally := runner.Run(ctx)

	fmt.Println(tally.String())
	if !tally.OK() {
		os.Exit(1)
	}
}
