package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"terminal-telemetry/internal/config"
	"terminal-telemetry/internal/logging"
	"terminal-telemetry/internal/tasks"
	"terminal-telemetry/internal/telemetry"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config/config.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load yaml config: %v", err)
	}

	logger, err := logging.Setup(cfg.Logging)
	if err != nil {
		log.Fatalf("setup logging: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGINT/SIGTERM for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		logger.Info().Str("signal", s.String()).Msg("shutting down")
		cancel()
	}()

	var metrics telemetry.Collector = telemetry.Noop()
	if cfg.Metrics.Enabled {
		prom, err := telemetry.NewPrometheusCollector(nil)
		if err != nil {
			logger.Fatal().Err(err).Msg("register metrics")
		}
		metrics = prom
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.Metrics.Listen, nil); err != nil {
				logger.Error().Err(err).Msg("metrics endpoint")
			}
		}()
	}

	svc := tasks.NewService(cfg, logger, metrics)
	if err := svc.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("service exited")
		os.Exit(1)
	}
}
