// Worker entry point: consumes compute requests from Kafka and publishes
// fingerprint results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	appfp "github.com/turtacn/pcfp/internal/application/fingerprint"
	"github.com/turtacn/pcfp/internal/bootstrap"
	"github.com/turtacn/pcfp/internal/config"
	"github.com/turtacn/pcfp/internal/domain/fingerprint"
	"github.com/turtacn/pcfp/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/pcfp/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/pcfp/internal/interfaces/http"
	"github.com/turtacn/pcfp/internal/interfaces/http/handlers"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: PCFP_* environment only)")
	workers := flag.Int("workers", 0, "number of consumers (overrides worker.concurrency)")
	flag.Parse()

	if err := run(*configPath, *workers); err != nil {
		fmt.Fprintf(os.Stderr, "worker: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, workers int) error {
	cfg, err := config.LoadOrEnv(configPath)
	if err != nil {
		return err
	}
	if workers > 0 {
		cfg.Worker.Concurrency = workers
	}
	if !cfg.Kafka.Enabled {
		return fmt.Errorf("kafka.enabled must be true for the worker")
	}

	logger, err := bootstrap.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	logging.SetDefault(logger)
	logger.Info("starting fingerprint worker",
		logging.String("version", version),
		logging.Int("consumers", cfg.Worker.Concurrency),
		logging.String("topic", cfg.Kafka.RequestTopic))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector, metrics, err := bootstrap.NewMetrics(cfg.Metrics, logger)
	if err != nil {
		return err
	}
	backends, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backends.Close()

	// Results are published by the handler, once per request, including
	// store and cache hits.
	opts := append(backends.ServiceOptions(metrics),
		appfp.WithPublisher(nil),
		appfp.WithEngine(fingerprint.NewEngine(fingerprint.WithLogger(logger.Named("engine")))))
	svc := appfp.NewService(cfg.Fingerprint, logger.Named("fingerprint"), opts...)
	handler := newComputeHandler(svc, backends.Publisher(), metrics, logger.Named("handler"))

	consumers := make([]*kafka.Consumer, 0, cfg.Worker.Concurrency)
	defer func() {
		for _, c := range consumers {
			if err := c.Close(); err != nil {
				logger.Warn("failed to close consumer", logging.Err(err))
			}
		}
	}()
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		c, err := kafka.NewConsumer(cfg.Kafka, handler.Handle, backends.Producer, logger.Named("consumer"))
		if err != nil {
			return err
		}
		if err := c.Start(ctx); err != nil {
			return err
		}
		consumers = append(consumers, c)
	}

	probes := httpserver.NewRouter(httpserver.RouterConfig{
		HealthHandler:    handlers.NewHealthHandler(version, backends.HealthCheckers()...),
		Logger:           logger.Named("http"),
		MetricsCollector: collector,
		MetricsPath:      cfg.Metrics.Path,
	})
	srv := httpserver.NewServer(cfg.Server, probes, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down worker")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
