// API server entry point for the fingerprint service.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	appfp "github.com/turtacn/pcfp/internal/application/fingerprint"
	"github.com/turtacn/pcfp/internal/bootstrap"
	"github.com/turtacn/pcfp/internal/config"
	"github.com/turtacn/pcfp/internal/domain/fingerprint"
	"github.com/turtacn/pcfp/internal/infrastructure/monitoring/logging"
	httpserver "github.com/turtacn/pcfp/internal/interfaces/http"
	"github.com/turtacn/pcfp/internal/interfaces/http/handlers"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: PCFP_* environment only)")
	port := flag.Int("port", 0, "HTTP port (overrides server.port)")
	flag.Parse()

	if err := run(*configPath, *port); err != nil {
		fmt.Fprintf(os.Stderr, "apiserver: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, port int) error {
	cfg, err := config.LoadOrEnv(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}

	logger, err := bootstrap.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	logging.SetDefault(logger)
	logger.Info("starting fingerprint API server",
		logging.String("version", version),
		logging.Int("port", cfg.Server.Port),
		logging.Int("catalogue_size", fingerprint.Size))

	if configPath != "" {
		watchConfig(configPath, logger)
	}

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

	engine := fingerprint.NewEngine(fingerprint.WithLogger(logger.Named("engine")))
	opts := append(backends.ServiceOptions(metrics), appfp.WithEngine(engine))
	svc := appfp.NewService(cfg.Fingerprint, logger.Named("fingerprint"), opts...)

	gin.SetMode(cfg.Server.Mode)
	router := httpserver.NewRouter(httpserver.RouterConfig{
		FingerprintHandler: handlers.NewFingerprintHandler(svc, cfg.Fingerprint.Encoding, logger.Named("http")),
		KeysHandler:        handlers.NewKeysHandler(),
		HealthHandler:      handlers.NewHealthHandler(version, backends.HealthCheckers()...),
		Logger:             logger.Named("http"),
		Metrics:            metrics,
		MetricsCollector:   collector,
		MetricsPath:        cfg.Metrics.Path,
		MaxBodySize:        cfg.Server.MaxBodySize,
	})
	srv := httpserver.NewServer(cfg.Server, router, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down API server")
	return srv.Shutdown(context.Background())
}

// watchConfig applies log level changes live; every other setting needs a
// restart.
func watchConfig(path string, logger logging.Logger) {
	err := config.Watch(path, func(next *config.Config) {
		if setter, ok := logger.(logging.LevelSetter); ok {
			setter.SetLevel(next.Log.Level)
		}
		logger.Info("configuration reloaded", logging.String("log_level", next.Log.Level))
	}, func(err error) {
		logger.Warn("ignoring invalid configuration change", logging.Err(err))
	})
	if err != nil {
		logger.Warn("configuration watch disabled", logging.Err(err))
	}
}
