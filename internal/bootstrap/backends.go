// Package bootstrap builds the process-wide logger, metrics and backend
// clients shared by the server and worker binaries.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	appfp "github.com/turtacn/pcfp/internal/application/fingerprint"
	"github.com/turtacn/pcfp/internal/config"
	"github.com/turtacn/pcfp/internal/infrastructure/database/postgres"
	"github.com/turtacn/pcfp/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/pcfp/internal/infrastructure/database/redis"
	"github.com/turtacn/pcfp/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/pcfp/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/pcfp/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/pcfp/internal/infrastructure/search/milvus"
	"github.com/turtacn/pcfp/internal/infrastructure/storage/minio"
	"github.com/turtacn/pcfp/internal/interfaces/http/handlers"
)

const (
	topicPartitions  = 3
	topicReplication = 1
	milvusWatchEvery = 30 * time.Second
)

// NewLogger builds the zap logger described by cfg.
func NewLogger(cfg config.LogConfig) (logging.Logger, error) {
	out := cfg.Output
	if out == "" {
		out = "stdout"
	}
	return logging.NewLogger(logging.LogConfig{
		Level:       cfg.Level,
		Format:      cfg.Format,
		OutputPaths: []string{out},
	})
}

// NewMetrics returns the collector and app metrics; a disabled config
// yields no-op instruments and a nil collector.
func NewMetrics(cfg config.MetricsConfig, logger logging.Logger) (prometheus.MetricsCollector, *prometheus.AppMetrics, error) {
	if !cfg.Enabled {
		return nil, prometheus.NewNoopMetrics(), nil
	}
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            cfg.Namespace,
		EnableProcessMetrics: cfg.EnableProcessMetrics,
		EnableGoMetrics:      cfg.EnableGoMetrics,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics: %w", err)
	}
	return collector, prometheus.NewAppMetrics(collector), nil
}

// Backends holds every enabled backend client. Fields of disabled
// backends stay nil.
type Backends struct {
	Postgres *postgres.Connection
	Redis    *redis.Client
	Producer *kafka.Producer
	Milvus   *milvus.Client
	MinIO    *minio.Client

	cfg    *config.Config
	logger logging.Logger
}

// Open connects to every backend enabled in cfg, prepares its schema
// (migrations, topics, collection, bucket) and returns them. On error all
// clients opened so far are closed.
func Open(ctx context.Context, cfg *config.Config, logger logging.Logger) (_ *Backends, err error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	b := &Backends{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			b.Close()
		}
	}()

	if cfg.Database.Enabled {
		if err = migrate(cfg.Database, logger); err != nil {
			return nil, err
		}
		if b.Postgres, err = postgres.NewConnection(ctx, cfg.Database, logger.Named("postgres")); err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
	}
	if cfg.Redis.Enabled {
		if b.Redis, err = redis.NewClient(cfg.Redis, logger.Named("redis")); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
	}
	if cfg.Kafka.Enabled {
		if err = ensureTopics(ctx, cfg.Kafka, logger); err != nil {
			return nil, err
		}
		if b.Producer, err = kafka.NewProducer(cfg.Kafka, logger.Named("kafka")); err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
	}
	if cfg.Milvus.Enabled {
		if b.Milvus, err = milvus.NewClient(ctx, cfg.Milvus, logger.Named("milvus")); err != nil {
			return nil, fmt.Errorf("milvus: %w", err)
		}
		if err = b.Milvus.EnsureCollection(ctx); err != nil {
			return nil, fmt.Errorf("milvus collection: %w", err)
		}
		b.Milvus.Watch(milvusWatchEvery)
	}
	if cfg.MinIO.Enabled {
		if b.MinIO, err = minio.NewClient(ctx, cfg.MinIO, logger.Named("minio")); err != nil {
			return nil, fmt.Errorf("minio: %w", err)
		}
	}
	return b, nil
}

func migrate(cfg config.DatabaseConfig, logger logging.Logger) error {
	m, err := postgres.NewMigrator(cfg.DSN(), cfg.MigrationPath, logger.Named("migrate"))
	if err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return nil
}

func ensureTopics(ctx context.Context, cfg config.KafkaConfig, logger logging.Logger) error {
	tm, err := kafka.NewTopicManager(cfg.Brokers, logger.Named("kafka"))
	if err != nil {
		return fmt.Errorf("kafka topics: %w", err)
	}
	defer tm.Close()
	if err := tm.EnsureTopics(ctx, topicPartitions, topicReplication, 0,
		cfg.RequestTopic, cfg.ResultTopic, kafka.TopicFingerprintDeadLetter); err != nil {
		return fmt.Errorf("kafka topics: %w", err)
	}
	return nil
}

// Publisher returns the result-topic publisher, or nil without Kafka.
func (b *Backends) Publisher() *kafka.RecordPublisher {
	if b.Producer == nil {
		return nil
	}
	return kafka.NewRecordPublisher(b.Producer, b.cfg.Kafka.ResultTopic)
}

// ServiceOptions wires the enabled backends into the fingerprint service.
func (b *Backends) ServiceOptions(metrics *prometheus.AppMetrics) []appfp.Option {
	opts := []appfp.Option{appfp.WithMetrics(metrics)}
	if b.Postgres != nil {
		opts = append(opts, appfp.WithRepository(repositories.NewFingerprintRepository(b.Postgres.DB(), b.logger.Named("repository"))))
	}
	if b.Redis != nil {
		cache := redis.NewFingerprintCache(b.Redis, b.logger.Named("cache"),
			redis.WithPrefix(b.cfg.Redis.KeyPrefix), redis.WithDefaultTTL(b.cfg.Redis.DefaultTTL))
		opts = append(opts, appfp.WithCache(cache, b.cfg.Redis.DefaultTTL))
	}
	if b.Milvus != nil {
		opts = append(opts, appfp.WithIndex(milvus.NewIndex(b.Milvus)))
	}
	if p := b.Publisher(); p != nil {
		opts = append(opts, appfp.WithPublisher(p))
	}
	if b.MinIO != nil {
		opts = append(opts, appfp.WithArchive(minio.NewArchive(b.MinIO)))
	}
	return opts
}

// HealthCheckers returns a readiness check per enabled backend.
func (b *Backends) HealthCheckers() []handlers.HealthChecker {
	var out []handlers.HealthChecker
	if b.Postgres != nil {
		out = append(out, handlers.CheckFunc{Component: "postgres", Fn: b.Postgres.HealthCheck})
	}
	if b.Redis != nil {
		out = append(out, handlers.CheckFunc{Component: "redis", Fn: b.Redis.Ping})
	}
	if b.Milvus != nil {
		out = append(out, handlers.CheckFunc{Component: "milvus", Fn: b.Milvus.CheckHealth})
	}
	if b.MinIO != nil {
		out = append(out, handlers.CheckFunc{Component: "minio", Fn: b.MinIO.EnsureBucket})
	}
	return out
}

type closer struct {
	name string
	fn   func() error
}

// Close releases every open client, logging failures.
func (b *Backends) Close() {
	var closers []closer
	if b.Producer != nil {
		closers = append(closers, closer{"kafka", b.Producer.Close})
	}
	if b.Milvus != nil {
		closers = append(closers, closer{"milvus", b.Milvus.Close})
	}
	if b.Redis != nil {
		closers = append(closers, closer{"redis", b.Redis.Close})
	}
	if b.Postgres != nil {
		closers = append(closers, closer{"postgres", b.Postgres.Close})
	}
	for _, c := range closers {
		if err := c.fn(); err != nil {
			b.logger.Warn("failed to close backend", logging.String("backend", c.name), logging.Err(err))
		}
	}
}
