package milvus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"

	"github.com/turtacn/pcfp/internal/config"
	"github.com/turtacn/pcfp/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/pcfp/pkg/errors"
)

// ClientFactory creates an SDK client; replaced in tests.
type ClientFactory func(ctx context.Context, conf client.Config) (client.Client, error)

var newSDKClient ClientFactory = client.NewClient

const (
	connectTimeout   = 10 * time.Second
	keepAliveTime    = 60 * time.Second
	keepAliveTimeout = 20 * time.Second
	// reconnect after this many consecutive failed health probes
	maxHealthFailures = 3
)

var (
	ErrUnhealthy    = errors.New(errors.ErrCodeServiceUnavailable, "milvus is unhealthy")
	ErrClientClosed = errors.New(errors.ErrCodeServiceUnavailable, "milvus client closed")
)

// Client owns the gRPC connection to a Milvus server.
type Client struct {
	mu      sync.RWMutex
	mc      client.Client
	cfg     config.MilvusConfig
	logger  logging.Logger
	healthy atomic.Bool
	closed  atomic.Bool
	cancel  context.CancelFunc
}

// NewClient dials Milvus and verifies it answers a health probe.
func NewClient(ctx context.Context, cfg config.MilvusConfig, log logging.Logger) (*Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New(errors.ErrCodeValidation, "milvus addr is required")
	}
	if cfg.DBName == "" {
		cfg.DBName = "default"
	}

	mc, err := dial(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to connect to milvus").
			WithDetail("addr=" + cfg.Addr)
	}

	c := NewClientWithSDK(mc, cfg, log)
	if err := c.CheckHealth(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	c.logger.Info("milvus client connected", logging.String("addr", cfg.Addr))
	return c, nil
}

// NewClientWithSDK wraps an existing SDK client.
func NewClientWithSDK(mc client.Client, cfg config.MilvusConfig, log logging.Logger) *Client {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Client{mc: mc, cfg: cfg, logger: log.Named("milvus")}
}

func dial(ctx context.Context, cfg config.MilvusConfig) (client.Client, error) {
	conf := client.Config{
		Address: cfg.Addr,
		DBName:  cfg.DBName,
		DialOptions: []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithKeepaliveParams(keepalive.ClientParameters{
				Time:                keepAliveTime,
				Timeout:             keepAliveTimeout,
				PermitWithoutStream: true,
			}),
		},
	}

	dctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	return newSDKClient(dctx, conf)
}

// SDK returns the underlying SDK client.
func (c *Client) SDK() client.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mc
}

// CheckHealth probes the server and records the result.
func (c *Client) CheckHealth(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	state, err := c.SDK().CheckHealth(ctx)
	if err != nil || (state != nil && !state.IsHealthy) {
		c.healthy.Store(false)
		if err != nil {
			c.logger.Warn("milvus health check failed", logging.Err(err))
			return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "milvus health check failed")
		}
		c.logger.Warn("milvus reports unhealthy", logging.Any("reasons", state.Reasons))
		return ErrUnhealthy
	}
	c.healthy.Store(true)
	return nil
}

// IsHealthy reports the result of the last probe.
func (c *Client) IsHealthy() bool {
	return c.healthy.Load()
}

// Watch probes every interval until Close, reconnecting after repeated failures.
func (c *Client) Watch(interval time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		cancel()
		return
	}
	c.cancel = cancel
	c.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if err := c.CheckHealth(ctx); err == nil {
				failures = 0
				continue
			}
			failures++
			if failures < maxHealthFailures || ctx.Err() != nil {
				continue
			}
			if err := c.reconnect(ctx); err != nil {
				c.logger.Error("milvus reconnect failed", logging.Err(err))
				continue
			}
			failures = 0
		}
	}()
}

func (c *Client) reconnect(ctx context.Context) error {
	mc, err := dial(ctx, c.cfg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	old := c.mc
	c.mc = mc
	c.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	c.logger.Warn("milvus client reconnected")
	return nil
}

// Close stops the health watcher and closes the connection. Safe to call twice.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	if c.mc == nil {
		return nil
	}
	return c.mc.Close()
}
