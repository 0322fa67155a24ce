package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/pcfp/internal/domain/fingerprint"
	"github.com/turtacn/pcfp/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/pcfp/pkg/errors"
)

const defaultKeyPrefix = "pcfp:"

// FingerprintCache stores fingerprint records as JSON under
// <prefix>fp:<digest>.
type FingerprintCache struct {
	client     *Client
	logger     logging.Logger
	prefix     string
	defaultTTL time.Duration
	jitter     bool
	group      singleflight.Group
}

var _ fingerprint.Cache = (*FingerprintCache)(nil)

type CacheOption func(*FingerprintCache)

func WithPrefix(prefix string) CacheOption {
	return func(c *FingerprintCache) { c.prefix = prefix }
}

func WithDefaultTTL(ttl time.Duration) CacheOption {
	return func(c *FingerprintCache) { c.defaultTTL = ttl }
}

// WithoutJitter stores entries with the exact TTL requested.
func WithoutJitter() CacheOption {
	return func(c *FingerprintCache) { c.jitter = false }
}

func NewFingerprintCache(client *Client, log logging.Logger, opts ...CacheOption) *FingerprintCache {
	if log == nil {
		log = logging.NewNopLogger()
	}
	c := &FingerprintCache{
		client:     client,
		logger:     log,
		prefix:     defaultKeyPrefix,
		defaultTTL: 24 * time.Hour,
		jitter:     true,
	}
	if client != nil && client.cfg.KeyPrefix != "" {
		c.prefix = client.cfg.KeyPrefix
	}
	if client != nil && client.cfg.DefaultTTL > 0 {
		c.defaultTTL = client.cfg.DefaultTTL
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *FingerprintCache) key(digest string) string {
	return c.prefix + "fp:" + digest
}

// ttl applies +/- 10% jitter so a batch does not expire at once.
func (c *FingerprintCache) ttl(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	if !c.jitter {
		return ttl
	}
	return ttl + time.Duration(float64(ttl)*0.1*(rand.Float64()*2-1))
}

// Get returns (nil, false, nil) on a miss.
func (c *FingerprintCache) Get(ctx context.Context, digest string) (*fingerprint.Record, bool, error) {
	data, err := c.client.Get(ctx, c.key(digest)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to get fingerprint from cache")
	}
	var rec fingerprint.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		// A corrupt entry is treated as a miss and dropped.
		c.logger.Warn("Discarding undecodable cache entry", logging.String("digest", digest), logging.Err(err))
		_ = c.client.Del(ctx, c.key(digest)).Err()
		return nil, false, nil
	}
	return &rec, true, nil
}

// GetMany returns the cached subset of digests.
func (c *FingerprintCache) GetMany(ctx context.Context, digests []string) (map[string]*fingerprint.Record, error) {
	if len(digests) == 0 {
		return map[string]*fingerprint.Record{}, nil
	}
	keys := make([]string, len(digests))
	for i, d := range digests {
		keys[i] = c.key(d)
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "failed to mget fingerprints")
	}
	out := make(map[string]*fingerprint.Record, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var rec fingerprint.Record
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			continue
		}
		out[digests[i]] = &rec
	}
	return out, nil
}

func (c *FingerprintCache) Set(ctx context.Context, r *fingerprint.Record, ttl time.Duration) error {
	if r == nil || r.Digest == "" {
		return errors.InvalidParam("record digest is required")
	}
	data, err := json.Marshal(r)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal fingerprint record")
	}
	if err := c.client.Set(ctx, c.key(r.Digest), data, c.ttl(ttl)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to set fingerprint in cache")
	}
	return nil
}

func (c *FingerprintCache) Invalidate(ctx context.Context, digest string) error {
	if err := c.client.Del(ctx, c.key(digest)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to invalidate fingerprint")
	}
	return nil
}

// GetOrLoad returns the cached record or runs load once per digest across
// concurrent callers and caches the result. The shared load runs detached
// from any one caller's cancellation; a caller whose ctx ends stops waiting
// without failing the others.
func (c *FingerprintCache) GetOrLoad(ctx context.Context, digest string, load func(context.Context) (*fingerprint.Record, error)) (*fingerprint.Record, bool, error) {
	if rec, ok, err := c.Get(ctx, digest); err == nil && ok {
		return rec, true, nil
	} else if err != nil {
		c.logger.Warn("Cache read failed, loading directly", logging.String("digest", digest), logging.Err(err))
	}
	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(digest, func() (interface{}, error) {
		rec, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		if setErr := c.Set(loadCtx, rec, 0); setErr != nil {
			c.logger.Warn("Failed to populate cache", logging.String("digest", digest), logging.Err(setErr))
		}
		return rec, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.(*fingerprint.Record), false, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}
