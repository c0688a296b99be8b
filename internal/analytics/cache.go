package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/sanctuaryhq/sanctuary/pkg/logging"
)

// DefaultTTL keeps dashboard reads cheap without letting the numbers go
// visibly stale.
const DefaultTTL = 15 * time.Second

// Cache is a small read-through cache over Redis. A nil *Cache is valid
// and behaves as a permanent miss, so callers never branch on whether
// Redis is configured.
type Cache struct {
	rdb    *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
	logger *logging.Logger
}

func NewCache(rdb *redis.Client, ttl time.Duration, logger *logging.Logger) *Cache {
	if rdb == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Cache{
		rdb:    rdb,
		ttl:    ttl,
		tracer: otel.Tracer("sanctuary.internal.analytics.cache"),
		logger: logger,
	}
}

// Get reports whether key was present and decoded into dest.
func (c *Cache) Get(ctx context.Context, key string, dest any) bool {
	if c == nil || c.rdb == nil {
		return false
	}
	ctx, span := c.tracer.Start(ctx, "analytics.cache.get")
	defer span.End()

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("cache read failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Warn("cache entry corrupt, dropping", "key", key, "error", err)
		c.Invalidate(ctx, key)
		return false
	}
	return true
}

// Set stores v under key. Failures are logged and swallowed; the cache
// never blocks a response.
func (c *Cache) Set(ctx context.Context, key string, v any) {
	if c == nil || c.rdb == nil {
		return
	}
	ctx, span := c.tracer.Start(ctx, "analytics.cache.set")
	defer span.End()

	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

func (c *Cache) Invalidate(ctx context.Context, key string) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("cache invalidate failed", "key", key, "error", err)
	}
}
