// Package bootstrap wires optional infrastructure from configuration.
// Every builder degrades to nil when its backing service is not
// configured; callers treat nil as "feature off" rather than an error.
package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/sanctuaryhq/sanctuary/internal/analytics"
	appconfig "github.com/sanctuaryhq/sanctuary/internal/config"
	"github.com/sanctuaryhq/sanctuary/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available, stats cache disabled", "error", err)
		return nil
	}
	return client
}

// BuildStatsCache wraps the Redis client in the dashboard stats cache.
// A nil client yields a nil cache, which reads as a permanent miss.
func BuildStatsCache(redisClient *redis.Client, cfg *appconfig.Config, logger *logging.Logger) *analytics.Cache {
	if redisClient == nil || cfg == nil {
		return nil
	}
	return analytics.NewCache(redisClient, cfg.StatsCacheTTL, logger)
}
