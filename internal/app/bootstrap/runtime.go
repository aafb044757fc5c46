package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/yclients-mcp/internal/config"
	httpmiddleware "github.com/wolfman30/yclients-mcp/internal/http/middleware"
	"github.com/wolfman30/yclients-mcp/pkg/logging"
)

const limiterEvictInterval = 5 * time.Minute

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
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildRateLimiter picks the request limiter for the HTTP transport: shared
// fixed windows in Redis when a client is given, otherwise an in-memory token
// bucket evicted until ctx is done. It returns nil when limiting is disabled.
func BuildRateLimiter(ctx context.Context, cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) httpmiddleware.Limiter {
	if cfg == nil || cfg.RateLimitPerMinute <= 0 {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if redisClient != nil {
		logger.Info("rate limiting via redis", "per_minute", cfg.RateLimitPerMinute)
		return httpmiddleware.NewRedisRateLimiter(redisClient, cfg.RateLimitPerMinute, logger)
	}

	limiter := httpmiddleware.PerMinute(cfg.RateLimitPerMinute)
	go limiter.Run(ctx, limiterEvictInterval)
	logger.Info("rate limiting in memory", "per_minute", cfg.RateLimitPerMinute)
	return limiter
}
