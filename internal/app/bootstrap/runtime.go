package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/listing-lead-assistant/internal/config"
	"github.com/wolfman30/listing-lead-assistant/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	logger = logging.OrDefault(logger)
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

// BuildPostgresPool connects to DATABASE_URL. An empty URL returns a nil
// pool and leads are kept in memory.
func BuildPostgresPool(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*pgxpool.Pool, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil
	}
	logger = logging.OrDefault(logger)
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	logger.Info("postgres connected")
	return pool, nil
}
