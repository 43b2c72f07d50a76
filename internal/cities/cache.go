package cities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultCacheTTL = 24 * time.Hour

// RedisCache keeps the city list in Redis so restarts skip the lookup call.
type RedisCache struct {
	redis  *redis.Client
	key    string
	ttl    time.Duration
	tracer trace.Tracer
}

// NewRedisCache creates a cache under "cities:<scope>".
func NewRedisCache(client *redis.Client, scope string, ttl time.Duration) *RedisCache {
	if client == nil {
		panic("cities: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &RedisCache{
		redis:  client,
		key:    fmt.Sprintf("cities:%s", scope),
		ttl:    ttl,
		tracer: otel.Tracer("listing.internal.cities.cache"),
	}
}

func (c *RedisCache) Get(ctx context.Context) ([]Entry, bool, error) {
	ctx, span := c.tracer.Start(ctx, "cities.cache_get")
	defer span.End()

	data, err := c.redis.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("cities: failed to read cache: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		span.RecordError(err)
		return nil, false, fmt.Errorf("cities: failed to decode cache: %w", err)
	}
	return entries, true, nil
}

func (c *RedisCache) Put(ctx context.Context, entries []Entry) error {
	ctx, span := c.tracer.Start(ctx, "cities.cache_put")
	defer span.End()

	data, err := json.Marshal(entries)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("cities: failed to marshal cache: %w", err)
	}
	if err := c.redis.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("cities: failed to write cache: %w", err)
	}
	return nil
}
