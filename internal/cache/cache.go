package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Ping(ctx context.Context) error
	SetSimulationStatus(ctx context.Context, userID, simulationID int64, status string, ttl time.Duration) error
	GetSimulationStatus(ctx context.Context, userID, simulationID int64) (string, bool, error)
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// SetSimulationStatus records the latest known status of a simulation. The
// database stays authoritative; this only serves cheap status polling.
func (c *RedisCache) SetSimulationStatus(ctx context.Context, userID, simulationID int64, status string, ttl time.Duration) error {
	return c.client.Set(ctx, SimulationStatusKey(userID, simulationID), status, ttl).Err()
}

func (c *RedisCache) GetSimulationStatus(ctx context.Context, userID, simulationID int64) (string, bool, error) {
	val, err := c.client.Get(ctx, SimulationStatusKey(userID, simulationID)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
