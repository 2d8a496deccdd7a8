package events

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLatestCache stores the latest event per game in Redis with a TTL, so
// the snapshot survives process restarts and is shared across replicas.
type RedisLatestCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLatestCache(client *redis.Client, ttl time.Duration) *RedisLatestCache {
	if ttl <= 0 {
		ttl = DefaultLatestEventTTL
	}
	return &RedisLatestCache{client: client, ttl: ttl}
}

func latestKey(gameID string) string {
	return fmt.Sprintf("game:%s:latest", gameID)
}

func (c *RedisLatestCache) SetLatest(ctx context.Context, gameID string, payload []byte) error {
	if err := c.client.Set(ctx, latestKey(gameID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache latest event: %w", err)
	}
	return nil
}

func (c *RedisLatestCache) GetLatest(ctx context.Context, gameID string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, latestKey(gameID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read latest event: %w", err)
	}
	return data, true, nil
}
