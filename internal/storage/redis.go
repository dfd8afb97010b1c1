package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/radiusdt/vector-adplayer/internal/models"
	"github.com/redis/go-redis/v9"
)

// RedisDeliveryCounter keeps per-cycle beacon counters in a Redis hash:
// key "beacons:{cycle_id}", field "{event}:{outcome}".
type RedisDeliveryCounter struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisDeliveryCounter creates a Redis-backed delivery counter.
func NewRedisDeliveryCounter(client redis.Cmdable, ttl time.Duration) *RedisDeliveryCounter {
	return &RedisDeliveryCounter{client: client, ttl: ttl}
}

func counterKey(cycleID string) string {
	return fmt.Sprintf("beacons:%s", cycleID)
}

func (c *RedisDeliveryCounter) SaveDelivery(ctx context.Context, d *models.BeaconDelivery) error {
	if d == nil {
		return nil
	}

	key := counterKey(d.CycleID)
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, d.Event+":"+d.Outcome(), 1)
		pipe.Expire(ctx, key, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to increment beacon counter: %w", err)
	}
	return nil
}

// Counts returns the "{event}:{outcome}" counters for a cycle.
func (c *RedisDeliveryCounter) Counts(ctx context.Context, cycleID string) (map[string]int64, error) {
	raw, err := c.client.HGetAll(ctx, counterKey(cycleID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read beacon counters: %w", err)
	}

	out := make(map[string]int64, len(raw))
	for field, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[field] = n
	}
	return out, nil
}
