package rediscache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyAvailable = "inventory:available:%s"

// AvailabilityCache keeps display availability in Redis with a short TTL.
// All errors degrade to a cache miss.
type AvailabilityCache struct {
	log *slog.Logger
	rdb *redis.Client
	ttl time.Duration
}

func New(log *slog.Logger, rdb *redis.Client, ttl time.Duration) *AvailabilityCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &AvailabilityCache{log: log, rdb: rdb, ttl: ttl}
}

func (c *AvailabilityCache) GetAvailable(ctx context.Context, productID string) (int, bool) {
	val, err := c.rdb.Get(ctx, fmt.Sprintf(keyAvailable, productID)).Result()
	if err != nil {
		return 0, false
	}
	qty, err := strconv.Atoi(val)
	if err != nil {
		return 0, false
	}
	return qty, true
}

func (c *AvailabilityCache) SetAvailable(ctx context.Context, productID string, qty int) {
	if err := c.rdb.Set(ctx, fmt.Sprintf(keyAvailable, productID), qty, c.ttl).Err(); err != nil {
		c.log.Debug("availability cache set failed", "product_id", productID, "err", err)
	}
}

func (c *AvailabilityCache) Invalidate(ctx context.Context, productID string) {
	if err := c.rdb.Del(ctx, fmt.Sprintf(keyAvailable, productID)).Err(); err != nil {
		c.log.Debug("availability cache invalidate failed", "product_id", productID, "err", err)
	}
}
