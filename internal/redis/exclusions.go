package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ExclusionCache is a read-through fast path for exclusion lookups.
//
// Keys are only written after a store insert succeeded and carry a TTL
// bounded by the entry's expiry, so a cache hit is always consistent with a
// live suppression. A miss says nothing — the caller still scans the store.
type ExclusionCache struct {
	client *Client
	logger *zap.Logger
}

// NewExclusionCache creates a new exclusion cache.
func NewExclusionCache(client *Client, logger *zap.Logger) *ExclusionCache {
	return &ExclusionCache{
		client: client,
		logger: logger,
	}
}

func (c *ExclusionCache) buildKey(entityID, messageType string) string {
	return fmt.Sprintf("exclusion:%s:%s", messageType, entityID)
}

// MarkExcluded records a suppression until the given instant. Expired or
// past instants are ignored.
func (c *ExclusionCache) MarkExcluded(ctx context.Context, entityID, messageType string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}

	key := c.buildKey(entityID, messageType)
	if err := c.client.rdb.Set(ctx, key, "1", ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}

	c.logger.Debug("exclusion cached",
		zap.String("entity_id", entityID),
		zap.String("message_type", messageType),
		zap.Duration("ttl", ttl),
	)
	return nil
}

// IsExcluded reports whether a live suppression is cached for the pair.
// A negative answer is inconclusive; only hits are authoritative.
func (c *ExclusionCache) IsExcluded(ctx context.Context, entityID, messageType string) (bool, error) {
	key := c.buildKey(entityID, messageType)

	_, err := c.client.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}
	return true, nil
}
