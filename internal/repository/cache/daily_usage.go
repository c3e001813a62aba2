// internal/repository/cache/daily_usage.go
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DailyUsageCounter keeps per-principal daily counters in Redis. Keys
// carry the local calendar date, so the midnight reset is inherent:
// the next day simply reads a fresh key, and yesterday's expires on
// its own.
type DailyUsageCounter struct {
	client *redis.Client
	loc    *time.Location
}

func NewDailyUsageCounter(client *redis.Client, loc *time.Location) *DailyUsageCounter {
	if loc == nil {
		loc = time.Local
	}
	return &DailyUsageCounter{client: client, loc: loc}
}

func (c *DailyUsageCounter) key(principalID int64) string {
	return fmt.Sprintf("usage:daily:%d:%s", principalID, time.Now().In(c.loc).Format("2006-01-02"))
}

// Current reads today's count; a missing key is zero.
func (c *DailyUsageCounter) Current(ctx context.Context, principalID int64) (int64, error) {
	n, err := c.client.Get(ctx, c.key(principalID)).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read daily counter: %w", err)
	}
	return n, nil
}

// Increment adds unconditionally and returns the new count.
func (c *DailyUsageCounter) Increment(ctx context.Context, principalID int64, units int) (int64, error) {
	key := c.key(principalID)
	n, err := c.client.IncrBy(ctx, key, int64(units)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment daily counter: %w", err)
	}
	c.client.Expire(ctx, key, 48*time.Hour)
	return n, nil
}

// TryConsume increments by units only while the result stays within
// limit. INCRBY is atomic; a transient overshoot is compensated
// immediately, so two racing operations cannot both be granted the
// last unit.
func (c *DailyUsageCounter) TryConsume(ctx context.Context, principalID int64, units, limit int) (bool, error) {
	n, err := c.Increment(ctx, principalID, units)
	if err != nil {
		return false, err
	}
	if n > int64(limit) {
		if err := c.Undo(ctx, principalID, units); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// Undo compensates a consumed amount after a later check denied the
// operation.
func (c *DailyUsageCounter) Undo(ctx context.Context, principalID int64, units int) error {
	if err := c.client.DecrBy(ctx, c.key(principalID), int64(units)).Err(); err != nil {
		return fmt.Errorf("failed to undo daily counter: %w", err)
	}
	return nil
}
