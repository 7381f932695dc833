package hours

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/slotbook/slotbook/internal/schedule"
)

// CachedResolver is a read-through Redis cache in front of the hours store.
// Cache failures degrade to direct store reads; they are never fatal.
type CachedResolver struct {
	source schedule.HoursResolver
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedResolver(source schedule.HoursResolver, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedResolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedResolver{source: source, rdb: rdb, ttl: ttl, logger: logger}
}

func (c *CachedResolver) DayHours(ctx context.Context, locationID string, weekday time.Weekday) (schedule.DayHours, error) {
	if c.rdb == nil {
		return c.source.DayHours(ctx, locationID, weekday)
	}

	key := cacheKey(locationID, weekday)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var dh schedule.DayHours
		if err := json.Unmarshal(raw, &dh); err == nil {
			return dh, nil
		}
		// Corrupt entry: fall through and rewrite it.
	} else if err != redis.Nil {
		c.logger.Warn("hours cache read failed", "err", err, "key", key)
	}

	dh, err := c.source.DayHours(ctx, locationID, weekday)
	if err != nil {
		return schedule.DayHours{}, err
	}

	if encoded, err := json.Marshal(dh); err == nil {
		if err := c.rdb.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			c.logger.Warn("hours cache write failed", "err", err, "key", key)
		}
	}
	return dh, nil
}

// Invalidate drops every cached weekday for a location, e.g. after the
// configuration owner changes the schedule.
func (c *CachedResolver) Invalidate(ctx context.Context, locationID string) error {
	if c.rdb == nil {
		return nil
	}
	keys := make([]string, 0, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		keys = append(keys, cacheKey(locationID, wd))
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func cacheKey(locationID string, weekday time.Weekday) string {
	return fmt.Sprintf("hours:%s:%d", locationID, int(weekday))
}
