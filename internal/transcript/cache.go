package transcript

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is how long a fetched transcript stays cached.
const DefaultTTL = 2 * time.Hour

const keyPrefix = "Transcript:"

// Cached is a read-through cache in front of a Provider. Lookups go to an
// in-process LRU, then Redis, then the provider. Cache failures are logged
// and never fail a lookup.
type Cached struct {
	next   Provider
	rdb    redis.UniversalClient
	local  *expirable.LRU[string, string]
	ttl    time.Duration
	logger *slog.Logger
}

// NewCached wraps next. A zero ttl selects DefaultTTL; localSize <= 0
// disables the in-process tier.
func NewCached(next Provider, rdb redis.UniversalClient, ttl time.Duration, localSize int, logger *slog.Logger) *Cached {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cached{
		next:   next,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.With("component", "transcript"),
	}
	if localSize > 0 {
		c.local = expirable.NewLRU[string, string](localSize, nil, ttl)
	}
	return c
}

// Transcript implements Provider.
func (c *Cached) Transcript(ctx context.Context, videoID string) (string, bool, error) {
	if c.local != nil {
		if text, ok := c.local.Get(videoID); ok {
			return text, true, nil
		}
	}

	key := keyPrefix + videoID
	text, err := c.rdb.Get(ctx, key).Result()
	switch {
	case err == nil:
		c.remember(videoID, text)
		return text, true, nil
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("transcript cache read failed", slog.String("video_id", videoID), slog.String("error", err.Error()))
	}

	text, found, err := c.next.Transcript(ctx, videoID)
	if err != nil || !found {
		return "", false, err
	}
	if err := c.rdb.Set(ctx, key, text, c.ttl).Err(); err != nil {
		c.logger.Warn("transcript cache write failed", slog.String("video_id", videoID), slog.String("error", err.Error()))
	}
	c.remember(videoID, text)
	return text, true, nil
}

func (c *Cached) remember(videoID, text string) {
	if c.local != nil {
		c.local.Add(videoID, text)
	}
}
