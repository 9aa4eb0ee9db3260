package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of a rate limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// FixedWindowLimiter counts hits per key inside a fixed window using INCR and EXPIRE.
type FixedWindowLimiter struct {
	client redis.Cmdable
	prefix string
	limit  int
	window time.Duration
}

// NewFixedWindowLimiter builds a limiter allowing limit hits per window for each key.
func NewFixedWindowLimiter(client redis.Cmdable, prefix string, limit int, window time.Duration) *FixedWindowLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &FixedWindowLimiter{client: client, prefix: prefix, limit: limit, window: window}
}

// Allow registers a hit for key. A nil client or non-positive limit disables limiting.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	if l == nil || l.client == nil || l.limit <= 0 {
		return Decision{Allowed: true, Remaining: -1}, nil
	}

	bucket := time.Now().UTC().Truncate(l.window).Unix()
	redisKey := fmt.Sprintf("ratelimit:%s:%s:%d", l.prefix, key, bucket)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{Allowed: true, Remaining: -1}, fmt.Errorf("rate limit %s: %w", l.prefix, err)
	}

	count := int(incr.Val())
	if count > l.limit {
		windowEnd := time.Unix(bucket, 0).Add(l.window)
		return Decision{Allowed: false, RetryAfter: time.Until(windowEnd)}, nil
	}
	return Decision{Allowed: true, Remaining: l.limit - count}, nil
}
