package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter reports whether another request for key fits in the current budget.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	// RetryAfter is the advertised wait for a rejected client.
	RetryAfter() time.Duration
}

const keyPrefix = "ratelimit:guest-token"

type redisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	now    func() time.Time
}

func NewRedisClient(url string, poolSize int) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	if poolSize > 0 {
		opt.PoolSize = poolSize
	}

	client := redis.NewClient(opt)

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// NewRedisLimiter counts requests per key in fixed windows shared by every
// relay instance pointing at the same Redis.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) Limiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &redisLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
		now:    time.Now,
	}
}

func (r *redisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	bucket := r.now().UnixNano() / int64(r.window)
	windowKey := fmt.Sprintf("%s:%s:%d", keyPrefix, key, bucket)

	pipe := r.client.TxPipeline()
	count := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, r.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	return count.Val() <= r.limit, nil
}

func (r *redisLimiter) RetryAfter() time.Duration {
	return r.window
}
