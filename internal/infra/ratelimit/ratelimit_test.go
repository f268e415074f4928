package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisLimiter(t *testing.T, limit int, window time.Duration) (*redisLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	fixed := time.Date(2026, 1, 1, 12, 0, 30, 0, time.UTC)
	l := NewRedisLimiter(client, limit, window).(*redisLimiter)
	l.now = func() time.Time { return fixed }
	return l, mr
}

func TestRedisLimiter_Allow(t *testing.T) {
	t.Run("rejects once the window budget is spent", func(t *testing.T) {
		l, _ := setupRedisLimiter(t, 2, time.Minute)
		ctx := context.Background()

		for i := range 2 {
			ok, err := l.Allow(ctx, "10.0.0.1")
			require.NoError(t, err)
			assert.True(t, ok, "request %d should pass", i)
		}

		ok, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("keys are counted independently", func(t *testing.T) {
		l, _ := setupRedisLimiter(t, 1, time.Minute)
		ctx := context.Background()

		ok, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = l.Allow(ctx, "10.0.0.2")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("next window starts fresh", func(t *testing.T) {
		l, _ := setupRedisLimiter(t, 1, time.Minute)
		ctx := context.Background()

		ok, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)

		later := l.now().Add(time.Minute)
		l.now = func() time.Time { return later }

		ok, err = l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("counter keys expire with the window", func(t *testing.T) {
		l, mr := setupRedisLimiter(t, 5, time.Minute)

		_, err := l.Allow(context.Background(), "10.0.0.1")
		require.NoError(t, err)

		keys := mr.Keys()
		require.Len(t, keys, 1)
		assert.Equal(t, time.Minute, mr.TTL(keys[0]))
	})

	t.Run("non-positive limit admits one request per window", func(t *testing.T) {
		l, _ := setupRedisLimiter(t, 0, time.Minute)
		ctx := context.Background()

		ok, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("returns error when redis is down", func(t *testing.T) {
		l, mr := setupRedisLimiter(t, 5, time.Minute)
		mr.Close()

		_, err := l.Allow(context.Background(), "10.0.0.1")
		require.Error(t, err)
	})
}

func TestMemoryLimiter_Allow(t *testing.T) {
	l := NewMemoryLimiter(2, time.Hour, 0)
	ctx := context.Background()

	for range 2 {
		ok, err := l.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = l.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLimiter_RetryAfter(t *testing.T) {
	assert.Equal(t, 30*time.Second, NewMemoryLimiter(2, time.Minute, 0).RetryAfter())
	assert.Equal(t, time.Second, NewMemoryLimiter(100, time.Second, 0).RetryAfter())
}

func TestMemoryLimiter_NonPositiveLimit(t *testing.T) {
	l := NewMemoryLimiter(0, time.Hour, 0)
	ctx := context.Background()

	ok, err := l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)
}
