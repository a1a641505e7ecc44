package ratelimiter_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/viewportly/pkg/ratelimiter"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var cfg = ratelimiter.Config{Capacity: 3, RefillRate: 1, RefillInterval: time.Second}

func TestNewBucketValidates(t *testing.T) {
	t.Parallel()
	for _, c := range []ratelimiter.Config{
		{Capacity: 0, RefillRate: 1, RefillInterval: time.Second},
		{Capacity: 1, RefillRate: 0, RefillInterval: time.Second},
		{Capacity: 1, RefillRate: 1},
	} {
		_, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(), c)
		assert.ErrorIs(t, err, ratelimiter.ErrInvalidConfig)
	}

	b, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(), cfg)
	require.NoError(t, err)
	_, err = b.AllowN(context.Background(), "k", 0)
	assert.ErrorIs(t, err, ratelimiter.ErrInvalidTokenCount)
}

func TestMemoryBucket(t *testing.T) {
	t.Parallel()
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	b, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(ratelimiter.WithClock(c.Now)), cfg)
	require.NoError(t, err)
	exerciseBucket(t, b, c.Advance)
}

func TestRedisBucket(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := &clock{now: time.Unix(1_700_000_000, 0)}
	store := ratelimiter.NewRedisStore(client, "test:")
	ratelimiter.SetRedisClock(store, c.Now)

	b, err := ratelimiter.NewBucket(store, cfg)
	require.NoError(t, err)
	exerciseBucket(t, b, c.Advance)
	assert.True(t, mr.Exists("test:user-1"))
}

func exerciseBucket(t *testing.T, b *ratelimiter.Bucket, advance func(time.Duration)) {
	t.Helper()
	ctx := context.Background()

	for i := range 3 {
		res, err := b.Allow(ctx, "user-1")
		require.NoError(t, err)
		assert.True(t, res.Allowed(), "request %d", i)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := b.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, res.Allowed())
	assert.Equal(t, 3, res.Limit)

	other, err := b.Allow(ctx, "user-2")
	require.NoError(t, err)
	assert.True(t, other.Allowed(), "keys are independent")

	advance(time.Second)
	res, err = b.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, res.Allowed(), "one token refilled")
	assert.Equal(t, 0, res.Remaining)

	advance(time.Hour)
	res, err = b.AllowN(ctx, "user-1", 3)
	require.NoError(t, err)
	assert.True(t, res.Allowed(), "refill is capped at capacity")
	assert.Equal(t, 0, res.Remaining)

	require.NoError(t, b.Reset(ctx, "user-1"))
	res, err = b.Allow(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Remaining)
}

func TestMemoryStoreSweepsIdleBuckets(t *testing.T) {
	t.Parallel()
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	store := ratelimiter.NewMemoryStore(ratelimiter.WithClock(c.Now), ratelimiter.WithStaleAfter(time.Minute))
	ctx := context.Background()

	_, _, err := store.ConsumeTokens(ctx, "a", 1, cfg)
	require.NoError(t, err)
	c.Advance(2 * time.Minute)
	_, _, err = store.ConsumeTokens(ctx, "b", 1, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
}

func TestResultRetryAfter(t *testing.T) {
	t.Parallel()
	now := time.Unix(100, 0)
	assert.Zero(t, (&ratelimiter.Result{Remaining: 0, ResetAt: now.Add(time.Second)}).RetryAfter(now))
	assert.Equal(t, time.Second, (&ratelimiter.Result{Remaining: -1, ResetAt: now.Add(time.Second)}).RetryAfter(now))
	assert.Zero(t, (&ratelimiter.Result{Remaining: -1, ResetAt: now.Add(-time.Second)}).RetryAfter(now))
}
