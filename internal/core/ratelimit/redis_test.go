package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coder/quartz"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedisLimiter(t *testing.T) (*RedisLimiter, *miniredis.Miniredis, *quartz.Mock) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	clock := quartz.NewMock(t)
	return NewRedisLimiter(client, "", clock), mr, clock
}

func TestRedisLimiterWindow(t *testing.T) {
	ctx := context.Background()
	limiter, mr, clock := newRedisLimiter(t)

	for i := 1; i <= testProfile.MaxRequests; i++ {
		d, err := limiter.Check(ctx, testProfile, "10.0.0.1")
		require.NoError(t, err)
		require.True(t, d.Allowed)
		require.Equal(t, testProfile.MaxRequests-i, d.Remaining)
		require.Equal(t, clock.Now().Add(time.Minute), d.ResetAt)
	}

	d, err := limiter.Check(ctx, testProfile, "10.0.0.1")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, 0, d.Remaining)

	require.True(t, mr.Exists(DefaultRedisKeyPrefix+":test:10.0.0.1"))

	mr.FastForward(time.Minute)
	require.False(t, mr.Exists(DefaultRedisKeyPrefix+":test:10.0.0.1"))

	d, err = limiter.Check(ctx, testProfile, "10.0.0.1")
	require.NoError(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, testProfile.MaxRequests-1, d.Remaining)
}

func TestRedisLimiterNoDoubleAdmit(t *testing.T) {
	ctx := context.Background()
	limiter, _, _ := newRedisLimiter(t)
	profile := Profile{Name: "burst", MaxRequests: 5, Window: time.Minute}

	var (
		wg       sync.WaitGroup
		admitted atomic.Int64
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := limiter.Check(ctx, profile, "hammer")
			if err == nil && d.Allowed {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(profile.MaxRequests), admitted.Load())
}

func TestRedisLimiterFailsOpen(t *testing.T) {
	limiter, mr, _ := newRedisLimiter(t)
	mr.Close()

	d, err := limiter.Check(context.Background(), testProfile, "10.0.0.1")
	require.Error(t, err)
	require.True(t, d.Allowed)
	require.Equal(t, testProfile.MaxRequests, d.Remaining)
}
