package ratelimit

import (
	"context"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"
)

// BucketStore performs the read-increment-compare on a shared store as one
// atomic operation. It returns the window start and post-increment count.
type BucketStore interface {
	IncrementBucket(ctx context.Context, profile, identifier string, now time.Time, window time.Duration) (windowStart time.Time, count int, err error)
	DeleteExpiredBuckets(ctx context.Context, now time.Time) (int64, error)
}

// StoreLimiter is a fixed-window limiter whose counters live in a shared
// database, so every instance of the service sees the same buckets.
type StoreLimiter struct {
	store  BucketStore
	clock  quartz.Clock
	logger Logger
}

// NewStoreLimiter wraps a BucketStore.
func NewStoreLimiter(store BucketStore, clock quartz.Clock, logger Logger) *StoreLimiter {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreLimiter{store: store, clock: clock, logger: logger}
}

// Check fails open on store errors. The error is returned alongside the
// permissive decision for the caller to log.
func (s *StoreLimiter) Check(ctx context.Context, profile Profile, identifier string) (Decision, error) {
	now := s.clock.Now()

	windowStart, count, err := s.store.IncrementBucket(ctx, profile.Name, identifier, now, profile.Window)
	if err != nil {
		return failOpen(profile, now), err
	}

	return decide(profile, windowStart, count), nil
}

// RunSweeper deletes expired bucket rows every interval until ctx is done.
func (s *StoreLimiter) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.clock.TickerFunc(ctx, interval, func() error {
		removed, err := s.store.DeleteExpiredBuckets(ctx, s.clock.Now())
		if err != nil {
			s.logger.Warn("Failed to evict expired rate limit buckets", zap.Error(err))
			return nil
		}
		if removed > 0 {
			s.logger.Debug("Evicted expired rate limit buckets", zap.Int64("removed", removed))
		}
		return nil
	}, "ratelimit", "sweep")
}
