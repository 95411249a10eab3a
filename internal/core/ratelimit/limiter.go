package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// Limiter admits or rejects a request for a profile and identifier.
//
// Implementations backed by a shared store return an allowed Decision
// together with the store error, so callers can log the failure and let
// the request through.
type Limiter interface {
	Check(ctx context.Context, profile Profile, identifier string) (Decision, error)
}

// Logger is the subset of the structured logger used by limiters.
type Logger interface {
	Warn(msg string, fields ...zap.Field)
	Debug(msg string, fields ...zap.Field)
}

func decide(profile Profile, windowStart time.Time, count int) Decision {
	remaining := profile.MaxRequests - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= profile.MaxRequests,
		Remaining: remaining,
		Limit:     profile.MaxRequests,
		ResetAt:   windowStart.Add(profile.Window),
	}
}

// failOpen is returned alongside store errors.
func failOpen(profile Profile, now time.Time) Decision {
	return Decision{
		Allowed:   true,
		Remaining: profile.MaxRequests,
		Limit:     profile.MaxRequests,
		ResetAt:   now.Add(profile.Window),
	}
}

type bucketKey struct {
	profile    string
	identifier string
}

type bucket struct {
	windowStart time.Time
	window      time.Duration
	count       int
}

// MemoryLimiter is an in-process fixed-window limiter. It is only correct
// for a single runtime instance; several instances each count separately.
type MemoryLimiter struct {
	clock quartz.Clock

	mu      sync.Mutex
	buckets map[bucketKey]*bucket
}

// NewMemoryLimiter creates a limiter using the given clock (nil for real time).
func NewMemoryLimiter(clock quartz.Clock) *MemoryLimiter {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &MemoryLimiter{
		clock:   clock,
		buckets: make(map[bucketKey]*bucket),
	}
}

// Check increments the bucket for (profile, identifier) and reports the result.
func (m *MemoryLimiter) Check(_ context.Context, profile Profile, identifier string) (Decision, error) {
	now := m.clock.Now()
	key := bucketKey{profile: profile.Name, identifier: identifier}

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok || now.Sub(b.windowStart) >= profile.Window {
		b = &bucket{windowStart: now, window: profile.Window}
		m.buckets[key] = b
	}
	b.count++

	return decide(profile, b.windowStart, b.count), nil
}

// Sweep evicts buckets whose window has elapsed and returns how many were removed.
func (m *MemoryLimiter) Sweep() int {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, b := range m.buckets {
		if now.Sub(b.windowStart) >= b.window {
			delete(m.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of live buckets.
func (m *MemoryLimiter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// RunSweeper evicts idle buckets every interval until ctx is done.
func (m *MemoryLimiter) RunSweeper(ctx context.Context, interval time.Duration, logger Logger) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m.clock.TickerFunc(ctx, interval, func() error {
		if removed := m.Sweep(); removed > 0 {
			logger.Debug("Evicted idle rate limit buckets", zap.Int("removed", removed))
		}
		return nil
	}, "ratelimit", "sweep")
}
