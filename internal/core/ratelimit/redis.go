package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coder/quartz"
	"github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the window counter and starts the window
// expiry on the first hit. Redis evaluates the whole script atomically, so
// two concurrent requests can never both observe the same count.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// DefaultRedisKeyPrefix namespaces limiter keys.
const DefaultRedisKeyPrefix = "botwire:ratelimit"

// RedisLimiter is a fixed-window limiter shared across instances through
// Redis. Buckets expire with their window, which bounds memory to active
// identifiers.
type RedisLimiter struct {
	client redis.Scripter
	prefix string
	clock  quartz.Clock
}

// NewRedisLimiter creates a limiter using client. An empty prefix uses
// DefaultRedisKeyPrefix.
func NewRedisLimiter(client redis.Scripter, prefix string, clock quartz.Clock) *RedisLimiter {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &RedisLimiter{client: client, prefix: prefix, clock: clock}
}

// Check fails open on Redis errors. The error is returned alongside the
// permissive decision for the caller to log.
func (r *RedisLimiter) Check(ctx context.Context, profile Profile, identifier string) (Decision, error) {
	now := r.clock.Now()

	res, err := fixedWindowScript.Run(ctx, r.client, []string{r.key(profile, identifier)}, profile.Window.Milliseconds()).Int64Slice()
	if err == nil && len(res) != 2 {
		err = fmt.Errorf("unexpected rate limit script reply: %v", res)
	}
	if err != nil {
		return failOpen(profile, now), err
	}

	count := int(res[0])
	ttl := time.Duration(res[1]) * time.Millisecond
	windowStart := now.Add(ttl).Add(-profile.Window)

	return decide(profile, windowStart, count), nil
}

func (r *RedisLimiter) key(profile Profile, identifier string) string {
	return r.prefix + ":" + profile.Name + ":" + identifier
}
