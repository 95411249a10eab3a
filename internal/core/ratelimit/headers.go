package ratelimit

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

// Response header names.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// WriteHeaders attaches the post-increment decision to h. Rejections also
// get Retry-After in whole seconds, never less than one.
func WriteHeaders(h http.Header, d Decision, now time.Time) {
	h.Set(HeaderLimit, strconv.Itoa(d.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(d.Remaining))
	h.Set(HeaderReset, strconv.FormatInt(d.ResetAt.Unix(), 10))
	if !d.Allowed {
		h.Set(HeaderRemaining, "0")
		h.Set(HeaderRetryAfter, strconv.Itoa(RetryAfterSeconds(d, now)))
	}
}

// RetryAfterSeconds is the wait until the window resets, rounded up.
func RetryAfterSeconds(d Decision, now time.Time) int {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return 1
	}
	seconds := int(math.Ceil(wait.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}
