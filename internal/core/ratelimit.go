package core

import "time"

// RateLimitBucket captures the fixed-window counter for one
// (profile, identifier) pair.
type RateLimitBucket struct {
	Profile     string        `json:"profile"`
	Identifier  string        `json:"identifier"`
	WindowStart time.Time     `json:"window_start"`
	Window      time.Duration `json:"window"`
	Count       int           `json:"count"`
}

// ResetAt returns the instant the bucket's window rolls over.
func (b RateLimitBucket) ResetAt() time.Time {
	return b.WindowStart.Add(b.Window)
}
