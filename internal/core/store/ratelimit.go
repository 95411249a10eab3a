package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// IncrementBucket counts one request against the (profile, identifier)
// bucket and returns the window start and post-increment count. Rollover
// and increment happen in a single UPSERT so concurrent callers on any
// instance never both observe the same count.
func (s *Store) IncrementBucket(ctx context.Context, profile, identifier string, now time.Time, window time.Duration) (time.Time, int, error) {
	if s == nil || s.DB == nil {
		return time.Time{}, 0, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	profile = strings.TrimSpace(profile)
	if profile == "" || identifier == "" {
		return time.Time{}, 0, errors.New("profile and identifier are required")
	}
	if window <= 0 {
		return time.Time{}, 0, errors.New("window must be positive")
	}

	var (
		windowStart int64
		count       int
	)
	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO rate_limit_buckets (profile, identifier, window_start, window_ms, request_count)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(profile, identifier) DO UPDATE SET
			window_start = CASE
				WHEN excluded.window_start - rate_limit_buckets.window_start >= excluded.window_ms
				THEN excluded.window_start
				ELSE rate_limit_buckets.window_start
			END,
			request_count = CASE
				WHEN excluded.window_start - rate_limit_buckets.window_start >= excluded.window_ms
				THEN 1
				ELSE rate_limit_buckets.request_count + 1
			END,
			window_ms = excluded.window_ms
		RETURNING window_start, request_count
	`, profile, identifier, now.UnixMilli(), window.Milliseconds())

	if err := row.Scan(&windowStart, &count); err != nil {
		return time.Time{}, 0, fmt.Errorf("increment rate limit bucket: %w", err)
	}

	return time.UnixMilli(windowStart).UTC(), count, nil
}

// DeleteExpiredBuckets removes buckets whose window has elapsed.
func (s *Store) DeleteExpiredBuckets(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `
		DELETE FROM rate_limit_buckets
		WHERE ? - window_start >= window_ms
	`, now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete expired rate limit buckets: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete expired rate limit buckets: %w", err)
	}
	return affected, nil
}
