package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/botwire/botwire/internal/core"
)

// RateLimitQuery selects stored buckets for the admin commands. At least one
// selector must be set; selectors combine with AND.
type RateLimitQuery struct {
	All        bool
	Profile    string
	Identifier string
	// ExpiredAt, when set, matches buckets whose window had elapsed by then.
	ExpiredAt time.Time
}

var errNoSelector = errors.New("must specify --all, --profile, --identifier or --expired")

func (q RateLimitQuery) Validate() error {
	if q.All || strings.TrimSpace(q.Profile) != "" || strings.TrimSpace(q.Identifier) != "" || !q.ExpiredAt.IsZero() {
		return nil
	}
	return errNoSelector
}

func (q RateLimitQuery) where() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var (
		conds []string
		args  []any
	)
	if p := strings.TrimSpace(q.Profile); p != "" {
		conds = append(conds, "profile = ?")
		args = append(args, strings.ToLower(p))
	}
	if id := strings.TrimSpace(q.Identifier); id != "" {
		conds = append(conds, "identifier = ?")
		args = append(args, id)
	}
	if !q.ExpiredAt.IsZero() {
		conds = append(conds, "? - window_start >= window_ms")
		args = append(args, q.ExpiredAt.UnixMilli())
	}
	if len(conds) == 0 {
		return "", nil, nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// ListRateLimits returns matching buckets ordered by profile then identifier.
func (s *Store) ListRateLimits(ctx context.Context, q RateLimitQuery) ([]core.RateLimitBucket, error) {
	if s == nil || s.DB == nil {
		return nil, errNotInitialized
	}
	where, args, err := q.where()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(orBackground(ctx),
		"SELECT profile, identifier, window_start, window_ms, request_count FROM rate_limit_buckets"+
			where+" ORDER BY profile, identifier", args...)
	if err != nil {
		return nil, fmt.Errorf("list rate limits: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	buckets := []core.RateLimitBucket{}
	for rows.Next() {
		var b core.RateLimitBucket
		var startMs, winMs int64
		if err := rows.Scan(&b.Profile, &b.Identifier, &startMs, &winMs, &b.Count); err != nil {
			return nil, fmt.Errorf("scan rate limits: %w", err)
		}
		b.WindowStart = time.UnixMilli(startMs).UTC()
		b.Window = time.Duration(winMs) * time.Millisecond
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rate limits: %w", err)
	}
	return buckets, nil
}

// CountRateLimits reports how many buckets q matches.
func (s *Store) CountRateLimits(ctx context.Context, q RateLimitQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errNotInitialized
	}
	where, args, err := q.where()
	if err != nil {
		return 0, err
	}

	var n int
	if err := s.DB.QueryRowContext(orBackground(ctx), "SELECT COUNT(*) FROM rate_limit_buckets"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rate limits: %w", err)
	}
	return n, nil
}

// ResetRateLimits deletes matching buckets, returning how many were removed.
func (s *Store) ResetRateLimits(ctx context.Context, q RateLimitQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errNotInitialized
	}
	where, args, err := q.where()
	if err != nil {
		return 0, err
	}

	res, err := s.DB.ExecContext(orBackground(ctx), "DELETE FROM rate_limit_buckets"+where, args...)
	if err != nil {
		return 0, fmt.Errorf("reset rate limits: %w", err)
	}
	return res.RowsAffected()
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
