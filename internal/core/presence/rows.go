package presence

import (
	"context"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"

	"github.com/botwire/botwire/internal/core"
)

// RowStore persists typing rows in a shared database so every instance of
// the service sees the same indicators.
type RowStore interface {
	UpsertTyping(ctx context.Context, conversationID, username string, at time.Time) error
	DeleteTyping(ctx context.Context, conversationID, username string) error
	FetchTypingRows(ctx context.Context, conversationID string) ([]core.TypingRow, error)
}

// SharedStore adapts a RowStore to Store, applying the TTL at read time.
type SharedStore struct {
	rows  RowStore
	ttl   time.Duration
	clock quartz.Clock
}

// NewSharedStore wraps rows. Zero ttl uses DefaultTTL.
func NewSharedStore(rows RowStore, ttl time.Duration, clock quartz.Clock) *SharedStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &SharedStore{rows: rows, ttl: ttl, clock: clock}
}

func (s *SharedStore) Set(ctx context.Context, conversationID, username string) error {
	return s.rows.UpsertTyping(ctx, conversationID, username, s.clock.Now())
}

func (s *SharedStore) Clear(ctx context.Context, conversationID, username string) error {
	return s.rows.DeleteTyping(ctx, conversationID, username)
}

func (s *SharedStore) List(ctx context.Context, conversationID string) ([]string, error) {
	rows, err := s.rows.FetchTypingRows(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		if row.LastPingAt.After(latest[row.Username]) {
			latest[row.Username] = row.LastPingAt
		}
	}
	return live(latest, s.clock.Now(), s.ttl), nil
}

// StaleRowDeleter is implemented by row stores that can reclaim expired rows.
type StaleRowDeleter interface {
	DeleteStaleTyping(ctx context.Context, cutoff time.Time) (int64, error)
}

// RunSweeper periodically deletes rows older than the TTL when the row store
// supports it. List results do not depend on it.
func (s *SharedStore) RunSweeper(ctx context.Context, interval time.Duration, logger Logger) {
	deleter, ok := s.rows.(StaleRowDeleter)
	if !ok || interval <= 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s.clock.TickerFunc(ctx, interval, func() error {
		removed, err := deleter.DeleteStaleTyping(ctx, s.clock.Now().Add(-s.ttl))
		if err != nil {
			logger.Debug("Typing sweep failed", zap.Error(err))
			return nil
		}
		if removed > 0 {
			logger.Debug("Swept stale typing rows", zap.Int64("removed", removed))
		}
		return nil
	}, "presence", "sweep")
}
