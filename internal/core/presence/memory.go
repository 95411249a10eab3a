package presence

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"
)

// MemoryStore keeps typing rows in process memory.
type MemoryStore struct {
	ttl   time.Duration
	clock quartz.Clock

	mu   sync.Mutex
	rows map[string]map[string]time.Time
}

// NewMemoryStore creates a store. Zero ttl uses DefaultTTL.
func NewMemoryStore(ttl time.Duration, clock quartz.Clock) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &MemoryStore{
		ttl:   ttl,
		clock: clock,
		rows:  make(map[string]map[string]time.Time),
	}
}

func (m *MemoryStore) Set(_ context.Context, conversationID, username string) error {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.rows[conversationID]
	if !ok {
		conv = make(map[string]time.Time)
		m.rows[conversationID] = conv
	}
	conv[username] = now
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, conversationID, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.rows[conversationID]
	if !ok {
		return nil
	}
	delete(conv, username)
	if len(conv) == 0 {
		delete(m.rows, conversationID)
	}
	return nil
}

func (m *MemoryStore) List(_ context.Context, conversationID string) ([]string, error) {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	return live(m.rows[conversationID], now, m.ttl), nil
}

// Sweep drops rows older than the TTL. List results are the same with or
// without sweeping; this only reclaims memory.
func (m *MemoryStore) Sweep() int {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, conv := range m.rows {
		for username, lastPing := range conv {
			if now.Sub(lastPing) >= m.ttl {
				delete(conv, username)
				removed++
			}
		}
		if len(conv) == 0 {
			delete(m.rows, id)
		}
	}
	return removed
}

// RunSweeper sweeps every interval until ctx is done.
func (m *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration, logger Logger) {
	if interval <= 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m.clock.TickerFunc(ctx, interval, func() error {
		if removed := m.Sweep(); removed > 0 {
			logger.Debug("Swept stale typing rows", zap.Int("removed", removed))
		}
		return nil
	}, "presence", "sweep")
}
