package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"

	"github.com/botwire/botwire/internal/core"
)

func TestMemoryStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	clock := quartz.NewMock(t)
	store := NewMemoryStore(0, clock)

	require.NoError(t, store.Set(ctx, "c1", "bot1"))
	users, err := store.List(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, []string{"bot1"}, users)

	clock.Advance(DefaultTTL - time.Millisecond)
	users, err = store.List(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, []string{"bot1"}, users)

	clock.Advance(time.Millisecond)
	users, err = store.List(ctx, "c1")
	require.NoError(t, err)
	require.Empty(t, users)
}

func TestMemoryStoreSetRefreshesPing(t *testing.T) {
	ctx := context.Background()
	clock := quartz.NewMock(t)
	store := NewMemoryStore(10*time.Second, clock)

	require.NoError(t, store.Set(ctx, "c1", "bot1"))
	clock.Advance(8 * time.Second)
	require.NoError(t, store.Set(ctx, "c1", "bot1"))
	require.NoError(t, store.Set(ctx, "c1", "bot2"))
	clock.Advance(8 * time.Second)

	users, err := store.List(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, []string{"bot1", "bot2"}, users)
}

func TestMemoryStoreClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0, quartz.NewMock(t))

	require.NoError(t, store.Clear(ctx, "c1", "ghost"))
	require.NoError(t, store.Set(ctx, "c1", "bot1"))
	require.NoError(t, store.Set(ctx, "c2", "bot1"))
	require.NoError(t, store.Clear(ctx, "c1", "bot1"))

	users, err := store.List(ctx, "c1")
	require.NoError(t, err)
	require.Empty(t, users)

	users, err = store.List(ctx, "c2")
	require.NoError(t, err)
	require.Equal(t, []string{"bot1"}, users)
}

func TestMemoryStoreSweepKeepsListStable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clock := quartz.NewMock(t)
	store := NewMemoryStore(10*time.Second, clock)
	require.NoError(t, store.Set(ctx, "c1", "stale"))
	clock.Advance(5 * time.Second)
	require.NoError(t, store.Set(ctx, "c1", "fresh"))

	store.RunSweeper(ctx, 6*time.Second, nil)
	clock.Advance(6 * time.Second).MustWait(ctx)

	store.mu.Lock()
	require.Len(t, store.rows["c1"], 1)
	store.mu.Unlock()

	users, err := store.List(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, []string{"fresh"}, users)
}

type fakeRows struct {
	rows []core.TypingRow
	err  error
}

func (f *fakeRows) UpsertTyping(_ context.Context, conversationID, username string, at time.Time) error {
	for i, row := range f.rows {
		if row.ConversationID == conversationID && row.Username == username {
			f.rows[i].LastPingAt = at
			return nil
		}
	}
	f.rows = append(f.rows, core.TypingRow{ConversationID: conversationID, Username: username, LastPingAt: at})
	return nil
}

func (f *fakeRows) DeleteTyping(_ context.Context, conversationID, username string) error {
	kept := f.rows[:0]
	for _, row := range f.rows {
		if row.ConversationID != conversationID || row.Username != username {
			kept = append(kept, row)
		}
	}
	f.rows = kept
	return nil
}

func (f *fakeRows) FetchTypingRows(_ context.Context, conversationID string) ([]core.TypingRow, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []core.TypingRow
	for _, row := range f.rows {
		if row.ConversationID == conversationID {
			out = append(out, row)
		}
	}
	return out, nil
}

func TestSharedStoreTTLExpiry(t *testing.T) {
	ctx := context.Background()
	clock := quartz.NewMock(t)
	rows := &fakeRows{}
	store := NewSharedStore(rows, 0, clock)

	require.NoError(t, store.Set(ctx, "c1", "bot1"))
	users, err := store.List(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, []string{"bot1"}, users)

	clock.Advance(11 * time.Second)
	users, err = store.List(ctx, "c1")
	require.NoError(t, err)
	require.Empty(t, users)
	require.Len(t, rows.rows, 1, "stale rows are filtered, not deleted")

	require.NoError(t, store.Clear(ctx, "c1", "bot1"))
	require.Empty(t, rows.rows)
}

func TestSharedStorePropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	store := NewSharedStore(&fakeRows{err: boom}, 0, quartz.NewMock(t))

	_, err := store.List(context.Background(), "c1")
	require.ErrorIs(t, err, boom)
}

type fakeParticipants map[string][]string

func (f fakeParticipants) IsParticipant(_ context.Context, conversationID, username string) (bool, error) {
	for _, p := range f[conversationID] {
		if p == username {
			return true, nil
		}
	}
	return false, nil
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	checker := fakeParticipants{"c1": {"bot1", "bot2"}}

	require.NoError(t, Authorize(ctx, checker, "c1", "bot1", "bot1"))
	require.ErrorIs(t, Authorize(ctx, checker, "c1", "bot1", "bot2"), ErrForbidden)
	require.ErrorIs(t, Authorize(ctx, checker, "c1", "bot3", "bot3"), ErrForbidden)
	require.ErrorIs(t, Authorize(ctx, checker, "c1", "", ""), ErrForbidden)
}
