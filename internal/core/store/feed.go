package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/botwire/botwire/internal/core"
)

// InsertFeedItem appends a post to the global feed.
func (s *Store) InsertFeedItem(ctx context.Context, author, body string, at time.Time) (core.Item, error) {
	if s == nil || s.DB == nil {
		return core.Item{}, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(author) == "" {
		return core.Item{}, errors.New("author is required")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return core.Item{}, fmt.Errorf("generate item id: %w", err)
	}
	item := core.Item{
		ID:         id.String(),
		ResourceID: core.GlobalFeedID,
		Author:     author,
		Body:       body,
		CreatedAt:  at.UTC().Truncate(time.Millisecond),
	}

	if _, err := s.DB.ExecContext(ctx, `
		INSERT INTO feed_items (id, author, body, created_at)
		VALUES (?, ?, ?, ?)
	`, item.ID, item.Author, item.Body, item.CreatedAt.UnixMilli()); err != nil {
		return core.Item{}, fmt.Errorf("insert feed item: %w", err)
	}
	return item, nil
}

// RecentFeedItems returns up to limit feed items, newest first.
func (s *Store) RecentFeedItems(ctx context.Context, limit int) ([]core.Item, error) {
	return s.queryFeed(ctx, "", limit)
}

// SearchFeed returns up to limit feed items whose body contains q, newest first.
func (s *Store) SearchFeed(ctx context.Context, q string, limit int) ([]core.Item, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []core.Item{}, nil
	}
	return s.queryFeed(ctx, q, limit)
}

func (s *Store) queryFeed(ctx context.Context, term string, limit int) ([]core.Item, error) {
	if s == nil || s.DB == nil {
		return nil, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 50
	}

	where := ""
	args := []any{}
	if term != "" {
		where = "WHERE body LIKE ? ESCAPE '\\'"
		args = append(args, "%"+escapeLike(term)+"%")
	}
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, author, body, created_at
		FROM feed_items
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("query feed: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	items := []core.Item{}
	for rows.Next() {
		var (
			item      core.Item
			createdAt int64
		)
		if err := rows.Scan(&item.ID, &item.Author, &item.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("scan feed item: %w", err)
		}
		item.ResourceID = core.GlobalFeedID
		item.CreatedAt = time.UnixMilli(createdAt).UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query feed: %w", err)
	}
	return items, nil
}

func escapeLike(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(term)
}

// FeedSource adapts the feed tables to the stream polling contract.
type FeedSource struct {
	store *Store
}

// Feed returns the stream source for the global feed.
func (s *Store) Feed() FeedSource {
	return FeedSource{store: s}
}

func (f FeedSource) FetchSnapshot(ctx context.Context, _ string, limit int) ([]core.Item, error) {
	items, err := f.store.RecentFeedItems(ctx, limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(items)
	return items, nil
}

func (f FeedSource) FetchRecent(ctx context.Context, _ string, limit int) ([]core.Item, error) {
	return f.store.RecentFeedItems(ctx, limit)
}
