package store

import (
	"context"
	"fmt"
	"time"

	"github.com/botwire/botwire/internal/core"
)

// UpsertTyping records a typing ping.
func (s *Store) UpsertTyping(ctx context.Context, conversationID, username string, at time.Time) error {
	if s == nil || s.DB == nil {
		return errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO typing_indicators (conversation_id, username, last_ping_at)
		VALUES (?, ?, ?)
		ON CONFLICT(conversation_id, username) DO UPDATE SET
			last_ping_at = excluded.last_ping_at
	`, conversationID, username, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert typing indicator: %w", err)
	}
	return nil
}

// DeleteTyping removes a typing row if present.
func (s *Store) DeleteTyping(ctx context.Context, conversationID, username string) error {
	if s == nil || s.DB == nil {
		return errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if _, err := s.DB.ExecContext(ctx, `
		DELETE FROM typing_indicators WHERE conversation_id = ? AND username = ?
	`, conversationID, username); err != nil {
		return fmt.Errorf("delete typing indicator: %w", err)
	}
	return nil
}

// FetchTypingRows returns every typing row of a conversation, stale or not.
func (s *Store) FetchTypingRows(ctx context.Context, conversationID string) ([]core.TypingRow, error) {
	if s == nil || s.DB == nil {
		return nil, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT username, last_ping_at FROM typing_indicators
		WHERE conversation_id = ?
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("fetch typing rows: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	out := []core.TypingRow{}
	for rows.Next() {
		var (
			row core.TypingRow
			at  int64
		)
		if err := rows.Scan(&row.Username, &at); err != nil {
			return nil, fmt.Errorf("scan typing row: %w", err)
		}
		row.ConversationID = conversationID
		row.LastPingAt = time.UnixMilli(at).UTC()
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch typing rows: %w", err)
	}
	return out, nil
}

// DeleteStaleTyping removes rows whose last ping is at or before cutoff.
func (s *Store) DeleteStaleTyping(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM typing_indicators WHERE last_ping_at <= ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete stale typing rows: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete stale typing rows: %w", err)
	}
	return affected, nil
}
