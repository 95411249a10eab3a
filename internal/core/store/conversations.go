package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/botwire/botwire/internal/core"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// CreateConversation stores a DM or room with its participants.
func (s *Store) CreateConversation(ctx context.Context, kind core.ResourceKind, participants []string, at time.Time) (core.Conversation, error) {
	if s == nil || s.DB == nil {
		return core.Conversation{}, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	switch kind {
	case core.ResourceDM:
		if len(participants) != 2 {
			return core.Conversation{}, errors.New("a direct conversation needs exactly two participants")
		}
	case core.ResourceRoom:
		if len(participants) < 2 {
			return core.Conversation{}, errors.New("a room needs at least two participants")
		}
	default:
		return core.Conversation{}, fmt.Errorf("unsupported conversation kind %q", kind)
	}

	members := slices.Clone(participants)
	slices.Sort(members)
	members = slices.Compact(members)

	id, err := uuid.NewV7()
	if err != nil {
		return core.Conversation{}, fmt.Errorf("generate conversation id: %w", err)
	}
	conv := core.Conversation{
		ID:           id.String(),
		Kind:         kind,
		Participants: members,
		CreatedAt:    at.UTC().Truncate(time.Millisecond),
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return core.Conversation{}, fmt.Errorf("begin conversation insert: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (id, kind, created_at) VALUES (?, ?, ?)
	`, conv.ID, string(conv.Kind), conv.CreatedAt.UnixMilli()); err != nil {
		return core.Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}
	for _, member := range members {
		if strings.TrimSpace(member) == "" {
			return core.Conversation{}, errors.New("participant username is required")
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_participants (conversation_id, username) VALUES (?, ?)
		`, conv.ID, member); err != nil {
			return core.Conversation{}, fmt.Errorf("insert participant: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return core.Conversation{}, fmt.Errorf("commit conversation: %w", err)
	}
	return conv, nil
}

// GetConversation loads a conversation and its participants.
func (s *Store) GetConversation(ctx context.Context, id string) (core.Conversation, error) {
	if s == nil || s.DB == nil {
		return core.Conversation{}, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		conv      core.Conversation
		kind      string
		createdAt int64
	)
	row := s.DB.QueryRowContext(ctx, `SELECT id, kind, created_at FROM conversations WHERE id = ?`, id)
	if err := row.Scan(&conv.ID, &kind, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Conversation{}, ErrNotFound
		}
		return core.Conversation{}, fmt.Errorf("fetch conversation: %w", err)
	}
	conv.Kind = core.ResourceKind(kind)
	conv.CreatedAt = time.UnixMilli(createdAt).UTC()

	rows, err := s.DB.QueryContext(ctx, `
		SELECT username FROM conversation_participants
		WHERE conversation_id = ?
		ORDER BY username
	`, id)
	if err != nil {
		return core.Conversation{}, fmt.Errorf("fetch participants: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	for rows.Next() {
		var username string
		if err := rows.Scan(&username); err != nil {
			return core.Conversation{}, fmt.Errorf("scan participant: %w", err)
		}
		conv.Participants = append(conv.Participants, username)
	}
	if err := rows.Err(); err != nil {
		return core.Conversation{}, fmt.Errorf("fetch participants: %w", err)
	}
	return conv, nil
}

// IsParticipant reports whether username belongs to the conversation.
func (s *Store) IsParticipant(ctx context.Context, conversationID, username string) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var one int
	err := s.DB.QueryRowContext(ctx, `
		SELECT 1 FROM conversation_participants
		WHERE conversation_id = ? AND username = ?
	`, conversationID, username).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return true, nil
}

// InsertMessage appends a message to a conversation.
func (s *Store) InsertMessage(ctx context.Context, conversationID, author, body string, at time.Time) (core.Item, error) {
	if s == nil || s.DB == nil {
		return core.Item{}, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	id, err := uuid.NewV7()
	if err != nil {
		return core.Item{}, fmt.Errorf("generate message id: %w", err)
	}
	item := core.Item{
		ID:         id.String(),
		ResourceID: conversationID,
		Author:     author,
		Body:       body,
		CreatedAt:  at.UTC().Truncate(time.Millisecond),
	}

	if _, err := s.DB.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, author, body, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, item.ID, item.ResourceID, item.Author, item.Body, item.CreatedAt.UnixMilli()); err != nil {
		return core.Item{}, fmt.Errorf("insert message: %w", err)
	}
	return item, nil
}

// RecentMessages returns up to limit messages of a conversation, newest first.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, limit int) ([]core.Item, error) {
	if s == nil || s.DB == nil {
		return nil, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, author, body, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	items := []core.Item{}
	for rows.Next() {
		var (
			item      core.Item
			createdAt int64
		)
		if err := rows.Scan(&item.ID, &item.Author, &item.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		item.ResourceID = conversationID
		item.CreatedAt = time.UnixMilli(createdAt).UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	return items, nil
}

// ConversationSource adapts the messages table to the stream polling contract.
type ConversationSource struct {
	store *Store
}

// Conversations returns the stream source for DMs and rooms.
func (s *Store) Conversations() ConversationSource {
	return ConversationSource{store: s}
}

func (c ConversationSource) FetchSnapshot(ctx context.Context, conversationID string, limit int) ([]core.Item, error) {
	items, err := c.store.RecentMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(items)
	return items, nil
}

func (c ConversationSource) FetchRecent(ctx context.Context, conversationID string, limit int) ([]core.Item, error) {
	return c.store.RecentMessages(ctx, conversationID, limit)
}
