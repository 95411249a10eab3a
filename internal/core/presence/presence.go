// Package presence tracks ephemeral "who is typing" state per conversation.
//
// Staleness is judged only when reading: a participant is typing iff its
// last ping is younger than the TTL. Nothing has to delete rows for List to
// be correct.
package presence

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// DefaultTTL is how long a typing ping stays visible.
const DefaultTTL = 10 * time.Second

// Store is the typing indicator contract.
type Store interface {
	Set(ctx context.Context, conversationID, username string) error
	Clear(ctx context.Context, conversationID, username string) error
	List(ctx context.Context, conversationID string) ([]string, error)
}

// Logger is the subset of the structured logger used by the sweeper.
type Logger interface {
	Debug(msg string, fields ...zap.Field)
}

// ErrForbidden marks presence mutations by a caller that does not own the row
// or does not participate in the conversation.
var ErrForbidden = errors.New("presence mutation forbidden")

// ParticipantChecker answers conversation membership questions.
type ParticipantChecker interface {
	IsParticipant(ctx context.Context, conversationID, username string) (bool, error)
}

// Authorize checks that actor may touch username's typing row in
// conversationID. The store itself never enforces this.
func Authorize(ctx context.Context, checker ParticipantChecker, conversationID, actor, username string) error {
	if actor == "" || actor != username {
		return fmt.Errorf("%w: %s cannot change typing state of %s", ErrForbidden, actor, username)
	}
	ok, err := checker.IsParticipant(ctx, conversationID, actor)
	if err != nil {
		return fmt.Errorf("check participant: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s is not a participant of %s", ErrForbidden, actor, conversationID)
	}
	return nil
}

func live(rows map[string]time.Time, now time.Time, ttl time.Duration) []string {
	users := make([]string, 0, len(rows))
	for username, lastPing := range rows {
		if now.Sub(lastPing) < ttl {
			users = append(users, username)
		}
	}
	sort.Strings(users)
	return users
}
