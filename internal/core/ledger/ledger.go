// Package ledger guards paid sends with an atomic token debit.
package ledger

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// MessageClass selects the static cost of a send.
type MessageClass string

const (
	ClassBroadcast MessageClass = "broadcast"
	ClassDirect    MessageClass = "direct"
	ClassGroup     MessageClass = "group"
)

// DefaultCosts is the token price of each message class.
var DefaultCosts = map[MessageClass]int64{
	ClassBroadcast: 1,
	ClassDirect:    1,
	ClassGroup:     1,
}

// BalanceStore is implemented by the persistent token ledger.
//
// DebitBalance must subtract cost only when balance >= cost, as one
// conditional write, and report whether a row changed.
type BalanceStore interface {
	DebitBalance(ctx context.Context, bot string, cost int64) (bool, error)
	CreditBalance(ctx context.Context, bot string, amount int64) error
	Balance(ctx context.Context, bot string) (int64, error)
}

// Logger is the subset of the structured logger the guard uses.
type Logger interface {
	Warn(msg string, fields ...zap.Field)
}

// InsufficientTokensError reports a rejected debit.
type InsufficientTokensError struct {
	Bot      string
	Required int64
	Balance  int64
}

func (e *InsufficientTokensError) Error() string {
	return fmt.Sprintf("insufficient tokens for %s: required %d, balance %d", e.Bot, e.Required, e.Balance)
}

// ParseClass resolves a configured class name.
func ParseClass(name string) (MessageClass, error) {
	class := MessageClass(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := DefaultCosts[class]; !ok {
		return "", fmt.Errorf("unknown message class %q", name)
	}
	return class, nil
}
