package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

const apiKeyPrefix = "bw_"

// ErrBotExists is returned when creating a bot whose username is taken.
var ErrBotExists = errors.New("bot already exists")

// Bot is a registered bot account.
type Bot struct {
	Username  string    `json:"username"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
}

// HashAPIKey returns the stored form of an API key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func newAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return apiKeyPrefix + hex.EncodeToString(buf), nil
}

// CreateBot registers username with an initial balance and returns its API
// key. The key is not recoverable afterwards.
func (s *Store) CreateBot(ctx context.Context, username string, balance int64, at time.Time) (string, error) {
	if s == nil || s.DB == nil {
		return "", errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	username = strings.TrimSpace(username)
	if username == "" {
		return "", errors.New("username is required")
	}
	if balance < 0 {
		return "", errors.New("balance cannot be negative")
	}

	key, err := newAPIKey()
	if err != nil {
		return "", err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin bot insert: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM bots WHERE username = ?`, username).Scan(&exists)
	if err == nil {
		return "", fmt.Errorf("%w: %s", ErrBotExists, username)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("check bot: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO bots (username, api_key_hash, created_at) VALUES (?, ?, ?)
	`, username, HashAPIKey(key), at.UnixMilli()); err != nil {
		return "", fmt.Errorf("insert bot: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO token_balances (bot, balance, updated_at) VALUES (?, ?, ?)
	`, username, balance, at.UnixMilli()); err != nil {
		return "", fmt.Errorf("insert balance: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit bot: %w", err)
	}
	return key, nil
}

// BotByAPIKey resolves an API key to its bot username.
func (s *Store) BotByAPIKey(ctx context.Context, key string) (string, error) {
	if s == nil || s.DB == nil {
		return "", errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !strings.HasPrefix(key, apiKeyPrefix) {
		return "", ErrNotFound
	}

	var username string
	err := s.DB.QueryRowContext(ctx, `SELECT username FROM bots WHERE api_key_hash = ?`, HashAPIKey(key)).Scan(&username)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup api key: %w", err)
	}
	return username, nil
}

// ListBots returns every bot with its balance.
func (s *Store) ListBots(ctx context.Context) ([]Bot, error) {
	if s == nil || s.DB == nil {
		return nil, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT b.username, COALESCE(t.balance, 0), b.created_at
		FROM bots b
		LEFT JOIN token_balances t ON t.bot = b.username
		ORDER BY b.username
	`)
	if err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	bots := []Bot{}
	for rows.Next() {
		var (
			bot       Bot
			createdAt int64
		)
		if err := rows.Scan(&bot.Username, &bot.Balance, &createdAt); err != nil {
			return nil, fmt.Errorf("scan bot: %w", err)
		}
		bot.CreatedAt = time.UnixMilli(createdAt).UTC()
		bots = append(bots, bot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list bots: %w", err)
	}
	return bots, nil
}

// DebitBalance subtracts cost when the balance covers it. The check and the
// write are one statement; false means the balance was insufficient or the
// bot has no ledger row.
func (s *Store) DebitBalance(ctx context.Context, bot string, cost int64) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if cost <= 0 {
		return false, errors.New("cost must be positive")
	}

	result, err := s.DB.ExecContext(ctx, `
		UPDATE token_balances
		SET balance = balance - ?, updated_at = ?
		WHERE bot = ? AND balance >= ?
	`, cost, time.Now().UnixMilli(), bot, cost)
	if err != nil {
		return false, fmt.Errorf("debit balance: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("debit balance: %w", err)
	}
	return affected == 1, nil
}

// CreditBalance adds amount to a bot's balance, creating the row if needed.
func (s *Store) CreditBalance(ctx context.Context, bot string, amount int64) error {
	if s == nil || s.DB == nil {
		return errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if amount <= 0 {
		return errors.New("amount must be positive")
	}

	if _, err := s.DB.ExecContext(ctx, `
		INSERT INTO token_balances (bot, balance, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(bot) DO UPDATE SET
			balance = token_balances.balance + excluded.balance,
			updated_at = excluded.updated_at
	`, bot, amount, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	return nil
}

// Balance returns a bot's token balance, or ErrNotFound.
func (s *Store) Balance(ctx context.Context, bot string) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errNotInitialized
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var balance int64
	err := s.DB.QueryRowContext(ctx, `SELECT balance FROM token_balances WHERE bot = ?`, bot).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("fetch balance: %w", err)
	}
	return balance, nil
}
