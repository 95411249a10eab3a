package store

import (
	"context"
	"errors"
	"fmt"
)

var errNotInitialized = errors.New("store is not initialized")

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS bots (
		username TEXT PRIMARY KEY,
		api_key_hash TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS token_balances (
		bot TEXT PRIMARY KEY,
		balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
		updated_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS feed_items (
		id TEXT PRIMARY KEY,
		author TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_feed_items_created ON feed_items(created_at DESC, id DESC);`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS conversation_participants (
		conversation_id TEXT NOT NULL,
		username TEXT NOT NULL,
		PRIMARY KEY (conversation_id, username)
	);`,
	`CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		author TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at DESC, id DESC);`,
	`CREATE TABLE IF NOT EXISTS typing_indicators (
		conversation_id TEXT NOT NULL,
		username TEXT NOT NULL,
		last_ping_at INTEGER NOT NULL,
		PRIMARY KEY (conversation_id, username)
	);`,
	`CREATE TABLE IF NOT EXISTS rate_limit_buckets (
		profile TEXT NOT NULL,
		identifier TEXT NOT NULL,
		window_start INTEGER NOT NULL,
		window_ms INTEGER NOT NULL,
		request_count INTEGER NOT NULL,
		PRIMARY KEY (profile, identifier)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_rate_limit_buckets_window ON rate_limit_buckets(window_start);`,
}

// Migrate ensures the required database tables exist.
func (s *Store) Migrate(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errNotInitialized
	}

	if ctx == nil {
		ctx = context.Background()
	}

	for _, stmt := range schemaStatements {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store migration failed: %w", err)
		}
	}

	return nil
}
