package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/botwire/botwire/internal/config"
)

const (
	driverLibsql = "libsql"
	memoryPath   = ":memory:"
)

// Store owns the database handle shared by the ledger, the content tables,
// the store-backed rate limiter and shared typing state.
type Store struct {
	DB     *sql.DB
	driver string
}

// target is a resolved libsql connection string. Local targets are embedded
// SQLite files (or :memory:), remote targets are libsql:// or https:// URLs.
type target struct {
	dsn   string
	local bool
}

// Open connects to the configured store and tunes embedded databases.
func Open(ctx context.Context, cfg config.StoreConfig) (*Store, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	driver := strings.TrimSpace(cfg.Driver)
	if driver == "" {
		driver = driverLibsql
	}
	if driver != driverLibsql {
		return nil, fmt.Errorf("unsupported store driver: %s", driver)
	}

	t, err := resolveTarget(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driverLibsql, t.dsn)
	if err != nil {
		return nil, fmt.Errorf("open libsql store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping libsql store: %w", err)
	}
	if t.local {
		if err := tuneLocal(ctx, db, t.dsn == memoryPath); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return &Store{DB: db, driver: driver}, nil
}

// Ping verifies the connection is usable.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store not open")
	}
	return s.DB.PingContext(ctx)
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Driver returns the configured store driver.
func (s *Store) Driver() string {
	if s == nil {
		return ""
	}
	return s.driver
}

func resolveTarget(cfg config.StoreConfig) (target, error) {
	if raw := strings.TrimSpace(cfg.URL); raw != "" {
		dsn, err := withAuthToken(raw, cfg.AuthToken)
		return target{dsn: dsn, local: strings.HasPrefix(dsn, "file:")}, err
	}

	path := strings.TrimSpace(cfg.Path)
	switch {
	case path == "":
		return target{}, errors.New("store path or url is required")
	case path == memoryPath:
		return target{dsn: path, local: true}, nil
	case strings.HasPrefix(path, "libsql:"):
		return target{dsn: path}, nil
	case strings.HasPrefix(path, "file:"):
		u, err := url.Parse(path)
		if err != nil {
			return target{}, fmt.Errorf("invalid store path: %w", err)
		}
		local := u.Path
		if local == "" {
			local = u.Opaque
		}
		if err := ensureParentDir(strings.TrimPrefix(local, "//")); err != nil {
			return target{}, err
		}
		return target{dsn: path, local: true}, nil
	default:
		if err := ensureParentDir(path); err != nil {
			return target{}, err
		}
		return target{dsn: "file:" + filepath.Clean(path), local: true}, nil
	}
}

// tuneLocal pins embedded databases to one connection: SQLite has a single
// writer, and each connection to :memory: would see its own database.
func tuneLocal(ctx context.Context, db *sql.DB, memory bool) error {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if memory {
		return nil
	}

	pragmas := []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"}
	for _, pragma := range pragmas {
		var ignored any
		if err := db.QueryRowContext(ctx, pragma).Scan(&ignored); err != nil {
			return fmt.Errorf("%s: %w", strings.ToLower(pragma), err)
		}
	}
	return nil
}

func withAuthToken(dsn, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return dsn, nil
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("invalid store url: %w", err)
	}
	q := u.Query()
	if q.Get("authToken") == "" {
		q.Set("authToken", token)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(filepath.Clean(path))
	if path == "" || dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	// #nosec G301 -- store directories are shared with operators
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}
	return nil
}
