package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botwire/botwire/internal/config"
)

func TestResolveTarget(t *testing.T) {
	dir := t.TempDir()

	cases := []struct {
		name      string
		cfg       config.StoreConfig
		wantDSN   string
		wantLocal bool
	}{
		{
			name:    "remote url gets token",
			cfg:     config.StoreConfig{URL: "libsql://botwire.turso.io", AuthToken: "tok"},
			wantDSN: "libsql://botwire.turso.io?authToken=tok",
		},
		{
			name:    "existing query kept",
			cfg:     config.StoreConfig{URL: "libsql://botwire.turso.io?tls=1", AuthToken: "tok"},
			wantDSN: "libsql://botwire.turso.io?authToken=tok&tls=1",
		},
		{
			name:    "explicit token wins",
			cfg:     config.StoreConfig{URL: "libsql://botwire.turso.io?authToken=mine", AuthToken: "tok"},
			wantDSN: "libsql://botwire.turso.io?authToken=mine",
		},
		{
			name:      "memory",
			cfg:       config.StoreConfig{Path: ":memory:"},
			wantDSN:   ":memory:",
			wantLocal: true,
		},
		{
			name:      "file prefix",
			cfg:       config.StoreConfig{Path: "file:./botwire.db"},
			wantDSN:   "file:./botwire.db",
			wantLocal: true,
		},
		{
			name:      "bare path",
			cfg:       config.StoreConfig{Path: filepath.Join(dir, "data", "botwire.db")},
			wantDSN:   "file:" + filepath.Join(dir, "data", "botwire.db"),
			wantLocal: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveTarget(tc.cfg)
			require.NoError(t, err)
			assert.Equal(t, tc.wantDSN, got.dsn)
			assert.Equal(t, tc.wantLocal, got.local)
		})
	}

	assert.DirExists(t, filepath.Join(dir, "data"))
}

func TestResolveTargetRequiresLocation(t *testing.T) {
	_, err := resolveTarget(config.StoreConfig{Path: "  "})
	require.Error(t, err)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "postgres", Path: ":memory:"})
	require.ErrorContains(t, err, "unsupported store driver")
}

func TestNilStoreIsSafe(t *testing.T) {
	var s *Store
	assert.NoError(t, s.Close())
	assert.Empty(t, s.Driver())
	assert.Error(t, s.Ping(context.Background()))
}
