package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	return v
}

func TestLoad(t *testing.T) {
	t.Run("LoadDefaults", func(t *testing.T) {
		t.Setenv("XDG_DATA_HOME", t.TempDir())

		cfg, err := Load(newViper(t))
		require.NoError(t, err)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
		assert.False(t, cfg.Server.TrustProxyHeaders, "forwarding headers are untrusted by default")

		assert.Equal(t, "libsql", cfg.Store.Driver)
		expectedStorePath := filepath.Join(gfconfig.GetAppDataDir("botwire"), "botwire.db")
		assert.Equal(t, expectedStorePath, cfg.Store.Path)

		assert.Equal(t, "memory", cfg.RateLimit.Backend)
		assert.Equal(t, ProfileConfig{MaxRequests: 120, Window: time.Minute}, cfg.RateLimit.Profiles["public_read"])
		assert.Equal(t, ProfileConfig{MaxRequests: 20, Window: time.Minute}, cfg.RateLimit.Profiles["search"])
		assert.Len(t, cfg.RateLimit.Profiles, 4)

		assert.Equal(t, 3*time.Second, cfg.Stream.PollInterval)
		assert.Equal(t, 30*time.Second, cfg.Stream.MaxPollInterval)
		assert.Equal(t, 5*time.Minute, cfg.Stream.MaxLifetime)
		assert.Equal(t, 5, cfg.Stream.MaxConsecutiveErrors)

		assert.Equal(t, 10*time.Second, cfg.Typing.TTL)
		assert.Equal(t, int64(1), cfg.Tokens.Costs["direct"])

		assert.Same(t, cfg, GetConfig())
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("BOTWIRE_SERVER_PORT", "3000")
		t.Setenv("BOTWIRE_STREAM_POLL_INTERVAL", "5s")
		t.Setenv("BOTWIRE_RATE_LIMIT_BACKEND", "store")
		t.Setenv("BOTWIRE_RATE_LIMIT_PROFILES_SEARCH_MAX_REQUESTS", "5")
		t.Setenv("BOTWIRE_METRICS_ENABLED", "false")
		t.Setenv("BOTWIRE_SERVER_TRUST_PROXY_HEADERS", "true")

		cfg, err := Load(newViper(t))
		require.NoError(t, err)
		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, 5*time.Second, cfg.Stream.PollInterval)
		assert.Equal(t, "store", cfg.RateLimit.Backend)
		assert.Equal(t, 5, cfg.RateLimit.Profiles["search"].MaxRequests)
		assert.False(t, cfg.Metrics.Enabled)
		assert.True(t, cfg.Server.TrustProxyHeaders)
	})

	t.Run("ConfigFilePrecedence", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 4000
typing:
  ttl: 15s
tokens:
  costs:
    broadcast: 3
`), 0o600))
		t.Setenv("BOTWIRE_SERVER_PORT", "5000")

		v := newViper(t)
		v.SetConfigFile(path)
		require.NoError(t, v.ReadInConfig())

		cfg, err := Load(v)
		require.NoError(t, err)
		assert.Equal(t, 5000, cfg.Server.Port, "env wins over file")
		assert.Equal(t, 15*time.Second, cfg.Typing.TTL)
		assert.Equal(t, int64(3), cfg.Tokens.Costs["broadcast"])
		assert.Equal(t, int64(1), cfg.Tokens.Costs["group"])
	})
}

func TestValidate(t *testing.T) {
	v := newViper(t)
	cfg, err := Load(v)
	require.NoError(t, err)

	bad := *cfg
	bad.RateLimit.Backend = "memcached"
	bad.Typing.TTL = 0
	bad.Stream.MaxPollInterval = time.Second
	bad.RateLimit.Profiles = map[string]ProfileConfig{"search": {MaxRequests: 0, Window: time.Minute}}
	bad.Logging.Profile = "verbose"

	err = bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memcached")
	assert.Contains(t, err.Error(), "typing.ttl")
	assert.Contains(t, err.Error(), "max_poll_interval")
	assert.Contains(t, err.Error(), "search.max_requests")
	assert.Contains(t, err.Error(), "logging.profile")

	v.Set("rate_limit.backend", "redis")
	v.Set("redis.addr", "")
	_, err = Load(v)
	require.Error(t, err)
}
