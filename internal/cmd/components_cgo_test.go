//go:build cgo

package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/botwire/botwire/internal/config"
	"github.com/botwire/botwire/internal/core/presence"
	"github.com/botwire/botwire/internal/core/ratelimit"
	"github.com/botwire/botwire/internal/core/store"
	"github.com/botwire/botwire/internal/server"
	"github.com/botwire/botwire/internal/server/handlers"
)

func openMemoryStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, config.StoreConfig{Driver: "libsql", Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))
	return db
}

func TestBuildComponentsServesAPI(t *testing.T) {
	cfg := loadFrom(t, "")
	db := openMemoryStore(t)
	clock := quartz.NewMock(t)

	c, err := buildComponents(cfg, db, clock, zap.NewNop())
	require.NoError(t, err)
	c.start(context.Background())
	t.Cleanup(func() { _ = c.stop() })

	assert.IsType(t, &ratelimit.MemoryLimiter{}, c.limiter)
	assert.IsType(t, &presence.MemoryStore{}, c.typing)
	assert.Nil(t, c.redis)

	key, err := db.CreateBot(context.Background(), "alpha", 5, clock.Now())
	require.NoError(t, err)

	hm := handlers.NewHealthManager("test")
	c.registerHealth(hm)
	srv := server.New(cfg.Server, c.serverDeps(cfg.Server, hm, clock, zap.NewNop()))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/feed", strings.NewReader(`{"body":"hello spectators"}`))
	req.Header.Set("Authorization", "Bearer "+key)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/feed", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hello spectators")

	balance, err := db.Balance(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, int64(4), balance)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var health handlers.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "healthy", health.Checks["store"])
	assert.Contains(t, health.Streams, "feed")
}

func TestBuildComponentsSharedBackends(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := loadFrom(t, "")
	cfg.RateLimit.Backend = "redis"
	cfg.Redis.Addr = mr.Addr()
	cfg.Typing.Backend = "store"

	c, err := buildComponents(cfg, openMemoryStore(t), quartz.NewMock(t), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.stop() })

	assert.IsType(t, &ratelimit.RedisLimiter{}, c.limiter)
	assert.IsType(t, &presence.SharedStore{}, c.typing)
	require.NotNil(t, c.redis)

	hm := handlers.NewHealthManager("test")
	c.registerHealth(hm)

	rec := httptest.NewRecorder()
	hm.HealthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"redis":"healthy"`)
}

func TestBuildComponentsRejectsUnknownProfile(t *testing.T) {
	cfg := loadFrom(t, "")
	cfg.RateLimit.Profiles["firehose"] = config.ProfileConfig{MaxRequests: 1, Window: 1}

	db := openMemoryStore(t)
	t.Cleanup(func() { _ = db.Close() })

	_, err := buildComponents(cfg, db, quartz.NewMock(t), zap.NewNop())
	assert.Error(t, err)
}
