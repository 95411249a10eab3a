package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/coder/quartz"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/botwire/botwire/internal/config"
	"github.com/botwire/botwire/internal/core"
	"github.com/botwire/botwire/internal/core/ledger"
	"github.com/botwire/botwire/internal/core/presence"
	"github.com/botwire/botwire/internal/core/ratelimit"
	"github.com/botwire/botwire/internal/core/store"
	"github.com/botwire/botwire/internal/core/stream"
	"github.com/botwire/botwire/internal/metrics"
	"github.com/botwire/botwire/internal/server"
	"github.com/botwire/botwire/internal/server/handlers"
	servermw "github.com/botwire/botwire/internal/server/middleware"
)

// componentLogger is what every core package accepts.
type componentLogger interface {
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Debug(msg string, fields ...zap.Field)
}

// components is the running object graph behind serve.
type components struct {
	store    *store.Store
	redis    *redis.Client
	limiter  ratelimit.Limiter
	profiles *ratelimit.ProfileSet
	typing   presence.Store
	guard    *ledger.Guard
	hub      *stream.Hub

	sweepers []func(ctx context.Context)
	cancel   context.CancelFunc
}

// buildComponents connects the backends selected by cfg. db must already be
// migrated.
func buildComponents(cfg *config.Config, db *store.Store, clock quartz.Clock, logger componentLogger) (*components, error) {
	c := &components{store: db}

	profiles, err := ratelimit.NewProfileSet(profileOverrides(cfg.RateLimit.Profiles))
	if err != nil {
		return nil, err
	}
	c.profiles = profiles

	switch cfg.RateLimit.Backend {
	case "memory", "":
		mem := ratelimit.NewMemoryLimiter(clock)
		c.limiter = mem
		c.sweepers = append(c.sweepers, func(ctx context.Context) {
			mem.RunSweeper(ctx, cfg.RateLimit.SweepInterval, logger)
		})
	case "redis":
		c.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.limiter = ratelimit.NewRedisLimiter(c.redis, cfg.Redis.KeyPrefix, clock)
	case "store":
		shared := ratelimit.NewStoreLimiter(db, clock, logger)
		c.limiter = shared
		c.sweepers = append(c.sweepers, func(ctx context.Context) {
			shared.RunSweeper(ctx, cfg.RateLimit.SweepInterval)
		})
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", cfg.RateLimit.Backend)
	}

	switch cfg.Typing.Backend {
	case "memory", "":
		mem := presence.NewMemoryStore(cfg.Typing.TTL, clock)
		c.typing = mem
		c.sweepers = append(c.sweepers, func(ctx context.Context) {
			mem.RunSweeper(ctx, cfg.Typing.SweepInterval, logger)
		})
	case "store":
		shared := presence.NewSharedStore(db, cfg.Typing.TTL, clock)
		c.typing = shared
		c.sweepers = append(c.sweepers, func(ctx context.Context) {
			shared.RunSweeper(ctx, cfg.Typing.SweepInterval, logger)
		})
	default:
		return nil, fmt.Errorf("unknown typing backend %q", cfg.Typing.Backend)
	}

	costs, err := tokenCosts(cfg.Tokens.Costs)
	if err != nil {
		return nil, err
	}
	c.guard = ledger.NewGuard(db,
		ledger.WithCosts(costs),
		ledger.WithLogger(logger),
		ledger.WithObserver(metrics.ObserveDebit),
	)

	c.hub = stream.NewHub(
		stream.Sources{Feed: db.Feed(), Conversations: db.Conversations(), Typing: c.typing},
		streamConfig(cfg.Stream),
		stream.WithClock(clock),
		stream.WithLogger(logger),
		stream.WithRecorder(metrics.StreamRecorder{}),
	)

	return c, nil
}

// start schedules the background sweepers; each runs on a clock ticker
// until stop.
func (c *components) start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	for _, sweep := range c.sweepers {
		sweep(ctx)
	}
}

// stop halts the sweepers and releases connections.
func (c *components) stop() error {
	if c.cancel != nil {
		c.cancel()
	}

	var firstErr error
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			firstErr = err
		}
	}
	if err := c.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (c *components) serverDeps(cfg config.ServerConfig, health *handlers.HealthManager, clock quartz.Clock, logger componentLogger) server.Deps {
	api := &handlers.API{
		Store:    c.store,
		Hub:      c.hub,
		Guard:    c.guard,
		Presence: c.typing,
		Clock:    clock,
		Logger:   logger,
	}
	limiter := servermw.NewRateLimiter(c.limiter,
		servermw.WithRateLimitClock(clock),
		servermw.WithRateLimitLogger(logger),
		servermw.WithRateLimitResponder(server.HandleError),
		servermw.WithTrustedProxyHeaders(cfg.TrustProxyHeaders),
	)
	return server.Deps{
		API:      api,
		Health:   health,
		Bots:     c.store,
		Limiter:  limiter,
		Profiles: c.profiles,
	}
}

// registerHealth adds the dependency checks of the live backends.
func (c *components) registerHealth(hm *handlers.HealthManager) {
	hm.RegisterChecker("store", handlers.CheckerFunc(func(ctx context.Context) error {
		return c.store.Ping(ctx)
	}))
	if c.redis != nil {
		hm.RegisterChecker("redis", handlers.CheckerFunc(func(ctx context.Context) error {
			return c.redis.Ping(ctx).Err()
		}))
	}
	hm.SetStreamCounter(func() map[string]int {
		return map[string]int{
			string(core.ResourceFeed): c.hub.Active(core.ResourceFeed),
			string(core.ResourceDM):   c.hub.Active(core.ResourceDM),
			string(core.ResourceRoom): c.hub.Active(core.ResourceRoom),
		}
	})
}

func profileOverrides(in map[string]config.ProfileConfig) map[string]ratelimit.Profile {
	out := make(map[string]ratelimit.Profile, len(in))
	for name, p := range in {
		out[name] = ratelimit.Profile{Name: name, MaxRequests: p.MaxRequests, Window: p.Window}
	}
	return out
}

func tokenCosts(in map[string]int64) (map[ledger.MessageClass]int64, error) {
	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make(map[ledger.MessageClass]int64, len(in))
	for _, name := range names {
		class, err := ledger.ParseClass(name)
		if err != nil {
			return nil, fmt.Errorf("tokens.costs: %w", err)
		}
		out[class] = in[name]
	}
	return out, nil
}

func streamConfig(in config.StreamConfig) stream.Config {
	return stream.Config{
		PollInterval:         in.PollInterval,
		MaxPollInterval:      in.MaxPollInterval,
		MaxLifetime:          in.MaxLifetime,
		MaxConsecutiveErrors: in.MaxConsecutiveErrors,
		SnapshotLimit:        in.SnapshotLimit,
		RecentLimit:          in.RecentLimit,
		QueryTimeout:         in.QueryTimeout,
	}
}
