// Package config loads botwire configuration through viper: built-in
// defaults, then an optional YAML file, then BOTWIRE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/botwire/botwire/internal/appid"
)

var (
	appConfig *Config
	configMu  sync.RWMutex
)

// SetDefaults registers every default value on v. Keys must be known to
// viper for environment overrides to reach nested settings.
func SetDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.trust_proxy_headers", false)

	// Store defaults
	v.SetDefault("store.driver", "libsql")
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("store.url", "")
	v.SetDefault("store.auth_token", "")

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "botwire:ratelimit")

	// Rate limit defaults
	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.sweep_interval", "1m")
	for name, profile := range map[string]ProfileConfig{
		"public_read":    {MaxRequests: 120, Window: time.Minute},
		"auth_write":     {MaxRequests: 30, Window: time.Minute},
		"webhook_ingest": {MaxRequests: 60, Window: time.Minute},
		"search":         {MaxRequests: 20, Window: time.Minute},
	} {
		v.SetDefault("rate_limit.profiles."+name+".max_requests", profile.MaxRequests)
		v.SetDefault("rate_limit.profiles."+name+".window", profile.Window.String())
	}

	// Stream defaults
	v.SetDefault("stream.poll_interval", "3s")
	v.SetDefault("stream.max_poll_interval", "30s")
	v.SetDefault("stream.max_lifetime", "5m")
	v.SetDefault("stream.max_consecutive_errors", 5)
	v.SetDefault("stream.snapshot_limit", 50)
	v.SetDefault("stream.recent_limit", 50)
	v.SetDefault("stream.query_timeout", "10s")

	// Typing defaults
	v.SetDefault("typing.backend", "memory")
	v.SetDefault("typing.ttl", "10s")
	v.SetDefault("typing.sweep_interval", "1m")

	// Token cost defaults
	v.SetDefault("tokens.costs.broadcast", 1)
	v.SetDefault("tokens.costs.direct", 1)
	v.SetDefault("tokens.costs.group", 1)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "structured")

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)

	// Debug defaults
	v.SetDefault("debug.enabled", false)
}

// BindEnv makes BOTWIRE_SECTION_KEY override section.key.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(strings.TrimSuffix(appid.Get().EnvPrefix, "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes the effective settings of v into a validated Config and
// makes it the current configuration.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.Store.URL) == "" && strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setConfig(cfg)
	return cfg, nil
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	switch c.RateLimit.Backend {
	case "memory", "store":
	case "redis":
		if strings.TrimSpace(c.Redis.Addr) == "" {
			errs = append(errs, errors.New("redis.addr is required for the redis rate limit backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown rate_limit.backend %q", c.RateLimit.Backend))
	}
	for name, profile := range c.RateLimit.Profiles {
		if profile.MaxRequests <= 0 {
			errs = append(errs, fmt.Errorf("rate_limit.profiles.%s.max_requests must be positive", name))
		}
		if profile.Window <= 0 {
			errs = append(errs, fmt.Errorf("rate_limit.profiles.%s.window must be positive", name))
		}
	}

	switch c.Logging.Profile {
	case "", "simple", "structured":
	default:
		errs = append(errs, fmt.Errorf("unknown logging.profile %q", c.Logging.Profile))
	}

	switch c.Typing.Backend {
	case "memory", "store":
	default:
		errs = append(errs, fmt.Errorf("unknown typing.backend %q", c.Typing.Backend))
	}
	if c.Typing.TTL <= 0 {
		errs = append(errs, errors.New("typing.ttl must be positive"))
	}

	if c.Stream.PollInterval <= 0 {
		errs = append(errs, errors.New("stream.poll_interval must be positive"))
	}
	if c.Stream.MaxPollInterval < c.Stream.PollInterval {
		errs = append(errs, errors.New("stream.max_poll_interval must not be below stream.poll_interval"))
	}
	if c.Stream.MaxLifetime <= 0 {
		errs = append(errs, errors.New("stream.max_lifetime must be positive"))
	}
	if c.Stream.MaxConsecutiveErrors <= 0 {
		errs = append(errs, errors.New("stream.max_consecutive_errors must be positive"))
	}

	for class, cost := range c.Tokens.Costs {
		if cost < 0 {
			errs = append(errs, fmt.Errorf("tokens.costs.%s cannot be negative", class))
		}
	}

	return errors.Join(errs...)
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configDir := gfconfig.GetAppConfigDir(appid.Get().ConfigName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// DefaultStorePath returns the XDG-compliant path to the database file.
func DefaultStorePath() string {
	identity := appid.Get()
	dataDir := gfconfig.GetAppDataDir(identity.ConfigName)
	if strings.TrimSpace(dataDir) == "" {
		return "./" + identity.BinaryName + ".db"
	}
	return filepath.Join(dataDir, identity.BinaryName+".db")
}
