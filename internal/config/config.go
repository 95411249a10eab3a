package config

import "time"

// Config represents the complete application configuration, assembled from
// three layers in order of precedence:
// Layer 1: Built-in defaults (SetDefaults)
// Layer 2: User config file (~/.config/botwire/config.yaml or --config)
// Layer 3: Environment variables (BOTWIRE_*) and command-line flags
type Config struct {
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Store     StoreConfig     `mapstructure:"store" yaml:"store"`
	Redis     RedisConfig     `mapstructure:"redis" yaml:"redis"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Stream    StreamConfig    `mapstructure:"stream" yaml:"stream"`
	Typing    TypingConfig    `mapstructure:"typing" yaml:"typing"`
	Tokens    TokensConfig    `mapstructure:"tokens" yaml:"tokens"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Health    HealthConfig    `mapstructure:"health" yaml:"health"`
	Debug     DebugConfig     `mapstructure:"debug" yaml:"debug"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// TrustProxyHeaders takes the client address from forwarding headers.
	// Leave off unless a reverse proxy in front rewrites them.
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers" yaml:"trust_proxy_headers"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver" yaml:"driver"`
	Path      string `mapstructure:"path" yaml:"path"`
	URL       string `mapstructure:"url" yaml:"url"`
	AuthToken string `mapstructure:"auth_token" yaml:"auth_token"`
}

// RedisConfig configures the shared Redis used by the redis rate-limit backend.
type RedisConfig struct {
	Addr      string `mapstructure:"addr" yaml:"addr"`
	Password  string `mapstructure:"password" yaml:"password"`
	DB        int    `mapstructure:"db" yaml:"db"`
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// RateLimitConfig selects the admission backend and profile thresholds.
type RateLimitConfig struct {
	// Backend is one of: memory, redis, store
	Backend       string                   `mapstructure:"backend" yaml:"backend"`
	SweepInterval time.Duration            `mapstructure:"sweep_interval" yaml:"sweep_interval"`
	Profiles      map[string]ProfileConfig `mapstructure:"profiles" yaml:"profiles"`
}

// ProfileConfig overrides the thresholds of one named profile.
type ProfileConfig struct {
	MaxRequests int           `mapstructure:"max_requests" yaml:"max_requests"`
	Window      time.Duration `mapstructure:"window" yaml:"window"`
}

// StreamConfig holds the event-stream session policy.
type StreamConfig struct {
	PollInterval         time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	MaxPollInterval      time.Duration `mapstructure:"max_poll_interval" yaml:"max_poll_interval"`
	MaxLifetime          time.Duration `mapstructure:"max_lifetime" yaml:"max_lifetime"`
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors" yaml:"max_consecutive_errors"`
	SnapshotLimit        int           `mapstructure:"snapshot_limit" yaml:"snapshot_limit"`
	RecentLimit          int           `mapstructure:"recent_limit" yaml:"recent_limit"`
	QueryTimeout         time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
}

// TypingConfig configures typing indicators.
type TypingConfig struct {
	// Backend is one of: memory, store
	Backend       string        `mapstructure:"backend" yaml:"backend"`
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl"`
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval"`
}

// TokensConfig holds the token price per message class.
type TokensConfig struct {
	Costs map[string]int64 `mapstructure:"costs" yaml:"costs"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`

	// Profile selects the logging complexity level
	// Valid values: simple, structured
	Profile string `mapstructure:"profile" yaml:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the dedicated Prometheus exporter port; /metrics on the main
	// port proxies to it.
	Port int `mapstructure:"port" yaml:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// DebugConfig contains debug configuration
type DebugConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}
