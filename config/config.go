// Package config provides configuration loading, validation and hot reload.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PROCGATE_"

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server" envPrefix:"SERVER_"`
	RPC       RPCConfig       `yaml:"rpc" envPrefix:"RPC_"`
	Auth      AuthConfig      `yaml:"auth" envPrefix:"AUTH_"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envPrefix:"RATELIMIT_"`
	Database  DatabaseConfig  `yaml:"database" envPrefix:"DATABASE_"`
	Logging   LoggingConfig   `yaml:"logging" envPrefix:"LOG_"`
	Metrics   MetricsConfig   `yaml:"metrics" envPrefix:"METRICS_"`
	Tracing   TracingConfig   `yaml:"tracing" envPrefix:"TRACING_"`
	WebSocket WebSocketConfig `yaml:"websocket" envPrefix:"WS_"`
	Lazy      LazyConfig      `yaml:"lazy" envPrefix:"LAZY_"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RPCConfig configures the procedure transports.
type RPCConfig struct {
	// Prefix mounts procedure routes under a path, e.g. "/api".
	Prefix  string `yaml:"prefix" env:"PREFIX"`
	JSONRPC bool   `yaml:"jsonrpc" env:"JSONRPC"`
}

// AuthConfig configures bearer tokens and the demo login.
type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret,omitempty" env:"JWT_SECRET"`
	TokenTTL   time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
	BcryptCost int           `yaml:"bcrypt_cost" env:"BCRYPT_COST"`
	// AdminPassword, when set, provisions the "admin" user at startup.
	AdminPassword string       `yaml:"admin_password,omitempty" env:"ADMIN_PASSWORD"`
	Users         []UserConfig `yaml:"users,omitempty"`
}

// UserConfig is a login provisioned from configuration.
type UserConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"` // bcrypt
}

// RateLimitConfig configures per-caller rate limiting.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" env:"ENABLED"`
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"RPS"`
	Burst             int     `yaml:"burst" env:"BURST"`
}

// DatabaseConfig configures the planet store.
type DatabaseConfig struct {
	Driver string `yaml:"driver" env:"DRIVER"` // "sqlite" or "memory"
	DSN    string `yaml:"dsn" env:"DSN"`
	Seed   bool   `yaml:"seed" env:"SEED"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`   // "debug", "info", "warn", "error"
	Format string `yaml:"format" env:"FORMAT"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" env:"ENABLED"`
}

// TracingConfig configures OpenTelemetry export. Tracing is off when
// Endpoint is empty.
type TracingConfig struct {
	Endpoint    string  `yaml:"endpoint" env:"ENDPOINT"`
	ServiceName string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRatio float64 `yaml:"sample_ratio" env:"SAMPLE_RATIO"`
}

// WebSocketConfig configures the websocket transport.
type WebSocketConfig struct {
	Enabled        bool          `yaml:"enabled" env:"ENABLED"`
	MaxMessageSize int64         `yaml:"max_message_size" env:"MAX_MESSAGE_SIZE"`
	PingInterval   time.Duration `yaml:"ping_interval" env:"PING_INTERVAL"`
}

// LazyConfig configures lazy router loading.
type LazyConfig struct {
	// Preload resolves every lazy router at startup instead of on first use.
	Preload bool `yaml:"preload" env:"PRELOAD"`
}

// Load reads configuration from a YAML file. ${VAR} references are
// expanded, then PROCGATE_* environment variables override file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return finish(cfg)
}

// LoadFromEnv creates configuration from defaults and environment
// variables only.
//
// Environment variables:
//
//	PROCGATE_SERVER_HOST        - Server host (default: 0.0.0.0)
//	PROCGATE_SERVER_PORT        - Server port (default: 8080)
//	PROCGATE_RPC_PREFIX         - Mount prefix for procedure routes
//	PROCGATE_AUTH_JWT_SECRET    - Token signing secret (default: random per process)
//	PROCGATE_AUTH_ADMIN_PASSWORD - Password of the provisioned admin user
//	PROCGATE_RATELIMIT_ENABLED  - Enable rate limiting
//	PROCGATE_RATELIMIT_RPS      - Requests per second per caller and procedure
//	PROCGATE_DATABASE_DRIVER    - sqlite or memory (default: sqlite)
//	PROCGATE_DATABASE_DSN       - Database path (default: procgate.db)
//	PROCGATE_LOG_LEVEL          - debug, info, warn, error (default: info)
//	PROCGATE_LOG_FORMAT         - json or console (default: json)
//	PROCGATE_TRACING_ENDPOINT   - OTLP/HTTP collector URL
//	PROCGATE_LAZY_PRELOAD       - Resolve lazy routers at startup
func LoadFromEnv() (*Config, error) {
	return finish(Default())
}

// LoadWithFallback loads path when it exists and falls back to
// LoadFromEnv otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

func finish(cfg *Config) (*Config, error) {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	setDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when nothing is set. Booleans
// that default to true are set here so a file can still turn them off.
func Default() *Config {
	cfg := &Config{
		RPC:       RPCConfig{JSONRPC: true},
		Metrics:   MetricsConfig{Enabled: true},
		WebSocket: WebSocketConfig{Enabled: true},
		Database:  DatabaseConfig{Seed: true},
	}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	cfg.RPC.Prefix = strings.TrimRight(cfg.RPC.Prefix, "/")

	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}
	if cfg.Auth.BcryptCost == 0 {
		cfg.Auth.BcryptCost = 10
	}

	if cfg.RateLimit.RequestsPerSecond == 0 {
		cfg.RateLimit.RequestsPerSecond = 10
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "procgate.db"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "procgate"
	}

	if cfg.WebSocket.MaxMessageSize == 0 {
		cfg.WebSocket.MaxMessageSize = 1 << 20
	}
	if cfg.WebSocket.PingInterval == 0 {
		cfg.WebSocket.PingInterval = 30 * time.Second
	}
}

func validate(cfg *Config) error {
	var errs []error

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be in 0-65535, got %d", cfg.Server.Port))
	}
	if cfg.RPC.Prefix != "" && !strings.HasPrefix(cfg.RPC.Prefix, "/") {
		errs = append(errs, fmt.Errorf("rpc.prefix must start with '/', got %q", cfg.RPC.Prefix))
	}

	validDrivers := map[string]bool{"sqlite": true, "memory": true}
	if !validDrivers[cfg.Database.Driver] {
		errs = append(errs, fmt.Errorf("database.driver must be 'sqlite' or 'memory', got %q", cfg.Database.Driver))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Errorf("logging.level must be one of: debug, info, warn, error"))
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format))
	}

	if cfg.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("rate_limit.requests_per_second must not be negative"))
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_ratio must be in 0-1, got %v", cfg.Tracing.SampleRatio))
	}

	for i, u := range cfg.Auth.Users {
		if u.Username == "" {
			errs = append(errs, fmt.Errorf("auth.users[%d].username is required", i))
		}
		if !strings.HasPrefix(u.PasswordHash, "$2") {
			errs = append(errs, fmt.Errorf("auth.users[%d].password_hash must be a bcrypt hash", i))
		}
	}

	return errors.Join(errs...)
}
