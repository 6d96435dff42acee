package config_test

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/artpar/procgate/config"
)

func writeAndLoad(t *testing.T, content string) *config.Config {
	t.Helper()
	cfg, err := config.Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return cfg
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 9090
  request_timeout: 5s

rpc:
  prefix: "/api/"
  jsonrpc: false

auth:
  jwt_secret: "s3cret"
  token_ttl: 2h
  users:
    - username: "ada"
      password_hash: "$2a$10$abcdefghijklmnopqrstuv"

rate_limit:
  enabled: true
  requests_per_second: 2.5
  burst: 5

database:
  driver: "memory"

tracing:
  endpoint: "http://localhost:4318"
  sample_ratio: 0.25

lazy:
  preload: true
`
	cfg := writeAndLoad(t, content)

	if cfg.Server.Addr() != "127.0.0.1:9090" {
		t.Errorf("Addr = %s, want 127.0.0.1:9090", cfg.Server.Addr())
	}
	if cfg.Server.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want 5s", cfg.Server.RequestTimeout)
	}
	if cfg.RPC.Prefix != "/api" {
		t.Errorf("RPC.Prefix = %q, want /api", cfg.RPC.Prefix)
	}
	if cfg.RPC.JSONRPC {
		t.Error("RPC.JSONRPC should be disabled by the file")
	}
	if cfg.Auth.JWTSecret != "s3cret" || cfg.Auth.TokenTTL != 2*time.Hour {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
	if len(cfg.Auth.Users) != 1 || cfg.Auth.Users[0].Username != "ada" {
		t.Errorf("Auth.Users = %+v", cfg.Auth.Users)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.RequestsPerSecond != 2.5 || cfg.RateLimit.Burst != 5 {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("Database.Driver = %s", cfg.Database.Driver)
	}
	if cfg.Tracing.Endpoint != "http://localhost:4318" || cfg.Tracing.SampleRatio != 0.25 {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if !cfg.Lazy.Preload {
		t.Error("Lazy.Preload should be set")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := writeAndLoad(t, "{}")

	checks := []struct {
		name string
		ok   bool
	}{
		{"server.host", cfg.Server.Host == "0.0.0.0"},
		{"server.port", cfg.Server.Port == 8080},
		{"server.read_timeout", cfg.Server.ReadTimeout == 30*time.Second},
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeout == 15*time.Second},
		{"rpc.jsonrpc", cfg.RPC.JSONRPC},
		{"auth.token_ttl", cfg.Auth.TokenTTL == 24*time.Hour},
		{"auth.bcrypt_cost", cfg.Auth.BcryptCost == 10},
		{"rate_limit.enabled", !cfg.RateLimit.Enabled},
		{"rate_limit.requests_per_second", cfg.RateLimit.RequestsPerSecond == 10},
		{"database.driver", cfg.Database.Driver == "sqlite"},
		{"database.dsn", cfg.Database.DSN == "procgate.db"},
		{"database.seed", cfg.Database.Seed},
		{"logging.level", cfg.Logging.Level == "info"},
		{"logging.format", cfg.Logging.Format == "json"},
		{"metrics.enabled", cfg.Metrics.Enabled},
		{"tracing.service_name", cfg.Tracing.ServiceName == "procgate"},
		{"websocket.enabled", cfg.WebSocket.Enabled},
		{"websocket.max_message_size", cfg.WebSocket.MaxMessageSize == 1<<20},
		{"lazy.preload", !cfg.Lazy.Preload},
	}
	for _, c := range checks {
		if !c.ok {
			t.Errorf("unexpected default for %s", c.name)
		}
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_PROCGATE_DSN", "/var/lib/procgate/test.db")

	cfg := writeAndLoad(t, `
database:
  dsn: "${TEST_PROCGATE_DSN}"
`)
	if cfg.Database.DSN != "/var/lib/procgate/test.db" {
		t.Errorf("DSN = %s, want expanded value", cfg.Database.DSN)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("PROCGATE_SERVER_PORT", "7070")
	t.Setenv("PROCGATE_RPC_PREFIX", "/rpc")
	t.Setenv("PROCGATE_AUTH_TOKEN_TTL", "15m")
	t.Setenv("PROCGATE_RATELIMIT_ENABLED", "true")
	t.Setenv("PROCGATE_RATELIMIT_RPS", "0.5")
	t.Setenv("PROCGATE_LOG_LEVEL", "debug")
	t.Setenv("PROCGATE_METRICS_ENABLED", "false")
	t.Setenv("PROCGATE_LAZY_PRELOAD", "1")

	cfg := writeAndLoad(t, `
server:
  port: 9090
logging:
  level: warn
`)

	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, want env override 7070", cfg.Server.Port)
	}
	if cfg.RPC.Prefix != "/rpc" {
		t.Errorf("Prefix = %s", cfg.RPC.Prefix)
	}
	if cfg.Auth.TokenTTL != 15*time.Minute {
		t.Errorf("TokenTTL = %v", cfg.Auth.TokenTTL)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.RequestsPerSecond != 0.5 {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %s, want debug", cfg.Logging.Level)
	}
	if cfg.Metrics.Enabled {
		t.Error("metrics should be disabled by env")
	}
	if !cfg.Lazy.Preload {
		t.Error("preload should be enabled by env")
	}
}

func TestEnvOverrides_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"port", "PROCGATE_SERVER_PORT", "not-a-number"},
		{"duration", "PROCGATE_SERVER_READ_TIMEOUT", "forever"},
		{"bool", "PROCGATE_RATELIMIT_ENABLED", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			if _, err := config.LoadFromEnv(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.val)
			}
		})
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"driver", "database:\n  driver: postgres\n", "database.driver"},
		{"level", "logging:\n  level: loud\n", "logging.level"},
		{"format", "logging:\n  format: xml\n", "logging.format"},
		{"prefix", "rpc:\n  prefix: api\n", "rpc.prefix"},
		{"port", "server:\n  port: 70000\n", "server.port"},
		{"sample ratio", "tracing:\n  sample_ratio: 2\n", "tracing.sample_ratio"},
		{"negative rps", "rate_limit:\n  requests_per_second: -1\n", "rate_limit.requests_per_second"},
		{"user hash", "auth:\n  users:\n    - username: ada\n      password_hash: plain\n", "password_hash"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %s", err, tt.want)
			}
		})
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := config.Load(writeConfig(t, "server: [unclosed")); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadWithFallback(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9191\n")
	cfg, err := config.LoadWithFallback(path)
	if err != nil || cfg.Server.Port != 9191 {
		t.Fatalf("file: port=%v err=%v", cfg, err)
	}

	t.Setenv("PROCGATE_SERVER_PORT", "9292")
	for _, p := range []string{"", filepath.Join(t.TempDir(), "missing.yaml")} {
		cfg, err := config.LoadWithFallback(p)
		if err != nil {
			t.Fatalf("fallback(%q): %v", p, err)
		}
		if cfg.Server.Port != 9292 {
			t.Errorf("fallback(%q) port = %d, want 9292", p, cfg.Server.Port)
		}
	}
}

func TestDefault(t *testing.T) {
	cfg := config.Default()
	if cfg.Server.Port != 8080 || !cfg.Metrics.Enabled {
		t.Errorf("Default = %+v", cfg)
	}
}
