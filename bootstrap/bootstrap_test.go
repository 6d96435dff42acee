package bootstrap_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/artpar/procgate/adapters/clock"
	"github.com/artpar/procgate/app"
	"github.com/artpar/procgate/bootstrap"
	"github.com/artpar/procgate/config"
	"github.com/artpar/procgate/example/catalog"
	"github.com/rs/zerolog"
)

func testConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Driver = driver
	cfg.Database.DSN = filepath.Join(t.TempDir(), "test.db")
	cfg.Logging.Level = "error"
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.BcryptCost = 4
	cfg.Auth.AdminPassword = "s3cret"
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) (*bootstrap.App, *httptest.Server) {
	t.Helper()
	a, err := bootstrap.New(config.Static(cfg, zerolog.Nop()), bootstrap.Options{
		Version: "test",
		Clock:   clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
	})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	srv := httptest.NewServer(a.HTTPServer.Handler)
	t.Cleanup(func() {
		srv.Close()
		_ = a.Shutdown()
	})
	return a, srv
}

func do(t *testing.T, method, url, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, url, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func login(t *testing.T, base string) string {
	t.Helper()
	resp, data := do(t, "POST", base+"/auth/login", "", map[string]string{"username": catalog.AdminUser, "password": "s3cret"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d: %s", resp.StatusCode, data)
	}
	var out catalog.LoginOutput
	if err := json.Unmarshal(data, &out); err != nil || out.Token == "" {
		t.Fatalf("login output %s: %v", data, err)
	}
	return out.Token
}

func TestBootstrap_Integration(t *testing.T) {
	for _, driver := range []string{"sqlite", "memory"} {
		t.Run(driver, func(t *testing.T) {
			a, srv := newApp(t, testConfig(t, driver))

			if a.Dispatcher == nil || a.HTTPServer == nil {
				t.Fatal("app not fully initialized")
			}
			if (a.DB != nil) != (driver == "sqlite") {
				t.Errorf("DB set = %v for driver %s", a.DB != nil, driver)
			}

			resp, data := do(t, "GET", srv.URL+"/ping", "", nil)
			if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), `"pong":true`) {
				t.Errorf("ping = %d %s", resp.StatusCode, data)
			}

			resp, data = do(t, "GET", srv.URL+"/planets/?limit=100", "", nil)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("list = %d %s", resp.StatusCode, data)
			}
			var page struct {
				Planets []map[string]any `json:"planets"`
			}
			if err := json.Unmarshal(data, &page); err != nil {
				t.Fatalf("decode list %s: %v", data, err)
			}
			if len(page.Planets) != len(catalog.DefaultPlanets) {
				t.Errorf("seeded %d planets, want %d", len(page.Planets), len(catalog.DefaultPlanets))
			}

			token := login(t, srv.URL)
			resp, data = do(t, "POST", srv.URL+"/planets/", token, map[string]any{"name": "Pluto", "moons": 5})
			if resp.StatusCode != http.StatusCreated {
				t.Errorf("create = %d %s", resp.StatusCode, data)
			}

			resp, data = do(t, "POST", srv.URL+"/planets/", "", map[string]any{"name": "Ceres"})
			if resp.StatusCode != http.StatusUnauthorized || !strings.Contains(string(data), `"code":"UNAUTHORIZED"`) {
				t.Errorf("unauthenticated create = %d %s", resp.StatusCode, data)
			}
		})
	}
}

func TestBootstrap_Endpoints(t *testing.T) {
	_, srv := newApp(t, testConfig(t, "memory"))

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"liveness", "/health", http.StatusOK, `"ok"`},
		{"readiness", "/health/ready", http.StatusOK, ""},
		{"version", "/version", http.StatusOK, `"test"`},
		{"metrics", "/metrics", http.StatusOK, "procgate_"},
		{"unmatched", "/nowhere", http.StatusNotFound, `"code":"NOT_FOUND"`},
	}

	// One call first so dispatch metrics have samples.
	do(t, "GET", srv.URL+"/ping", "", nil)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, data := do(t, "GET", srv.URL+tt.path, "", nil)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d: %s", resp.StatusCode, tt.wantStatus, data)
			}
			if !strings.Contains(string(data), tt.wantBody) {
				t.Errorf("body %s does not contain %s", data, tt.wantBody)
			}
		})
	}
}

func TestBootstrap_JSONRPC(t *testing.T) {
	_, srv := newApp(t, testConfig(t, "memory"))

	resp, data := do(t, "POST", srv.URL+"/jsonrpc", "", map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "planet.find",
		"params":  map[string]any{"id": "missing"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %s", resp.StatusCode, data)
	}
	var out struct {
		Error *struct {
			Code int `json:"code"`
			Data struct {
				Code    string `json:"code"`
				Defined bool   `json:"defined"`
			} `json:"data"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	if out.Error == nil || out.Error.Data.Code != "NOT_FOUND" || !out.Error.Data.Defined {
		t.Errorf("response = %s", data)
	}
}

func TestBootstrap_DisabledTransports(t *testing.T) {
	cfg := testConfig(t, "memory")
	cfg.RPC.JSONRPC = false
	cfg.WebSocket.Enabled = false
	cfg.Metrics.Enabled = false
	a, srv := newApp(t, cfg)

	if a.Metrics != nil {
		t.Error("metrics collector created while disabled")
	}
	for _, path := range []string{"/jsonrpc", "/ws", "/metrics"} {
		resp, _ := do(t, "GET", srv.URL+path, "", nil)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, resp.StatusCode)
		}
	}
}

func TestBootstrap_Prefix(t *testing.T) {
	cfg := testConfig(t, "memory")
	cfg.RPC.Prefix = "/api"
	_, srv := newApp(t, cfg)

	if resp, data := do(t, "GET", srv.URL+"/api/ping", "", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("prefixed ping = %d %s", resp.StatusCode, data)
	}
	if resp, _ := do(t, "GET", srv.URL+"/ping", "", nil); resp.StatusCode != http.StatusNotFound {
		t.Errorf("unprefixed ping = %d, want 404", resp.StatusCode)
	}
}

func TestBootstrap_PreloadLazyRouters(t *testing.T) {
	cfg := testConfig(t, "memory")
	cfg.Lazy.Preload = true
	a, _ := newApp(t, cfg)

	if n := a.Dispatcher.Matcher().Pending(); n != 0 {
		t.Errorf("pending lazy routers = %d after preload", n)
	}
}

func TestBootstrap_RateLimit(t *testing.T) {
	cfg := testConfig(t, "memory")
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.RequestsPerSecond = 1
	cfg.RateLimit.Burst = 2
	_, srv := newApp(t, cfg)

	var last *http.Response
	for i := 0; i < 3; i++ {
		last, _ = do(t, "GET", srv.URL+"/ping", "", nil)
	}
	if last.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("third call = %d, want 429", last.StatusCode)
	}
	if last.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
}

func TestBootstrap_DatabaseMigration(t *testing.T) {
	cfg := testConfig(t, "sqlite")

	a, err := bootstrap.New(config.Static(cfg, zerolog.Nop()), bootstrap.Options{})
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := a.Shutdown(); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	// A second start over the same file must not re-seed or fail migrations.
	a, err = bootstrap.New(config.Static(cfg, zerolog.Nop()), bootstrap.Options{})
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	defer a.Shutdown()

	var n int
	if err := a.DB.QueryRow("SELECT COUNT(*) FROM planets").Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != len(catalog.DefaultPlanets) {
		t.Errorf("planets = %d, want %d", n, len(catalog.DefaultPlanets))
	}
}

func TestBootstrap_InvalidDatabase(t *testing.T) {
	cfg := testConfig(t, "sqlite")
	cfg.Database.DSN = filepath.Join(t.TempDir(), "missing", "dir", "test.db")

	if _, err := bootstrap.New(config.Static(cfg, zerolog.Nop()), bootstrap.Options{}); err == nil {
		t.Error("expected error for an unusable database path")
	}
}

func TestRequestContext(t *testing.T) {
	r := httptest.NewRequest("GET", "/ping", nil)
	r.RemoteAddr = "203.0.113.7:5123"
	r.Header.Set("Authorization", "Bearer abc")

	c := bootstrap.RequestContext(r)
	if c[app.AuthorizationKey] != "Bearer abc" {
		t.Errorf("authorization = %v", c[app.AuthorizationKey])
	}
	if c[app.ClientIPKey] != "203.0.113.7" {
		t.Errorf("client ip = %v", c[app.ClientIPKey])
	}

	r = httptest.NewRequest("GET", "/ping", nil)
	r.RemoteAddr = ""
	c = bootstrap.RequestContext(r)
	if _, ok := c[app.AuthorizationKey]; ok {
		t.Error("authorization set without header")
	}
	if _, ok := c[app.ClientIPKey]; ok {
		t.Error("client ip set without remote address")
	}
}

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARN", zerolog.WarnLevel},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	for _, tt := range tests {
		bootstrap.SetupLogger(config.LoggingConfig{Level: tt.level, Format: "console"})
		if got := zerolog.GlobalLevel(); got != tt.want {
			t.Errorf("level %q: got %v, want %v", tt.level, got, tt.want)
		}
	}
}
