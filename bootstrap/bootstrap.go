// Package bootstrap wires all dependencies and starts the application.
// Configuration comes from a config.Holder, so file reloads reach the log
// level and the rate limiter without a restart.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/artpar/procgate/adapters/auth"
	"github.com/artpar/procgate/adapters/clock"
	apihttp "github.com/artpar/procgate/adapters/http"
	"github.com/artpar/procgate/adapters/idgen"
	"github.com/artpar/procgate/adapters/memory"
	"github.com/artpar/procgate/adapters/metrics"
	"github.com/artpar/procgate/adapters/rpc"
	"github.com/artpar/procgate/adapters/sqlite"
	"github.com/artpar/procgate/adapters/tracing"
	"github.com/artpar/procgate/adapters/ws"
	"github.com/artpar/procgate/app"
	"github.com/artpar/procgate/config"
	"github.com/artpar/procgate/domain/procedure"
	"github.com/artpar/procgate/domain/router"
	"github.com/artpar/procgate/example/catalog"
	"github.com/artpar/procgate/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Holder
	DB         *sqlite.DB
	HTTPServer *http.Server
	Metrics    *metrics.Collector
	Registry   *prometheus.Registry
	Dispatcher *app.Dispatcher

	limiter          *memory.Limiter
	shutdownTracing  func(context.Context) error
	shutdownDeadline time.Duration
}

// Options customize New.
type Options struct {
	// Version is reported by /version.
	Version string
	// Clock defaults to the wall clock.
	Clock ports.Clock
}

// New builds the application from the configuration in holder.
func New(holder *config.Holder, opts Options) (*App, error) {
	cfg := holder.Get()
	logger := SetupLogger(cfg.Logging)

	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}

	logger.Info().Str("driver", cfg.Database.Driver).Msg("initializing procgate")

	a := &App{
		Logger:           logger,
		Config:           holder,
		shutdownDeadline: cfg.Server.ShutdownTimeout,
	}

	ctx := context.Background()
	ids := idgen.TimeOrdered{}

	shutdown, err := tracing.Setup(ctx, tracing.ProviderConfig{
		ServiceName: cfg.Tracing.ServiceName,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	a.shutdownTracing = shutdown
	if cfg.Tracing.Endpoint != "" {
		logger.Info().Str("endpoint", cfg.Tracing.Endpoint).Msg("tracing enabled")
	}

	stores, err := a.initStores(ctx, cfg, opts.Clock)
	if err != nil {
		_ = a.Shutdown()
		return nil, err
	}

	hasher := auth.NewBcrypt(cfg.Auth.BcryptCost)
	if err := provisionUsers(ctx, stores.putUser, hasher, cfg.Auth); err != nil {
		_ = a.Shutdown()
		return nil, fmt.Errorf("provision users: %w", err)
	}
	if cfg.Auth.JWTSecret == "" {
		logger.Warn().Msg("auth.jwt_secret not set, tokens are valid for this process only")
	}
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, opts.Clock)

	var (
		dispatchMetrics ports.Metrics
		guardMetrics    ports.GuardMetrics
	)
	if cfg.Metrics.Enabled {
		a.Registry = prometheus.NewRegistry()
		a.Metrics = metrics.NewWithRegistry(a.Registry)
		dispatchMetrics, guardMetrics = a.Metrics, a.Metrics
		holder.OnReload(a.Metrics.ConfigReloaded)
		logger.Info().Msg("prometheus metrics enabled")
	}

	deps := catalog.Deps{
		Planets: stores.planets,
		Users:   stores.users,
		Hasher:  hasher,
		Tokens:  tokens,
		IDs:     ids,
		Clock:   opts.Clock,
		Metrics: guardMetrics,
		Logger:  logger,
	}
	if cfg.RateLimit.Enabled {
		a.limiter = memory.NewLimiter(memory.LimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}, opts.Clock)
		deps.Limiter = a.limiter
	}

	tp := otel.GetTracerProvider()
	r := catalog.Router(deps)
	r = router.Use(r, tracing.Middleware(tp))

	matcher, err := app.NewProcedureMatcher(r, opts.Clock, dispatchMetrics, logger)
	if err != nil {
		_ = a.Shutdown()
		return nil, fmt.Errorf("build route table: %w", err)
	}
	if cfg.Lazy.Preload {
		if err := matcher.Preload(ctx); err != nil {
			_ = a.Shutdown()
			return nil, fmt.Errorf("preload routers: %w", err)
		}
	}

	a.Dispatcher = app.NewDispatcher(r, matcher, opts.Clock, idgen.UUID{}, dispatchMetrics, logger, app.DispatcherConfig{
		Prefix:       cfg.RPC.Prefix,
		Interceptors: []app.Interceptor{tracing.Interceptor(tp)},
	})

	a.HTTPServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.handler(cfg, stores.health, opts.Version),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	holder.OnChange(a.applyConfig)

	logger.Info().
		Int("routes", len(matcher.Routes())).
		Int("lazy_pending", matcher.Pending()).
		Msg("procedures registered")
	return a, nil
}

type storeSet struct {
	planets ports.PlanetStore
	users   ports.UserStore
	putUser func(ctx context.Context, username string, hash []byte) error
	health  apihttp.HealthChecker
}

func (a *App) initStores(ctx context.Context, cfg *config.Config, c ports.Clock) (storeSet, error) {
	var s storeSet

	switch cfg.Database.Driver {
	case "memory":
		planets, users := memory.NewPlanetStore(), memory.NewUserStore()
		s = storeSet{
			planets: planets,
			users:   users,
			putUser: func(_ context.Context, username string, hash []byte) error {
				users.Put(username, hash)
				return nil
			},
			health: planets,
		}
	default:
		db, err := sqlite.Open(cfg.Database.DSN)
		if err != nil {
			return s, fmt.Errorf("open database: %w", err)
		}
		a.DB = db
		if err := db.Migrate(ctx); err != nil {
			return s, fmt.Errorf("migrate: %w", err)
		}
		users := sqlite.NewUserStore(db)
		s = storeSet{
			planets: sqlite.NewPlanetStore(db),
			users:   users,
			putUser: users.Put,
			health:  db,
		}
		a.Logger.Info().Str("dsn", cfg.Database.DSN).Msg("database initialized")
	}

	if cfg.Database.Seed {
		if err := catalog.Seed(ctx, s.planets, idgen.TimeOrdered{}, c); err != nil {
			return s, fmt.Errorf("seed planets: %w", err)
		}
	}
	return s, nil
}

func provisionUsers(ctx context.Context, put func(context.Context, string, []byte) error, hasher ports.Hasher, cfg config.AuthConfig) error {
	if cfg.AdminPassword != "" {
		hash, err := hasher.Hash(cfg.AdminPassword)
		if err != nil {
			return err
		}
		if err := put(ctx, catalog.AdminUser, hash); err != nil {
			return err
		}
	}
	for _, u := range cfg.Users {
		if err := put(ctx, u.Username, []byte(u.PasswordHash)); err != nil {
			return fmt.Errorf("user %s: %w", u.Username, err)
		}
	}
	return nil
}

func (a *App) handler(cfg *config.Config, health apihttp.HealthChecker, version string) http.Handler {
	contextFunc := RequestContext

	rcfg := apihttp.RouterConfig{
		Version: version,
		Timeout: cfg.Server.RequestTimeout,
		Metrics: a.Metrics,
	}
	if a.Registry != nil {
		rcfg.Gatherer = a.Registry
	}

	if cfg.RPC.JSONRPC || cfg.WebSocket.Enabled {
		server := rpc.NewServer(a.Dispatcher, contextFunc, a.Logger)
		if cfg.RPC.JSONRPC {
			rcfg.JSONRPCHandler = server
		}
		if cfg.WebSocket.Enabled {
			wcfg := ws.DefaultConfig()
			wcfg.MaxMessageSize = cfg.WebSocket.MaxMessageSize
			wcfg.PingInterval = cfg.WebSocket.PingInterval
			if cfg.WebSocket.PingInterval > 0 {
				wcfg.ReadTimeout = cfg.WebSocket.PingInterval * 2
			}
			rcfg.WebsocketHandler = ws.NewHandler(server, contextFunc, wcfg, a.Logger)
		}
	}

	checks := map[string]apihttp.HealthChecker{"database": health}
	rpcHandler := apihttp.NewRPCHandler(a.Dispatcher, apihttp.ContextFunc(contextFunc), a.Logger)
	return apihttp.NewRouter(rpcHandler, apihttp.NewHealthHandler(checks), a.Logger, rcfg)
}

// RequestContext builds the initial procedure context of an HTTP request:
// its Authorization header and client address.
func RequestContext(r *http.Request) procedure.Context {
	c := procedure.Context{}
	if v := r.Header.Get("Authorization"); v != "" {
		c[app.AuthorizationKey] = v
	}
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if ip != "" {
		c[app.ClientIPKey] = ip
	}
	return c
}

// applyConfig pushes reloadable settings into running components.
func (a *App) applyConfig(cfg *config.Config) {
	if level, err := zerolog.ParseLevel(cfg.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	if a.limiter != nil {
		if cfg.RateLimit.Enabled {
			a.limiter.SetRate(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
		} else {
			a.limiter.SetRate(0, 0)
		}
	}
}

// Run starts the HTTP server and blocks until shutdown.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().
			Str("addr", a.HTTPServer.Addr).
			Msg("starting http server")
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		_ = a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	deadline := a.shutdownDeadline
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	var errs []error

	if a.Config != nil {
		a.Config.Stop()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
			errs = append(errs, err)
		}
	}

	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("tracing shutdown error")
			errs = append(errs, err)
		}
	}

	if a.limiter != nil {
		a.limiter.Close()
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
			errs = append(errs, err)
		}
	}

	a.Logger.Info().Msg("shutdown complete")
	return errors.Join(errs...)
}

// SetupLogger builds the process logger and sets the global level.
func SetupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
