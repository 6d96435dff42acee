package config

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

var errNoFile = errors.New("configuration was not loaded from a file")

// DefaultDebounce coalesces bursts of file events (editors often write a
// file several times per save) into one reload.
const DefaultDebounce = 100 * time.Millisecond

// Holder publishes the current configuration and reloads it from its file.
// Reloads are serialized; readers never block.
type Holder struct {
	current atomic.Pointer[Config]
	path    string
	logger  zerolog.Logger

	reloadMu sync.Mutex

	listenersMu sync.Mutex
	onChange    []func(*Config)
	onReload    []func(err error, at time.Time)

	debounce time.Duration
	watcher  *fsnotify.Watcher
	stop     chan struct{}
	stopOnce sync.Once
}

// NewHolder loads path and returns a holder that can reload it.
func NewHolder(path string, logger zerolog.Logger) (*Holder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}

	h := newHolder(cfg, logger)
	h.path = abs
	return h, nil
}

// Static returns a holder for cfg with no backing file. Reload and
// WatchFile fail on it.
func Static(cfg *Config, logger zerolog.Logger) *Holder {
	return newHolder(cfg, logger)
}

func newHolder(cfg *Config, logger zerolog.Logger) *Holder {
	h := &Holder{
		logger:   logger.With().Str("service", "config").Logger(),
		debounce: DefaultDebounce,
		stop:     make(chan struct{}),
	}
	h.current.Store(cfg)
	return h
}

// Get returns the current configuration. Callers must not modify it once
// the holder is shared.
func (h *Holder) Get() *Config {
	return h.current.Load()
}

// OnChange registers fn to run with every successfully reloaded config.
func (h *Holder) OnChange(fn func(*Config)) {
	h.listenersMu.Lock()
	h.onChange = append(h.onChange, fn)
	h.listenersMu.Unlock()
}

// OnReload registers fn to run after every reload attempt. err is nil for
// successful attempts.
func (h *Holder) OnReload(fn func(err error, at time.Time)) {
	h.listenersMu.Lock()
	h.onReload = append(h.onReload, fn)
	h.listenersMu.Unlock()
}

func (h *Holder) listeners() ([]func(*Config), []func(error, time.Time)) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	return append(([]func(*Config))(nil), h.onChange...),
		append(([]func(error, time.Time))(nil), h.onReload...)
}

// Reload reads the file again. An invalid file leaves the current
// configuration in place and is reported to OnReload observers.
func (h *Holder) Reload() error {
	if h.path == "" {
		return errNoFile
	}

	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()

	changeFns, reloadFns := h.listeners()

	next, err := Load(h.path)
	at := time.Now()
	if err != nil {
		h.logger.Error().Err(err).Str("path", h.path).Msg("config reload failed, keeping current config")
		for _, fn := range reloadFns {
			fn(err, at)
		}
		return fmt.Errorf("reload config: %w", err)
	}

	prev := h.current.Swap(next)
	h.logChanges(Changes(prev, next))

	for _, fn := range changeFns {
		fn(next)
	}
	for _, fn := range reloadFns {
		fn(nil, at)
	}
	return nil
}

// WatchFile reloads whenever the config file is written or replaced.
func (h *Holder) WatchFile() error {
	if h.path == "" {
		return errNoFile
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	// The directory is watched so atomic saves (write temp, rename) are seen.
	if err := w.Add(filepath.Dir(h.path)); err != nil {
		w.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	h.watcher = w

	go h.watch(w)

	h.logger.Info().Str("path", h.path).Msg("watching config file")
	return nil
}

func (h *Holder) watch(w *fsnotify.Watcher) {
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != h.path || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			h.logger.Debug().Str("op", ev.Op.String()).Msg("config file changed")
			if timer == nil {
				timer = time.NewTimer(h.debounce)
			} else {
				timer.Reset(h.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			_ = h.Reload()

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			h.logger.Error().Err(err).Msg("config watcher error")

		case <-h.stop:
			return
		}
	}
}

// WatchSignals reloads on SIGHUP until Stop.
func (h *Holder) WatchSignals() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP)

	go func() {
		defer signal.Stop(sig)
		for {
			select {
			case <-sig:
				h.logger.Info().Msg("SIGHUP received, reloading config")
				_ = h.Reload()
			case <-h.stop:
				return
			}
		}
	}()
}

// Stop ends file and signal watching. It is safe to call more than once.
func (h *Holder) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
		if h.watcher != nil {
			h.watcher.Close()
		}
	})
}

func (h *Holder) logChanges(changed []string) {
	if len(changed) == 0 {
		h.logger.Info().Msg("config reloaded, no changes")
		return
	}

	var live, restart []string
	for _, name := range changed {
		if isReloadable(name) {
			live = append(live, name)
		} else {
			restart = append(restart, name)
		}
	}
	if len(live) > 0 {
		h.logger.Info().Strs("fields", live).Msg("config reloaded")
	}
	if len(restart) > 0 {
		h.logger.Warn().Strs("fields", restart).Msg("changed fields take effect after restart")
	}
}

type field struct {
	name       string
	reloadable bool
	differs    func(a, b *Config) bool
}

// fields lists the settings whose changes are reported on reload.
var fields = []field{
	{"logging.level", true, func(a, b *Config) bool { return a.Logging.Level != b.Logging.Level }},
	{"rate_limit.enabled", true, func(a, b *Config) bool { return a.RateLimit.Enabled != b.RateLimit.Enabled }},
	{"rate_limit.requests_per_second", true, func(a, b *Config) bool {
		return a.RateLimit.RequestsPerSecond != b.RateLimit.RequestsPerSecond
	}},
	{"rate_limit.burst", true, func(a, b *Config) bool { return a.RateLimit.Burst != b.RateLimit.Burst }},
	{"server.host", false, func(a, b *Config) bool { return a.Server.Host != b.Server.Host }},
	{"server.port", false, func(a, b *Config) bool { return a.Server.Port != b.Server.Port }},
	{"rpc.prefix", false, func(a, b *Config) bool { return a.RPC.Prefix != b.RPC.Prefix }},
	{"database.driver", false, func(a, b *Config) bool { return a.Database.Driver != b.Database.Driver }},
	{"database.dsn", false, func(a, b *Config) bool { return a.Database.DSN != b.Database.DSN }},
	{"auth.jwt_secret", false, func(a, b *Config) bool { return a.Auth.JWTSecret != b.Auth.JWTSecret }},
}

// Changes returns the names of tracked fields that differ between a and b.
func Changes(a, b *Config) []string {
	var out []string
	for _, f := range fields {
		if f.differs(a, b) {
			out = append(out, f.name)
		}
	}
	return out
}

func isReloadable(name string) bool {
	for _, f := range fields {
		if f.name == name {
			return f.reloadable
		}
	}
	return false
}

// ReloadableFields returns the fields applied without a restart.
func ReloadableFields() []string {
	return fieldNames(true)
}

// NonReloadableFields returns the fields that need a restart.
func NonReloadableFields() []string {
	return fieldNames(false)
}

func fieldNames(reloadable bool) []string {
	var out []string
	for _, f := range fields {
		if f.reloadable == reloadable {
			out = append(out, f.name)
		}
	}
	return out
}
