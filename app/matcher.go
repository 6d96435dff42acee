// Package app provides application services that orchestrate domain logic.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/artpar/procgate/domain/procedure"
	"github.com/artpar/procgate/domain/route"
	"github.com/artpar/procgate/domain/router"
	"github.com/artpar/procgate/domain/rpcerror"
	"github.com/artpar/procgate/ports"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Match is a resolved procedure for a request.
type Match struct {
	Path      []string
	Procedure *procedure.Procedure
	Params    map[string]string
}

// ProcedureMatcher compiles a router into an HTTP route table. Lazy
// subtrees are registered only when a request could fall under them.
type ProcedureMatcher struct {
	clock   ports.Clock
	metrics ports.Metrics
	logger  zerolog.Logger

	mu         sync.Mutex
	table      *route.Matcher
	procedures map[string]*procedure.Procedure
	pending    []pendingLazy
	// invalid holds declared paths of lazy nodes that loaded to something
	// other than a procedure or router.
	invalid map[string][]string
}

type pendingLazy struct {
	path     []string
	lazy     *router.Lazy
	hint     string
	treePath string
}

// NewProcedureMatcher registers every eagerly reachable procedure of r
// and queues its lazy nodes.
func NewProcedureMatcher(r router.Router, clock ports.Clock, metrics ports.Metrics, logger zerolog.Logger) (*ProcedureMatcher, error) {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	m := &ProcedureMatcher{
		clock:      clock,
		metrics:    metrics,
		logger:     logger.With().Str("service", "matcher").Logger(),
		table:      route.NewMatcher(),
		procedures: make(map[string]*procedure.Procedure),
		invalid:    make(map[string][]string),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.registerLocked(router.Sub(r), nil); err != nil {
		return nil, err
	}
	m.logger.Debug().
		Int("routes", m.table.Len()).
		Int("pending_lazy", len(m.pending)).
		Msg("route table initialized")
	return m, nil
}

func pathKey(path []string) string {
	return strings.Join(path, "\x00")
}

// registerLocked adds every procedure under n and queues its lazy nodes.
func (m *ProcedureMatcher) registerLocked(n router.Node, base []string) error {
	var regErr error
	pending := router.Traverse(n, base, func(path []string, p *procedure.Procedure) {
		if regErr != nil {
			return
		}
		rt := p.Route()
		pattern := rt.Path
		if pattern == "" {
			pattern = route.StandardPath(path)
		}
		if err := m.table.Register(rt.Method, pattern, path); err != nil {
			regErr = fmt.Errorf("register %s: %w", strings.Join(path, "."), err)
			return
		}
		m.procedures[pathKey(path)] = p
	})
	if regErr != nil {
		return regErr
	}

	for _, pl := range pending {
		hint := pl.Lazy.PrefixHint()
		if hint != "" {
			hint = route.NormalizePath(hint)
		}
		m.pending = append(m.pending, pendingLazy{
			path:     pl.Path,
			lazy:     pl.Lazy,
			hint:     hint,
			treePath: route.StandardPath(pl.Path),
		})
	}
	return nil
}

// plausible reports whether a request for path could fall under pl.
func (pl pendingLazy) plausible(path string) bool {
	return pl.hint == "" || strings.HasPrefix(path, pl.hint) || strings.HasPrefix(path, pl.treePath)
}

// Match resolves method and path to a procedure. It returns (nil, nil)
// when nothing matches and a *rpcerror.ConfigurationError when the path
// addresses something that cannot be executed. If ctx ends while a lazy
// router is loading, Match returns ctx's error.
func (m *ProcedureMatcher) Match(ctx context.Context, method, path string) (*Match, error) {
	path = route.NormalizePath(path)

	if err := m.resolvePending(ctx, func(pl pendingLazy) bool { return pl.plausible(path) }); err != nil {
		return nil, err
	}

	m.mu.Lock()
	res, ok := m.table.Match(method, path)
	if !ok {
		declared, isInvalid := m.invalid[path]
		m.mu.Unlock()
		if isInvalid {
			return nil, &rpcerror.ConfigurationError{Path: declared, Reason: "lazy router did not resolve to a procedure or router"}
		}
		return nil, nil
	}
	p := m.procedures[pathKey(res.Path)]
	m.mu.Unlock()

	match := &Match{Path: res.Path, Procedure: p, Params: res.Params}
	if p == nil || !p.HasHandler() {
		return match, &rpcerror.ConfigurationError{Path: res.Path, Reason: "procedure is not implemented"}
	}
	return match, nil
}

// Preload resolves every pending lazy node.
func (m *ProcedureMatcher) Preload(ctx context.Context) error {
	return m.resolvePending(ctx, func(pendingLazy) bool { return true })
}

// Routes returns the registered route entries.
func (m *ProcedureMatcher) Routes() []route.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.Entries()
}

// Pending returns the number of unresolved lazy nodes.
func (m *ProcedureMatcher) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// resolvePending loads selected pending nodes, registers what they
// contain, and repeats for nested lazy nodes until nothing selected is
// left. Loaders run outside the lock; concurrent callers may load the same
// node, which Lazy coalesces and registration tolerates.
func (m *ProcedureMatcher) resolvePending(ctx context.Context, selected func(pendingLazy) bool) error {
	for {
		m.mu.Lock()
		var ready []pendingLazy
		for _, pl := range m.pending {
			if selected(pl) {
				ready = append(ready, pl)
			}
		}
		m.mu.Unlock()

		if len(ready) == 0 {
			return nil
		}

		nodes := make([]router.Node, len(ready))
		errs := make([]error, len(ready))
		var g errgroup.Group
		for i, pl := range ready {
			g.Go(func() error {
				start := m.clock.Now()
				nodes[i], errs[i] = pl.lazy.Resolve(ctx)
				m.metrics.LazyLoaded(strings.Join(pl.path, "."), errs[i], m.clock.Now().Sub(start))
				return nil
			})
		}
		_ = g.Wait()

		m.mu.Lock()
		var firstErr error
		for i, pl := range ready {
			if errs[i] != nil {
				err := router.LoadError(ctx, pl.path, errs[i])
				if errors.As(err, new(*rpcerror.ConfigurationError)) {
					m.logger.Error().Err(errs[i]).Strs("path", pl.path).Msg("lazy router failed to load")
				}
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			if !m.removePendingLocked(pl.lazy) {
				continue
			}
			if err := m.registerResolvedLocked(pl, nodes[i]); err != nil && firstErr == nil {
				firstErr = &rpcerror.ConfigurationError{Path: pl.path, Reason: "lazy router registration failed", Cause: err}
			}
		}
		m.mu.Unlock()

		if firstErr != nil {
			return firstErr
		}
	}
}

func (m *ProcedureMatcher) removePendingLocked(l *router.Lazy) bool {
	for i, pl := range m.pending {
		if pl.lazy == l {
			m.pending = append(m.pending[:i:i], m.pending[i+1:]...)
			return true
		}
	}
	return false
}

func (m *ProcedureMatcher) registerResolvedLocked(pl pendingLazy, n router.Node) error {
	switch n.Kind() {
	case router.KindProcedure, router.KindRouter, router.KindLazy:
		before := m.table.Len()
		if err := m.registerLocked(n, pl.path); err != nil {
			return err
		}
		m.logger.Debug().
			Strs("path", pl.path).
			Int("routes", m.table.Len()-before).
			Msg("lazy router loaded")
		return nil
	}

	m.logger.Warn().Strs("path", pl.path).Msg("lazy router resolved to invalid content")
	m.invalid[pl.treePath] = pl.path
	if pl.hint != "" {
		m.invalid[pl.hint] = pl.path
	}
	return nil
}
