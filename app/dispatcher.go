package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/artpar/procgate/domain/procedure"
	"github.com/artpar/procgate/domain/route"
	"github.com/artpar/procgate/domain/router"
	"github.com/artpar/procgate/domain/rpcerror"
	"github.com/artpar/procgate/ports"
	"github.com/rs/zerolog"
)

// RequestIDKey is the initial-context key transports use to pass a
// request ID; the dispatcher generates one when it is absent.
const RequestIDKey = "request_id"

// DecodeFunc reads the call input once the procedure is known. Transports
// use the match to merge path params into the input.
type DecodeFunc func(ctx context.Context, m *Match) (any, error)

// Request is a transport-neutral inbound call.
type Request struct {
	Method  string
	Path    string
	Context procedure.Context
	Decode  DecodeFunc
}

// Response is the outcome of a dispatch. Matched is false when no
// procedure claims the request; the transport decides how to report it.
type Response struct {
	Matched bool
	Match   *Match
	Output  any
	Err     *rpcerror.Error
}

// HandleFunc dispatches one request.
type HandleFunc func(ctx context.Context, req Request) Response

// Interceptor wraps every dispatch. It may inspect or replace the
// request and the response.
type Interceptor func(ctx context.Context, req Request, next HandleFunc) Response

// DispatcherConfig contains configuration for Dispatcher.
type DispatcherConfig struct {
	// Prefix is stripped from request paths before matching. Requests
	// outside the prefix are unmatched.
	Prefix       string
	Interceptors []Interceptor
}

// Dispatcher matches requests to procedures and runs them.
type Dispatcher struct {
	router  router.Router
	matcher *ProcedureMatcher
	clock   ports.Clock
	ids     ports.IDGenerator
	metrics ports.Metrics
	logger  zerolog.Logger

	prefix string
	handle HandleFunc
}

// NewDispatcher creates a dispatcher for r.
func NewDispatcher(
	r router.Router,
	matcher *ProcedureMatcher,
	clock ports.Clock,
	ids ports.IDGenerator,
	metrics ports.Metrics,
	logger zerolog.Logger,
	cfg DispatcherConfig,
) *Dispatcher {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	prefix := ""
	if cfg.Prefix != "" && cfg.Prefix != "/" {
		prefix = route.NormalizePath(cfg.Prefix)
	}

	d := &Dispatcher{
		router:  r,
		matcher: matcher,
		clock:   clock,
		ids:     ids,
		metrics: metrics,
		logger:  logger.With().Str("service", "dispatcher").Logger(),
		prefix:  prefix,
	}

	handle := d.dispatch
	for i := len(cfg.Interceptors) - 1; i >= 0; i-- {
		icpt, next := cfg.Interceptors[i], handle
		handle = func(ctx context.Context, req Request) Response {
			return icpt(ctx, req, next)
		}
	}
	d.handle = handle
	return d
}

// Matcher returns the route table used for HTTP-style dispatch.
func (d *Dispatcher) Matcher() *ProcedureMatcher {
	return d.matcher
}

// Dispatch matches req and executes the procedure. Every returned error
// has been validated against the matched procedure's error map.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	return d.handle(ctx, req)
}

func (d *Dispatcher) stripPrefix(path string) (string, bool) {
	path = route.NormalizePath(path)
	if d.prefix == "" {
		return path, true
	}
	if path == d.prefix {
		return "/", true
	}
	if strings.HasPrefix(path, d.prefix+"/") {
		return path[len(d.prefix):], true
	}
	return "", false
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) Response {
	path, ok := d.stripPrefix(req.Path)
	if !ok {
		d.metrics.DispatchUnmatched()
		return Response{}
	}

	rid := req.Context.String(RequestIDKey)
	if rid == "" {
		rid = d.ids.New()
		req.Context = req.Context.Merge(procedure.Context{RequestIDKey: rid})
	}

	m, err := d.matcher.Match(ctx, req.Method, path)
	if err != nil {
		var errMap rpcerror.ErrorMap
		var logical []string
		if m != nil && m.Procedure != nil {
			errMap = m.Procedure.ErrorMap()
			logical = m.Path
		}
		e := rpcerror.ValidateAgainstMap(ctx, errMap, rpcerror.From(err))
		d.observe(logical, rid, e, 0)
		return Response{Matched: true, Match: m, Err: e}
	}
	if m == nil {
		d.metrics.DispatchUnmatched()
		d.logger.Debug().Str("method", req.Method).Str("path", path).Msg("no procedure matched")
		return Response{}
	}

	input, derr := d.decode(ctx, req, m)
	if derr != nil {
		d.observe(m.Path, rid, derr, 0)
		return Response{Matched: true, Match: m, Err: derr}
	}

	out, e := d.run(ctx, m.Procedure, m.Path, rid, input, req.Context)
	return Response{Matched: true, Match: m, Output: out, Err: e}
}

func (d *Dispatcher) decode(ctx context.Context, req Request, m *Match) (any, *rpcerror.Error) {
	if req.Decode == nil {
		return nil, nil
	}
	input, err := req.Decode(ctx, m)
	if err == nil {
		return input, nil
	}

	var e *rpcerror.Error
	if !errors.As(err, &e) {
		e = rpcerror.Must(rpcerror.CodeBadRequest, rpcerror.Options{
			Message: "Malformed request. Ensure the request body is properly formatted and the 'Content-Type' header is set correctly.",
			Cause:   err,
		})
	}
	return nil, rpcerror.ValidateAgainstMap(ctx, m.Procedure.ErrorMap(), e)
}

// Call invokes the procedure at a logical path in-process, resolving it
// through the router tree rather than the route table.
func (d *Dispatcher) Call(ctx context.Context, path []string, input any, initial procedure.Context) (any, error) {
	rid := initial.String(RequestIDKey)
	if rid == "" {
		rid = d.ids.New()
		initial = initial.Merge(procedure.Context{RequestIDKey: rid})
	}

	p, err := router.GetProcedure(ctx, d.router, path)
	if err != nil {
		var e *rpcerror.Error
		if errors.Is(err, router.ErrNotFound) {
			e = rpcerror.Must(rpcerror.CodeNotFound, rpcerror.Options{
				Message: "No procedure found at " + strings.Join(path, "."),
				Cause:   err,
			})
		} else {
			e = rpcerror.From(err)
		}
		d.observe(path, rid, e, 0)
		return nil, e
	}

	out, e := d.run(ctx, p, path, rid, input, initial)
	if e != nil {
		return nil, e
	}
	return out, nil
}

func (d *Dispatcher) run(ctx context.Context, p *procedure.Procedure, path []string, rid string, input any, initial procedure.Context) (any, *rpcerror.Error) {
	d.metrics.InFlight(1)
	defer d.metrics.InFlight(-1)
	start := d.clock.Now()

	out, err := procedure.Call(ctx, p, input, procedure.ExecuteOptions{
		Context: initial,
		Path:    path,
	})

	var e *rpcerror.Error
	if err != nil {
		e = err.(*rpcerror.Error)
	}
	d.observe(path, rid, e, d.clock.Now().Sub(start))
	return out, e
}

// observe logs and records a finished call.
func (d *Dispatcher) observe(path []string, rid string, e *rpcerror.Error, elapsed time.Duration) {
	var err error
	if e != nil {
		err = e
	}
	kind := rpcerror.KindOf(err)
	logical := strings.Join(path, ".")
	d.metrics.DispatchFinished(logical, string(kind), elapsed)

	var evt *zerolog.Event
	switch kind {
	case rpcerror.KindNone:
		evt = d.logger.Debug()
	case rpcerror.KindDeclared, rpcerror.KindInputValidation:
		evt = d.logger.Warn()
	default:
		evt = d.logger.Error()
	}
	if e != nil {
		evt = evt.Str("code", string(e.Code)).Int("status", e.Status)
		if e.Cause != nil {
			evt = evt.AnErr("cause", e.Cause)
		}
	}
	evt.
		Str("request_id", rid).
		Str("procedure", logical).
		Str("kind", string(kind)).
		Dur("duration", elapsed).
		Msg("procedure call")
}
