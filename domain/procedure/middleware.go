package procedure

import (
	"context"

	"github.com/artpar/procgate/domain/rpcerror"
)

// Result is what a middleware returns upward. Context is the delta the
// middleware passed to Next, if it called it.
type Result struct {
	Output  any
	Context Context
}

// Output builds the result a middleware returns to end the chain without
// calling Next.
func Output(v any) Result {
	return Result{Output: v}
}

// NextFunc merges delta into the current context and runs the rest of the
// chain.
type NextFunc func(ctx context.Context, delta Context) (Result, error)

// MiddlewareOptions is passed to every middleware invocation.
type MiddlewareOptions struct {
	Context   Context
	Path      []string
	Procedure *Procedure
	Errors    rpcerror.Constructors
	Next      NextFunc
}

// Middleware intercepts a procedure call. It either calls opts.Next and
// returns (possibly post-processing) its result, or returns directly to
// short-circuit the rest of the chain.
type Middleware interface {
	Handle(ctx context.Context, input any, opts MiddlewareOptions) (Result, error)
}

// MiddlewareFunc is an adapter to allow ordinary functions as middleware.
type MiddlewareFunc func(ctx context.Context, input any, opts MiddlewareOptions) (Result, error)

// Handle calls f.
func (f MiddlewareFunc) Handle(ctx context.Context, input any, opts MiddlewareOptions) (Result, error) {
	return f(ctx, input, opts)
}

// MapInput adapts mw to see fn(input) instead of the procedure input.
// The rest of the chain still receives the original input.
func MapInput(mw Middleware, fn func(input any) any) Middleware {
	return MiddlewareFunc(func(ctx context.Context, input any, opts MiddlewareOptions) (Result, error) {
		return mw.Handle(ctx, fn(input), opts)
	})
}

// HandlerOptions is passed to the procedure handler.
type HandlerOptions struct {
	Context   Context
	Path      []string
	Procedure *Procedure
	Errors    rpcerror.Constructors
}

// HandlerFunc implements a procedure.
type HandlerFunc func(ctx context.Context, input any, opts HandlerOptions) (any, error)
