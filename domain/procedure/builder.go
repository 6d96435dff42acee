package procedure

import (
	"errors"
	"fmt"

	"github.com/artpar/procgate/domain/rpcerror"
	"github.com/artpar/procgate/domain/schema"
)

// Builder assembles a Procedure. Every method returns a new Builder, so a
// partially configured builder can be shared as a base.
type Builder struct {
	p   Procedure
	err error
}

// New returns an empty Builder.
func New() Builder {
	return Builder{}
}

// Errors declares errors, merged over those already declared.
func (b Builder) Errors(m rpcerror.ErrorMap) Builder {
	if err := m.Validate(); err != nil && b.err == nil {
		b.err = err
	}
	b.p.errorMap = rpcerror.MergeErrorMap(b.p.errorMap, m)
	return b
}

// Use appends middlewares.
func (b Builder) Use(mws ...Middleware) Builder {
	b.p.middlewares = append(append([]Middleware(nil), b.p.middlewares...), mws...)
	return b
}

// UseFunc appends a middleware function.
func (b Builder) UseFunc(fn MiddlewareFunc) Builder {
	return b.Use(fn)
}

// Input sets the input schema. Middlewares added before this call see the
// raw input; those added after see the validated value.
func (b Builder) Input(s schema.Schema) Builder {
	b.p.input = s
	b.p.inputValidationIndex = len(b.p.middlewares)
	return b
}

// Output sets the output schema. Output is validated when returning past
// the middlewares added after this call.
func (b Builder) Output(s schema.Schema) Builder {
	b.p.output = s
	b.p.outputValidationIndex = len(b.p.middlewares)
	return b
}

// Route merges r into the route; zero fields are ignored and tags append.
func (b Builder) Route(r Route) Builder {
	b.p.route = b.p.route.merge(r)
	return b
}

// Meta merges m into the metadata.
func (b Builder) Meta(m map[string]any) Builder {
	b.p.meta = mergeMeta(b.p.meta, m)
	return b
}

// Build returns the procedure implemented by h.
func (b Builder) Build(h HandlerFunc) (*Procedure, error) {
	if b.err != nil {
		return nil, b.err
	}
	if h == nil {
		return nil, errors.New("procedure handler is nil")
	}
	p := b.p
	p.handler = h
	return &p, nil
}

// Handler is like Build but panics on an invalid definition.
func (b Builder) Handler(h HandlerFunc) *Procedure {
	p, err := b.Build(h)
	if err != nil {
		panic(fmt.Sprintf("procedure: %v", err))
	}
	return p
}

// Contract returns a procedure without a handler, to be implemented later.
func (b Builder) Contract() *Procedure {
	if b.err != nil {
		panic(fmt.Sprintf("procedure: %v", b.err))
	}
	p := b.p
	return &p
}
