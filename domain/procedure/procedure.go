// Package procedure models a single RPC endpoint: its schemas, declared
// errors, route, middleware chain and handler, and the executor that runs
// them in order.
package procedure

import (
	"github.com/artpar/procgate/domain/rpcerror"
	"github.com/artpar/procgate/domain/schema"
)

// Route describes how a procedure is exposed over HTTP.
type Route struct {
	Method        string
	Path          string
	Tags          []string
	Summary       string
	Description   string
	SuccessStatus int
	Deprecated    bool
}

// merge returns r with the non-zero fields of o applied.
func (r Route) merge(o Route) Route {
	if o.Method != "" {
		r.Method = o.Method
	}
	if o.Path != "" {
		r.Path = o.Path
	}
	if len(o.Tags) > 0 {
		r.Tags = append(append([]string(nil), r.Tags...), o.Tags...)
	}
	if o.Summary != "" {
		r.Summary = o.Summary
	}
	if o.Description != "" {
		r.Description = o.Description
	}
	if o.SuccessStatus != 0 {
		r.SuccessStatus = o.SuccessStatus
	}
	if o.Deprecated {
		r.Deprecated = true
	}
	return r
}

// Procedure is an immutable endpoint definition. It is created by a Builder
// and derived through the With methods, which return copies.
// A Procedure without a handler is a contract stub.
type Procedure struct {
	input                 schema.Schema
	output                schema.Schema
	errorMap              rpcerror.ErrorMap
	meta                  map[string]any
	route                 Route
	middlewares           []Middleware
	inputValidationIndex  int
	outputValidationIndex int
	handler               HandlerFunc
}

func (p *Procedure) InputSchema() schema.Schema  { return p.input }
func (p *Procedure) OutputSchema() schema.Schema { return p.output }
func (p *Procedure) Route() Route                { return p.route }
func (p *Procedure) InputValidationIndex() int   { return p.inputValidationIndex }
func (p *Procedure) OutputValidationIndex() int  { return p.outputValidationIndex }
func (p *Procedure) HasHandler() bool            { return p.handler != nil }

// ErrorMap returns a copy of the declared errors.
func (p *Procedure) ErrorMap() rpcerror.ErrorMap {
	return rpcerror.MergeErrorMap(nil, p.errorMap)
}

// Meta returns a copy of the metadata.
func (p *Procedure) Meta() map[string]any {
	out := make(map[string]any, len(p.meta))
	for k, v := range p.meta {
		out[k] = v
	}
	return out
}

// Middlewares returns a copy of the middleware list.
func (p *Procedure) Middlewares() []Middleware {
	return append([]Middleware(nil), p.middlewares...)
}

func (p *Procedure) clone() *Procedure {
	c := *p
	return &c
}

// WithPrefix returns a copy whose explicit route path is prefixed.
// Procedures without an explicit path are returned unchanged.
func (p *Procedure) WithPrefix(prefix string) *Procedure {
	if p.route.Path == "" || prefix == "" {
		return p
	}
	c := p.clone()
	c.route.Path = prefix + p.route.Path
	return c
}

// WithTags returns a copy with tags placed before the existing ones.
func (p *Procedure) WithTags(tags ...string) *Procedure {
	if len(tags) == 0 {
		return p
	}
	c := p.clone()
	c.route.Tags = append(append([]string(nil), tags...), p.route.Tags...)
	return c
}

// WithBaseErrorMap returns a copy whose error map is base overridden by the
// procedure's own declarations.
func (p *Procedure) WithBaseErrorMap(base rpcerror.ErrorMap) *Procedure {
	if len(base) == 0 {
		return p
	}
	c := p.clone()
	c.errorMap = rpcerror.MergeErrorMap(base, p.errorMap)
	return c
}

// WithMiddlewares returns a copy with mws run before the existing
// middlewares. Validation indices shift so validation stays at the same
// position relative to the procedure's own middlewares.
func (p *Procedure) WithMiddlewares(mws ...Middleware) *Procedure {
	if len(mws) == 0 {
		return p
	}
	c := p.clone()
	c.middlewares = append(append([]Middleware(nil), mws...), p.middlewares...)
	c.inputValidationIndex += len(mws)
	c.outputValidationIndex += len(mws)
	return c
}

// Implement returns a copy of the contract p carrying impl's middlewares
// and handler. Contract schemas and route win; error maps and metadata are
// merged with impl's entries taking precedence.
func (p *Procedure) Implement(impl *Procedure) *Procedure {
	c := p.clone()
	if c.input == nil {
		c.input = impl.input
	}
	if c.output == nil {
		c.output = impl.output
	}
	c.errorMap = rpcerror.MergeErrorMap(p.errorMap, impl.errorMap)
	c.meta = mergeMeta(p.meta, impl.meta)
	c.middlewares = append([]Middleware(nil), impl.middlewares...)
	c.inputValidationIndex = impl.inputValidationIndex
	c.outputValidationIndex = impl.outputValidationIndex
	c.handler = impl.handler
	return c
}

func mergeMeta(a, b map[string]any) map[string]any {
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
