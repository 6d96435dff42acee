package router

import (
	"context"
	"errors"

	"github.com/artpar/procgate/domain/procedure"
	"github.com/artpar/procgate/domain/rpcerror"
)

// Options describes what Enhance applies to every procedure of a subtree.
type Options struct {
	// Prefix is prepended to explicit route paths and to lazy prefix hints.
	Prefix string
	// Tags are placed before each procedure's own tags.
	Tags []string
	// ErrorMap is merged under each procedure's own declarations.
	ErrorMap rpcerror.ErrorMap
	// Middlewares run before each procedure's own middlewares.
	Middlewares []procedure.Middleware
}

// Enhance returns a copy of r with opts applied to every procedure,
// including those inside lazy nodes once they load.
func Enhance(r Router, opts Options) Router {
	return enhanceNode(Sub(r), opts).sub
}

// Prefix prefixes every explicit route path in r.
func Prefix(r Router, prefix string) Router {
	return Enhance(r, Options{Prefix: prefix})
}

// Tag adds tags to every procedure in r.
func Tag(r Router, tags ...string) Router {
	return Enhance(r, Options{Tags: tags})
}

// Errors merges m into the error map of every procedure in r.
func Errors(r Router, m rpcerror.ErrorMap) Router {
	return Enhance(r, Options{ErrorMap: m})
}

// Use runs mws before every procedure in r.
func Use(r Router, mws ...procedure.Middleware) Router {
	return Enhance(r, Options{Middlewares: mws})
}

func enhanceNode(n Node, opts Options) Node {
	switch n.kind {
	case KindProcedure:
		p := n.proc.
			WithPrefix(opts.Prefix).
			WithTags(opts.Tags...).
			WithBaseErrorMap(opts.ErrorMap).
			WithMiddlewares(opts.Middlewares...)
		return Proc(p)

	case KindRouter:
		out := make(Router, len(n.sub))
		for k, child := range n.sub {
			out[k] = enhanceNode(child, opts)
		}
		return Sub(out)

	case KindLazy:
		inner := n.lazy
		hint := inner.PrefixHint()
		if opts.Prefix != "" {
			hint = opts.Prefix + hint
		}
		var lopts []LazyOption
		if hint != "" {
			lopts = append(lopts, WithPrefixHint(hint))
		}
		return LazyNode(NewLazy(func(ctx context.Context) (Node, error) {
			resolved, err := inner.Resolve(ctx)
			if err != nil {
				return Node{}, err
			}
			return enhanceNode(resolved, opts), nil
		}, lopts...))
	}
	return n
}

// Implement overlays the procedures of impl onto the contract tree. Every
// contract procedure takes its handler and middlewares from the procedure
// at the same path in impl; contract procedures missing from impl stay as
// unimplemented stubs (see Validate).
func Implement(contract, impl Router) Router {
	return implementNode(Sub(contract), Sub(impl)).sub
}

func implementNode(c, impl Node) Node {
	if impl.kind == KindLazy && c.kind != KindLazy {
		implLazy := impl.lazy
		return LazyNode(NewLazy(func(ctx context.Context) (Node, error) {
			resolved, err := implLazy.Resolve(ctx)
			if err != nil {
				return Node{}, err
			}
			return implementNode(c, resolved), nil
		}))
	}

	switch c.kind {
	case KindProcedure:
		if impl.kind == KindProcedure && impl.proc.HasHandler() {
			return Proc(c.proc.Implement(impl.proc))
		}
		return c

	case KindRouter:
		out := make(Router, len(c.sub))
		for k, child := range c.sub {
			var implChild Node
			if impl.kind == KindRouter {
				implChild = impl.sub[k]
			}
			out[k] = implementNode(child, implChild)
		}
		return Sub(out)

	case KindLazy:
		inner := c.lazy
		var lopts []LazyOption
		if hint := inner.PrefixHint(); hint != "" {
			lopts = append(lopts, WithPrefixHint(hint))
		}
		return LazyNode(NewLazy(func(ctx context.Context) (Node, error) {
			resolved, err := inner.Resolve(ctx)
			if err != nil {
				return Node{}, err
			}
			implResolved := impl
			if impl.kind == KindLazy {
				if implResolved, err = impl.lazy.Resolve(ctx); err != nil {
					return Node{}, err
				}
			}
			return implementNode(resolved, implResolved), nil
		}, lopts...))
	}
	return c
}

// Validate reports every unimplemented procedure reachable without loading
// lazy nodes, as joined *rpcerror.ConfigurationError values.
func Validate(r Router) error {
	var errs []error
	Traverse(Sub(r), nil, func(path []string, p *procedure.Procedure) {
		if !p.HasHandler() {
			errs = append(errs, &rpcerror.ConfigurationError{Path: path, Reason: "procedure is not implemented"})
		}
	})
	return errors.Join(errs...)
}
