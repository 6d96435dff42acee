// Package router composes procedures into a named tree. A node is a
// procedure, a nested router, or a lazily loaded subtree.
package router

import (
	"context"
	"errors"
	"sort"

	"github.com/artpar/procgate/domain/procedure"
	"github.com/artpar/procgate/domain/rpcerror"
)

// Kind tags a Node.
type Kind int

const (
	KindInvalid Kind = iota
	KindProcedure
	KindRouter
	KindLazy
)

func (k Kind) String() string {
	switch k {
	case KindProcedure:
		return "procedure"
	case KindRouter:
		return "router"
	case KindLazy:
		return "lazy"
	default:
		return "invalid"
	}
}

// Node is one entry of a router tree. The zero Node is invalid.
type Node struct {
	kind Kind
	proc *procedure.Procedure
	sub  Router
	lazy *Lazy
}

// Router is a tree of named nodes.
type Router map[string]Node

// Proc wraps a procedure.
func Proc(p *procedure.Procedure) Node {
	if p == nil {
		return Node{}
	}
	return Node{kind: KindProcedure, proc: p}
}

// Sub wraps a nested router.
func Sub(r Router) Node {
	if r == nil {
		return Node{}
	}
	return Node{kind: KindRouter, sub: r}
}

// LazyNode wraps a lazy subtree.
func LazyNode(l *Lazy) Node {
	if l == nil {
		return Node{}
	}
	return Node{kind: KindLazy, lazy: l}
}

func (n Node) Kind() Kind                      { return n.kind }
func (n Node) Procedure() *procedure.Procedure { return n.proc }
func (n Node) Router() Router                  { return n.sub }
func (n Node) Lazy() *Lazy                     { return n.lazy }
func (n Node) Valid() bool                     { return n.kind != KindInvalid }

// keys returns the router's keys in sorted order, so traversal and
// registration order are deterministic.
func (r Router) keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ErrNotFound is returned by Get when no node exists at a path.
var ErrNotFound = errors.New("router: no node at path")

// Get walks path through r, resolving lazy nodes on the way.
func Get(ctx context.Context, r Router, path []string) (Node, error) {
	current := Sub(r)
	for i, seg := range path {
		if current.kind == KindLazy {
			resolved, err := current.lazy.Resolve(ctx)
			if err != nil {
				return Node{}, LoadError(ctx, path[:i], err)
			}
			current = resolved
		}
		if current.kind != KindRouter {
			return Node{}, ErrNotFound
		}
		next, ok := current.sub[seg]
		if !ok {
			return Node{}, ErrNotFound
		}
		current = next
	}

	if current.kind == KindLazy {
		resolved, err := current.lazy.Resolve(ctx)
		if err != nil {
			return Node{}, LoadError(ctx, path, err)
		}
		current = resolved
	}
	return current, nil
}

// LoadError reports a failed lazy load at path. Errors caused by ctx ending
// belong to the caller and are returned as they are; anything else is a
// configuration error.
func LoadError(ctx context.Context, path []string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return err
	}
	return &rpcerror.ConfigurationError{Path: path, Reason: "lazy router failed to load", Cause: err}
}

// GetProcedure returns the procedure at path. It returns ErrNotFound when
// nothing exists there and a *rpcerror.ConfigurationError when the node is
// not an implemented procedure.
func GetProcedure(ctx context.Context, r Router, path []string) (*procedure.Procedure, error) {
	n, err := Get(ctx, r, path)
	if err != nil {
		return nil, err
	}
	switch {
	case n.kind == KindRouter && len(path) > 0:
		return nil, ErrNotFound
	case n.kind != KindProcedure:
		return nil, &rpcerror.ConfigurationError{Path: path, Reason: "expected a procedure, got " + n.kind.String()}
	case !n.proc.HasHandler():
		return nil, &rpcerror.ConfigurationError{Path: path, Reason: "procedure is not implemented"}
	}
	return n.proc, nil
}

// PendingLazy is an unresolved lazy node found during traversal.
type PendingLazy struct {
	Path []string
	Lazy *Lazy
}

// VisitFunc is called for every procedure found by Traverse.
type VisitFunc func(path []string, p *procedure.Procedure)

// Traverse calls visit for every procedure reachable without loading, in
// key order, and returns the lazy nodes it did not enter. Resolved lazy
// nodes are entered.
func Traverse(n Node, base []string, visit VisitFunc) []PendingLazy {
	var pending []PendingLazy
	traverse(n, base, visit, &pending)
	return pending
}

func traverse(n Node, path []string, visit VisitFunc, pending *[]PendingLazy) {
	switch n.kind {
	case KindProcedure:
		visit(path, n.proc)
	case KindRouter:
		for _, k := range n.sub.keys() {
			traverse(n.sub[k], appendPath(path, k), visit, pending)
		}
	case KindLazy:
		if resolved, ok := n.lazy.Loaded(); ok {
			traverse(resolved, path, visit, pending)
			return
		}
		*pending = append(*pending, PendingLazy{Path: path, Lazy: n.lazy})
	}
}

func appendPath(path []string, seg string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = seg
	return out
}

// Unlazy returns a copy of r with every lazy node loaded and inlined.
func Unlazy(ctx context.Context, r Router) (Router, error) {
	n, err := unlazy(ctx, Sub(r))
	if err != nil {
		return nil, err
	}
	return n.sub, nil
}

func unlazy(ctx context.Context, n Node) (Node, error) {
	switch n.kind {
	case KindLazy:
		resolved, err := n.lazy.Resolve(ctx)
		if err != nil {
			return Node{}, err
		}
		return unlazy(ctx, resolved)
	case KindRouter:
		out := make(Router, len(n.sub))
		for k, child := range n.sub {
			c, err := unlazy(ctx, child)
			if err != nil {
				return Node{}, err
			}
			out[k] = c
		}
		return Sub(out), nil
	}
	return n, nil
}
