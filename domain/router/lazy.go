package router

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Loader produces the node a Lazy stands for.
type Loader func(ctx context.Context) (Node, error)

// Lazy is a subtree loaded on first use. A successful load is memoized;
// concurrent first uses share one loader call. Failed loads are not
// memoized, so a later call retries.
type Lazy struct {
	loader Loader
	prefix string

	mu     sync.Mutex
	loaded bool
	node   Node

	group singleflight.Group
	loads atomic.Int64
}

// LazyOption configures a Lazy.
type LazyOption func(*Lazy)

// WithPrefixHint declares a path prefix every HTTP route inside the lazy
// subtree starts with, so matching can skip loading it for other paths.
func WithPrefixHint(prefix string) LazyOption {
	return func(l *Lazy) {
		l.prefix = prefix
	}
}

// NewLazy creates a Lazy around loader.
func NewLazy(loader Loader, opts ...LazyOption) *Lazy {
	l := &Lazy{loader: loader}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// PrefixHint returns the declared prefix hint, or "".
func (l *Lazy) PrefixHint() string {
	return l.prefix
}

// Loaded returns the memoized node, if any.
func (l *Lazy) Loaded() (Node, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.node, l.loaded
}

// Loads returns how many times the loader has run.
func (l *Lazy) Loads() int64 {
	return l.loads.Load()
}

// Resolve returns the loaded node, running the loader if needed. The load
// runs detached from ctx. A caller whose ctx ends first gets ctx.Err()
// while the load continues for the others.
func (l *Lazy) Resolve(ctx context.Context) (Node, error) {
	if n, ok := l.Loaded(); ok {
		return n, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := l.group.DoChan("load", func() (any, error) {
		if n, ok := l.Loaded(); ok {
			return n, nil
		}
		l.loads.Add(1)
		n, err := l.loader(loadCtx)
		if err != nil {
			return Node{}, err
		}
		l.mu.Lock()
		l.node, l.loaded = n, true
		l.mu.Unlock()
		return n, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Node{}, res.Err
		}
		return res.Val.(Node), nil
	case <-ctx.Done():
		return Node{}, ctx.Err()
	}
}

// Lazily wraps a router-producing function as a lazy node.
func Lazily(prefix string, fn func(ctx context.Context) (Router, error)) Node {
	var opts []LazyOption
	if prefix != "" {
		opts = append(opts, WithPrefixHint(prefix))
	}
	return LazyNode(NewLazy(func(ctx context.Context) (Node, error) {
		r, err := fn(ctx)
		if err != nil {
			return Node{}, err
		}
		return Sub(r), nil
	}, opts...))
}
