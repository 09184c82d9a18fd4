package wiring

import (
	"context"
	"sync"
	"sync/atomic"
)

type (
	chainKey    struct{}
	providerKey struct{}
	progressKey struct{}
)

// chainOwner identifies one top-level resolution. Every nested lookup made on behalf
// of that resolution shares the owner, which is how the cache tells "the same chain
// came back for an identifier it is building" from "another caller wants it".
type chainOwner struct {
	waiting atomic.Pointer[string]
}

func (o *chainOwner) waitFor(id string) {
	if id == "" {
		o.waiting.Store(nil)
		return
	}
	o.waiting.Store(&id)
}

func (o *chainOwner) waitingFor() string {
	if p := o.waiting.Load(); p != nil {
		return *p
	}
	return ""
}

// chain is an immutable stack of identifiers under construction, threaded through
// context.Context. Each frame points to its parent, so sibling branches never see
// each other's frames.
type chain struct {
	owner  *chainOwner
	id     string
	parent *chain
	depth  int
}

func chainFrom(ctx context.Context) *chain {
	c, _ := ctx.Value(chainKey{}).(*chain)
	return c
}

// ensureOwner returns a context carrying a chain owner, creating a fresh owner for
// top-level calls.
func ensureOwner(ctx context.Context) (context.Context, *chainOwner) {
	if c := chainFrom(ctx); c != nil {
		return ctx, c.owner
	}
	root := &chain{owner: &chainOwner{}}
	return context.WithValue(ctx, chainKey{}, root), root.owner
}

// withChain pushes id onto the resolution chain of ctx.
func withChain(ctx context.Context, id string) context.Context {
	ctx, owner := ensureOwner(ctx)
	parent := chainFrom(ctx)
	return context.WithValue(ctx, chainKey{}, &chain{
		owner:  owner,
		id:     id,
		parent: parent,
		depth:  parent.depth + 1,
	})
}

func (c *chain) contains(id string) bool {
	for f := c; f != nil; f = f.parent {
		if f.id == id {
			return true
		}
	}
	return false
}

// ResolutionPath returns the identifiers currently under construction on the chain
// carried by ctx, outermost first.
func ResolutionPath(ctx context.Context) []string {
	c := chainFrom(ctx)
	if c == nil {
		return nil
	}
	path := make([]string, c.depth)
	for f := c; f != nil && f.depth > 0; f = f.parent {
		path[f.depth-1] = f.id
	}
	return path
}

func pathWith(ctx context.Context, id string) []string {
	return append(ResolutionPath(ctx), id)
}

// current returns the innermost identifier under construction, or "".
func current(ctx context.Context) string {
	if c := chainFrom(ctx); c != nil {
		return c.id
	}
	return ""
}

func withProvider(ctx context.Context, p Provider) context.Context {
	if existing, ok := ctx.Value(providerKey{}).(Provider); ok && existing == p {
		return ctx
	}
	return context.WithValue(ctx, providerKey{}, p)
}

// ProviderFrom returns the Provider that is building the component whose recipe
// received ctx.
func ProviderFrom(ctx context.Context) (Provider, bool) {
	p, ok := ctx.Value(providerKey{}).(Provider)
	return p, ok
}

// progressTracker follows the innermost component built by Start, so a startup
// deadline can report what it interrupted.
type progressTracker struct {
	mu    sync.Mutex
	stack []string
	last  string
}

func withProgress(ctx context.Context, t *progressTracker) context.Context {
	return context.WithValue(ctx, progressKey{}, t)
}

func progressFrom(ctx context.Context) *progressTracker {
	t, _ := ctx.Value(progressKey{}).(*progressTracker)
	return t
}

func (t *progressTracker) push(id string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.stack = append(t.stack, id)
	t.last = id
	t.mu.Unlock()
}

func (t *progressTracker) pop() {
	if t == nil {
		return
	}
	t.mu.Lock()
	if n := len(t.stack); n > 0 {
		t.stack = t.stack[:n-1]
	}
	t.mu.Unlock()
}

// current returns the innermost component under construction, or the last one
// started when the stack has already unwound.
func (t *progressTracker) current() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := len(t.stack); n > 0 {
		return t.stack[n-1]
	}
	return t.last
}
