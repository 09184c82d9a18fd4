package wiring

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
)

// earlyReference is a not yet finished component made visible to its own
// resolution chain. The producer runs at most once, so every consumer sees the
// same object.
type earlyReference struct {
	once     sync.Once
	produce  func() (any, error)
	value    any
	err      error
	consumed atomic.Bool
}

func (e *earlyReference) get() (any, error) {
	e.once.Do(func() {
		e.value, e.err = e.produce()
	})
	if e.err != nil {
		return nil, e.err
	}
	e.consumed.Store(true)
	return e.value, nil
}

// creation marks an identifier being built by one chain. done is closed once the
// outcome is recorded; err is written before that.
type creation struct {
	owner *chainOwner
	done  chan struct{}
	err   error
}

// EvictFunc is called for instances dropped from the cache outside DestroyAll.
type EvictFunc func(ctx context.Context, id string, instance any)

// SingletonCache holds at most one finished instance per identifier, at most one
// early reference per identifier under construction, and the markers of which
// chain is building what. The mutex only guards bookkeeping; factories run
// outside of it.
type SingletonCache struct {
	mu             sync.Mutex
	instances      map[string]any
	early          map[string]*earlyReference
	creating       map[string]*creation
	states         map[string]State
	earlyConsumers map[string][]string
	order          []string
	closed         bool
	onEvict        EvictFunc
}

// NewSingletonCache creates an empty cache. onEvict may be nil.
func NewSingletonCache(onEvict EvictFunc) *SingletonCache {
	return &SingletonCache{
		instances:      make(map[string]any, 32),
		early:          make(map[string]*earlyReference),
		creating:       make(map[string]*creation),
		states:         make(map[string]State, 32),
		earlyConsumers: make(map[string][]string),
		onEvict:        onEvict,
	}
}

// GetIfPresent returns the finished instance for id.
func (c *SingletonCache) GetIfPresent(id string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.instances[id]
	return v, ok
}

// State returns the lifecycle state of id.
func (c *SingletonCache) State(id string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[id]
}

// GetOrCreate returns the instance for id, running factory when no instance exists.
// Concurrent callers from other chains wait for the running factory; a caller from
// the chain that is building id receives its early reference instead, or a
// CircularDependencyError when none was registered. Failures are not cached: the
// next call runs the factory again.
func (c *SingletonCache) GetOrCreate(ctx context.Context, id string, factory func(context.Context) (any, error)) (any, error) {
	ctx, owner := ensureOwner(ctx)

	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil, ErrRuntimeShutdown
		}
		if v, ok := c.instances[id]; ok {
			c.mu.Unlock()
			return v, nil
		}

		if cr, ok := c.creating[id]; ok {
			if cr.owner == owner || c.wouldDeadlock(owner, cr.owner) {
				ref := c.early[id]
				c.mu.Unlock()
				if ref == nil {
					return nil, &CircularDependencyError{ID: id, Chain: pathWith(ctx, id)}
				}
				return c.consumeEarly(ctx, id, ref)
			}

			owner.waitFor(id)
			c.mu.Unlock()
			select {
			case <-cr.done:
			case <-ctx.Done():
				owner.waitFor("")
				return nil, ctx.Err()
			}
			owner.waitFor("")
			if cr.err != nil {
				return nil, cr.err
			}
			continue
		}

		cr := &creation{owner: owner, done: make(chan struct{})}
		c.creating[id] = cr
		c.states[id] = StateInCreation
		c.mu.Unlock()

		v, err := runFactory(ctx, id, factory)
		return c.finish(ctx, id, cr, v, err)
	}
}

func runFactory(ctx context.Context, id string, factory func(context.Context) (any, error)) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ConstructionError{ID: id, Phase: "factory", Chain: pathWith(ctx, id), Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return factory(ctx)
}

// wouldDeadlock follows the wait-for edges starting at holder. If they lead back
// to waiter, both chains are building parts of one cyclic graph and blocking
// would never return. Must be called with c.mu held.
func (c *SingletonCache) wouldDeadlock(waiter, holder *chainOwner) bool {
	o := holder
	for hops := 0; o != nil && hops <= len(c.creating); hops++ {
		if o == waiter {
			return true
		}
		next := o.waitingFor()
		if next == "" {
			return false
		}
		cr, ok := c.creating[next]
		if !ok {
			return false
		}
		o = cr.owner
	}
	return false
}

func (c *SingletonCache) consumeEarly(ctx context.Context, id string, ref *earlyReference) (any, error) {
	v, err := ref.get()
	if err != nil {
		return nil, err
	}
	if dependent := current(ctx); dependent != "" && dependent != id {
		c.mu.Lock()
		c.earlyConsumers[id] = append(c.earlyConsumers[id], dependent)
		c.mu.Unlock()
	}
	return v, nil
}

func (c *SingletonCache) finish(ctx context.Context, id string, cr *creation, v any, err error) (any, error) {
	type eviction struct {
		id       string
		instance any
	}
	var evicted []eviction

	c.mu.Lock()
	delete(c.creating, id)
	delete(c.early, id)
	consumers := c.earlyConsumers[id]
	delete(c.earlyConsumers, id)

	switch {
	case err != nil:
		c.states[id] = StateFailed
		// dependents holding the early reference of a failed component would
		// otherwise keep a half-built object
		for _, dep := range consumers {
			if inst, ok := c.removeLocked(dep); ok {
				c.states[dep] = StateFailed
				evicted = append(evicted, eviction{dep, inst})
			}
		}
	case c.closed:
		err = ErrRuntimeShutdown
		c.states[id] = StateDestroyed
		evicted = append(evicted, eviction{id, v})
	default:
		c.instances[id] = v
		c.order = append(c.order, id)
		c.states[id] = StateCreated
	}
	cr.err = err
	close(cr.done)
	c.mu.Unlock()

	if c.onEvict != nil {
		for _, e := range evicted {
			c.onEvict(ctx, e.id, e.instance)
		}
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

// RegisterEarlyReference makes producer the early reference of id, which must be
// under construction.
func (c *SingletonCache) RegisterEarlyReference(id string, producer func() (any, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.creating[id]; !ok {
		return fmt.Errorf("early reference for %q: component is not in creation", id)
	}
	if _, ok := c.early[id]; ok {
		return fmt.Errorf("early reference for %q: already registered", id)
	}
	c.early[id] = &earlyReference{produce: producer}
	return nil
}

// EarlyReference returns the early reference of id if it was handed out to a
// dependent.
func (c *SingletonCache) EarlyReference(id string) (any, bool) {
	c.mu.Lock()
	ref := c.early[id]
	c.mu.Unlock()
	if ref == nil || !ref.consumed.Load() {
		return nil, false
	}
	return ref.value, true
}

// Remove drops the finished instance of id and marks it destroyed.
func (c *SingletonCache) Remove(id string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.removeLocked(id)
	if ok {
		c.states[id] = StateDestroyed
	}
	return v, ok
}

func (c *SingletonCache) removeLocked(id string) (any, bool) {
	v, ok := c.instances[id]
	if !ok {
		return nil, false
	}
	delete(c.instances, id)
	for i, created := range c.order {
		if created == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return v, true
}

// CreationOrder returns the identifiers of finished instances in the order their
// creation completed.
func (c *SingletonCache) CreationOrder() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// Len returns the number of finished instances.
func (c *SingletonCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.instances)
}

// DestroyAll removes the instances listed in order, calling destroy for each one.
// It never stops early: every failure is collected into a DestructionError.
func (c *SingletonCache) DestroyAll(ctx context.Context, order []string, destroy func(ctx context.Context, id string, instance any) error) error {
	var errs error
	for _, id := range order {
		inst, ok := c.Remove(id)
		if !ok || destroy == nil {
			continue
		}
		if err := destroy(ctx, id, inst); err != nil {
			errs = multierr.Append(errs, &ShutdownError{ID: id, Err: err})
		}
	}
	if errs != nil {
		return &DestructionError{Err: errs}
	}
	return nil
}

// Close makes every later GetOrCreate fail with ErrRuntimeShutdown.
func (c *SingletonCache) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Closed reports whether Close was called.
func (c *SingletonCache) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
