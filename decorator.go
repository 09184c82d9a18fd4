package wiring

import (
	"context"
	"sync"
)

// Decorator is a hook that wraps matching components, for example in a proxy
// adding tracing or retries. It takes part in early references: a component
// handed out early to a cycle is wrapped at that point, and post-initialization
// then leaves it alone so the early reference and the final instance agree.
type Decorator struct {
	Name  string
	Match func(id string, instance any) bool
	Wrap  func(ctx context.Context, id string, instance any) (any, error)

	mu      sync.Mutex
	early   map[string]any
	wrapped map[string]any
}

// NewDecorator returns a decorator applying wrap to components accepted by match.
// A nil match accepts every component.
func NewDecorator(name string, match func(id string, instance any) bool, wrap func(ctx context.Context, id string, instance any) (any, error)) *Decorator {
	return &Decorator{
		Name:    name,
		Match:   match,
		Wrap:    wrap,
		early:   make(map[string]any),
		wrapped: make(map[string]any),
	}
}

func (d *Decorator) HookName() string {
	return d.Name
}

func (d *Decorator) matches(id string, instance any) bool {
	return d.Match == nil || d.Match(id, instance)
}

func (d *Decorator) BeforeInit(_ context.Context, _ string, instance any) (any, error) {
	return instance, nil
}

func (d *Decorator) EarlyReference(ctx context.Context, id string, instance any) (any, error) {
	if !d.matches(id, instance) {
		return instance, nil
	}
	w, err := d.Wrap(ctx, id, instance)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.early[id] = instance
	d.wrapped[id] = w
	d.mu.Unlock()
	return w, nil
}

func (d *Decorator) AfterInit(ctx context.Context, id string, instance any) (any, error) {
	d.mu.Lock()
	earlyRaw, wasEarly := d.early[id]
	prev, wasWrapped := d.wrapped[id]
	delete(d.early, id)
	d.mu.Unlock()

	// Already wrapped when the early reference of this very instance was
	// produced. Returning it unchanged lets the early reference, which carries
	// every decorator's wrapper, become the final instance.
	if wasEarly && SameInstance(earlyRaw, instance) {
		return instance, nil
	}
	if wasWrapped && SameInstance(prev, instance) {
		return instance, nil
	}
	if !d.matches(id, instance) {
		return instance, nil
	}
	w, err := d.Wrap(ctx, id, instance)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.wrapped[id] = w
	d.mu.Unlock()
	return w, nil
}

// CreationFailed forgets what was recorded for id, so a retry starts clean.
func (d *Decorator) CreationFailed(_ context.Context, id string) {
	d.mu.Lock()
	delete(d.early, id)
	delete(d.wrapped, id)
	d.mu.Unlock()
}

// Wrapped returns the wrapper last produced for id.
func (d *Decorator) Wrapped(id string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	w, ok := d.wrapped[id]
	return w, ok
}
