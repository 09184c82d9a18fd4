package wiring

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/multierr"
)

// Hook observes or replaces component instances around custom initialization.
// Returning a nil instance keeps the current one.
type Hook interface {
	BeforeInit(ctx context.Context, id string, instance any) (any, error)
	AfterInit(ctx context.Context, id string, instance any) (any, error)
}

// EarlyReferenceHook is implemented by hooks that decorate instances and must
// also decorate the early reference handed out while a cycle is being resolved.
// A hook that wraps an instance here should return it unchanged from AfterInit.
type EarlyReferenceHook interface {
	EarlyReference(ctx context.Context, id string, instance any) (any, error)
}

// DestroyHook is implemented by hooks that run before a component's destroy callbacks.
type DestroyHook interface {
	BeforeDestroy(ctx context.Context, id string, instance any) error
}

// FailureHook is implemented by hooks that keep per-component state and must
// drop it when a creation attempt fails.
type FailureHook interface {
	CreationFailed(ctx context.Context, id string)
}

// Phase names a pipeline stage in errors and logs.
type Phase string

const (
	PhasePreInit        Phase = "pre-init"
	PhasePostInit       Phase = "post-init"
	PhaseEarlyReference Phase = "early-reference"
	PhaseBeforeDestroy  Phase = "before-destroy"
)

// HookFuncs builds a hook from functions; nil functions pass the instance through.
type HookFuncs struct {
	Name    string
	Before  func(ctx context.Context, id string, instance any) (any, error)
	After   func(ctx context.Context, id string, instance any) (any, error)
	Early   func(ctx context.Context, id string, instance any) (any, error)
	Destroy func(ctx context.Context, id string, instance any) error
}

func (h *HookFuncs) HookName() string {
	if h.Name == "" {
		return "HookFuncs"
	}
	return h.Name
}

func (h *HookFuncs) BeforeInit(ctx context.Context, id string, instance any) (any, error) {
	if h.Before == nil {
		return instance, nil
	}
	return h.Before(ctx, id, instance)
}

func (h *HookFuncs) AfterInit(ctx context.Context, id string, instance any) (any, error) {
	if h.After == nil {
		return instance, nil
	}
	return h.After(ctx, id, instance)
}

func (h *HookFuncs) EarlyReference(ctx context.Context, id string, instance any) (any, error) {
	if h.Early == nil {
		return instance, nil
	}
	return h.Early(ctx, id, instance)
}

func (h *HookFuncs) BeforeDestroy(ctx context.Context, id string, instance any) error {
	if h.Destroy == nil {
		return nil
	}
	return h.Destroy(ctx, id, instance)
}

type registeredHook struct {
	hook  Hook
	name  string
	order int
	seq   int
}

// Pipeline runs hooks in ascending order; hooks with equal order run in
// registration order.
type Pipeline struct {
	mu    sync.RWMutex
	hooks []registeredHook
	seq   int
}

// NewPipeline creates an empty pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Register adds hook at the given order.
func (p *Pipeline) Register(hook Hook, order int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.hooks = append(p.hooks, registeredHook{hook: hook, name: hookName(hook), order: order, seq: p.seq})
	sort.SliceStable(p.hooks, func(i, j int) bool {
		if p.hooks[i].order != p.hooks[j].order {
			return p.hooks[i].order < p.hooks[j].order
		}
		return p.hooks[i].seq < p.hooks[j].seq
	})
}

// Len returns the number of registered hooks.
func (p *Pipeline) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.hooks)
}

// Names returns hook names in execution order.
func (p *Pipeline) Names() []string {
	hooks := p.snapshot()
	names := make([]string, len(hooks))
	for i, h := range hooks {
		names[i] = h.name
	}
	return names
}

func (p *Pipeline) snapshot() []registeredHook {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]registeredHook(nil), p.hooks...)
}

func hookName(h Hook) string {
	if n, ok := h.(interface{ HookName() string }); ok {
		return n.HookName()
	}
	return fmt.Sprintf("%T", h)
}

type phaseFunc func(ctx context.Context, h Hook, id string, instance any) (any, bool, error)

func (p *Pipeline) run(ctx context.Context, phase Phase, id string, instance any, call phaseFunc) (any, error) {
	for _, rh := range p.snapshot() {
		out, applied, err := invokeHook(ctx, rh, phase, id, instance, call)
		if err != nil {
			return nil, err
		}
		if applied && out != nil {
			instance = out
		}
	}
	return instance, nil
}

func invokeHook(ctx context.Context, rh registeredHook, phase Phase, id string, instance any, call phaseFunc) (out any, applied bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HookError{ID: id, Hook: rh.name, Phase: phase, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	out, applied, err = call(ctx, rh.hook, id, instance)
	if err != nil {
		return nil, false, &HookError{ID: id, Hook: rh.name, Phase: phase, Err: err}
	}
	return out, applied, nil
}

// RunPreInit runs BeforeInit of every hook. The first error aborts the phase.
func (p *Pipeline) RunPreInit(ctx context.Context, id string, instance any) (any, error) {
	return p.run(ctx, PhasePreInit, id, instance, func(ctx context.Context, h Hook, id string, inst any) (any, bool, error) {
		out, err := h.BeforeInit(ctx, id, inst)
		return out, true, err
	})
}

// RunPostInit runs AfterInit of every hook. The first error aborts the phase.
func (p *Pipeline) RunPostInit(ctx context.Context, id string, instance any) (any, error) {
	return p.run(ctx, PhasePostInit, id, instance, func(ctx context.Context, h Hook, id string, inst any) (any, bool, error) {
		out, err := h.AfterInit(ctx, id, inst)
		return out, true, err
	})
}

// RunEarlyReference runs EarlyReference of the hooks that implement it.
func (p *Pipeline) RunEarlyReference(ctx context.Context, id string, instance any) (any, error) {
	return p.run(ctx, PhaseEarlyReference, id, instance, func(ctx context.Context, h Hook, id string, inst any) (any, bool, error) {
		eh, ok := h.(EarlyReferenceHook)
		if !ok {
			return nil, false, nil
		}
		out, err := eh.EarlyReference(ctx, id, inst)
		return out, true, err
	})
}

// RunBeforeDestroy runs BeforeDestroy of the hooks that implement it. Unlike the
// init phases it does not stop at the first failure.
func (p *Pipeline) RunBeforeDestroy(ctx context.Context, id string, instance any) error {
	var errs error
	for _, rh := range p.snapshot() {
		if _, ok := rh.hook.(DestroyHook); !ok {
			continue
		}
		_, _, err := invokeHook(ctx, rh, PhaseBeforeDestroy, id, instance, func(ctx context.Context, h Hook, id string, inst any) (any, bool, error) {
			return nil, false, h.(DestroyHook).BeforeDestroy(ctx, id, inst)
		})
		errs = multierr.Append(errs, err)
	}
	return errs
}

// RunCreationFailed notifies the hooks implementing FailureHook. Panics are
// swallowed since the creation already failed.
func (p *Pipeline) RunCreationFailed(ctx context.Context, id string) {
	for _, rh := range p.snapshot() {
		fh, ok := rh.hook.(FailureHook)
		if !ok {
			continue
		}
		func() {
			defer func() { _ = recover() }()
			fh.CreationFailed(ctx, id)
		}()
	}
}
