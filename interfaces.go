package wiring

import "context"

// Package wiring provides interfaces for component construction and lifecycle management.

// Initializer is implemented by components that need a custom initialization step
// after their properties are populated.
type Initializer interface {
	// OnBoot is called once per created instance, after pre-init hooks ran.
	OnBoot(ctx context.Context) error
}

// Destroyer is implemented by components that hold resources released on shutdown.
type Destroyer interface {
	// OnShutdown is called once during Runtime.Shutdown, in reverse creation order.
	OnShutdown(ctx context.Context) error
}

// Lifecycle combines both lifecycle callbacks.
type Lifecycle interface {
	Initializer
	Destroyer
}

// Provider looks up components by identifier. The Runtime implements it and places
// itself in the context passed to recipes, so recipes can fetch collaborators while
// keeping the current resolution chain.
type Provider interface {
	GetComponent(ctx context.Context, id string) (any, error)
}

// Recipe produces a raw, not yet populated, component instance. Args holds the
// resolved constructor argument specs of the definition, in declared order.
type Recipe interface {
	Construct(ctx context.Context, args []any) (any, error)
}

// Scope defines the lifetime and sharing behavior of a component.
type Scope string

// Available component scopes
const (
	// ScopeSingleton shares a single instance across the runtime
	ScopeSingleton Scope = "singleton"
	// ScopePrototype creates a new instance for each resolution
	ScopePrototype Scope = "prototype"
)

// State is the lifecycle state of one component identifier.
type State int

const (
	StateUnstarted State = iota
	StateInCreation
	StateCreated
	StateFailed
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateInCreation:
		return "in_creation"
	case StateCreated:
		return "created"
	case StateFailed:
		return "failed"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}
