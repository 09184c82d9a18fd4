package wiring

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

var (
	// ErrRuntimeShutdown is returned by every lookup after Shutdown.
	ErrRuntimeShutdown = errors.New("runtime has been shut down")
	// ErrRegistryFrozen is returned when registering after Start.
	ErrRegistryFrozen = errors.New("component registry is frozen")
	// ErrAlreadyCreated is returned when re-registering a component that already has an instance.
	ErrAlreadyCreated = errors.New("component already created")
	// ErrAlreadyStarted is returned by a second Start call.
	ErrAlreadyStarted = errors.New("runtime already started")
	// ErrDuplicateDefinition is returned when an identifier or alias is taken.
	ErrDuplicateDefinition = errors.New("duplicate component definition")
)

// resolutionError marks errors that already describe a failed resolution, so outer
// components pass them through instead of wrapping them once per level.
type resolutionError interface {
	error
	resolutionFailure()
}

func isResolutionError(err error) bool {
	var re resolutionError
	return errors.As(err, &re) || errors.Is(err, ErrRuntimeShutdown)
}

func formatChain(chain []string) string {
	return strings.Join(chain, " -> ")
}

// DefinitionNotFoundError represents a lookup of an unknown identifier.
type DefinitionNotFoundError struct {
	ID    string
	Chain []string
}

func (e *DefinitionNotFoundError) Error() string {
	if len(e.Chain) > 0 {
		return fmt.Sprintf("no definition found for component %q (chain: %s)", e.ID, formatChain(e.Chain))
	}
	return fmt.Sprintf("no definition found for component %q", e.ID)
}

func (e *DefinitionNotFoundError) resolutionFailure() {}

// CircularDependencyError represents a cycle that no early reference can break,
// such as two components requiring each other as constructor arguments.
type CircularDependencyError struct {
	ID    string
	Chain []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("unresolvable circular dependency on component %q: %s", e.ID, formatChain(e.Chain))
}

func (e *CircularDependencyError) resolutionFailure() {}

// IdentityMismatchError is raised when an early reference was handed to a
// dependent and post-initialization produced a different object.
type IdentityMismatchError struct {
	ID    string
	Early string
	Final string
}

func (e *IdentityMismatchError) Error() string {
	return fmt.Sprintf("component %q was injected into dependents as early reference %s "+
		"but post-initialization produced %s", e.ID, e.Early, e.Final)
}

func (e *IdentityMismatchError) resolutionFailure() {}

// HookError represents a failing or panicking pipeline hook.
type HookError struct {
	ID    string
	Hook  string
	Phase Phase
	Err   error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("hook %s failed in %s phase for component %q: %v", e.Hook, e.Phase, e.ID, e.Err)
}

func (e *HookError) Unwrap() error {
	return e.Err
}

func (e *HookError) resolutionFailure() {}

// MissingDependencyError represents a required reference to an unregistered component.
type MissingDependencyError struct {
	Dependent string
	Missing   string
	Chain     []string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("component %q requires missing dependency %q (chain: %s)",
		e.Dependent, e.Missing, formatChain(e.Chain))
}

func (e *MissingDependencyError) resolutionFailure() {}

// AmbiguousTypeError represents a by-type reference matching several components
// with no primary candidate or qualifier to choose between them.
type AmbiguousTypeError struct {
	Dependent  string
	Type       string
	Candidates []string
}

func (e *AmbiguousTypeError) Error() string {
	return fmt.Sprintf("component %q: %d candidates for type %s: %s",
		e.Dependent, len(e.Candidates), e.Type, strings.Join(e.Candidates, ", "))
}

func (e *AmbiguousTypeError) resolutionFailure() {}

// TypeMismatchError represents a type assertion failure.
type TypeMismatchError struct {
	ID       string
	Expected string
	Got      string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch for component %q: expected %s, got %s", e.ID, e.Expected, e.Got)
}

func (e *TypeMismatchError) resolutionFailure() {}

// ConstructionError represents a failing recipe, property setter or init callback.
type ConstructionError struct {
	ID    string
	Phase string
	Chain []string
	Err   error
}

func (e *ConstructionError) Error() string {
	return fmt.Sprintf("construction of component %q failed during %s (chain: %s): %v",
		e.ID, e.Phase, formatChain(e.Chain), e.Err)
}

func (e *ConstructionError) Unwrap() error {
	return e.Err
}

func (e *ConstructionError) resolutionFailure() {}

// ShutdownError represents a single component destruction failure.
type ShutdownError struct {
	ID  string
	Err error
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("shutdown failed for component %q: %v", e.ID, e.Err)
}

func (e *ShutdownError) Unwrap() error {
	return e.Err
}

// DestructionError aggregates every ShutdownError of one destruction sweep.
type DestructionError struct {
	Err error
}

func (e *DestructionError) Error() string {
	errs := e.Errors()
	msgs := make([]string, 0, len(errs))
	for _, err := range errs {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d component(s) failed to shut down: %s", len(errs), strings.Join(msgs, "; "))
}

// Errors returns the individual failures in destruction order.
func (e *DestructionError) Errors() []error {
	return multierr.Errors(e.Err)
}

func (e *DestructionError) Unwrap() error {
	return e.Err
}

// StartupTimeoutError is returned when Start is aborted by its deadline or a
// cancelled context. Components created before that point stay created.
type StartupTimeoutError struct {
	InProgress string
	Err        error
}

func (e *StartupTimeoutError) Error() string {
	if e.InProgress == "" {
		return fmt.Sprintf("startup aborted: %v", e.Err)
	}
	return fmt.Sprintf("startup aborted while creating component %q: %v", e.InProgress, e.Err)
}

func (e *StartupTimeoutError) Unwrap() error {
	return e.Err
}

// InvalidScopeError represents an unsupported scope.
type InvalidScopeError struct {
	ID    string
	Scope string
}

func (e *InvalidScopeError) Error() string {
	return fmt.Sprintf("invalid scope %q for component %q", e.Scope, e.ID)
}

// InvalidDefinitionError represents a definition rejected at registration.
type InvalidDefinitionError struct {
	ID  string
	Err error
}

func (e *InvalidDefinitionError) Error() string {
	return fmt.Sprintf("invalid definition for component %q: %v", e.ID, e.Err)
}

func (e *InvalidDefinitionError) Unwrap() error {
	return e.Err
}
