package wiring

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
)

// Registry maps component identifiers to their definitions.
// It is append-mostly before Start and read-only afterwards: once frozen, lookups
// skip the lock entirely since no writer can run any more.
type Registry struct {
	mu            sync.RWMutex
	frozen        atomic.Bool
	allowOverride bool
	definitions   map[string]*Definition
	aliases       map[string]string
	order         []string
	validate      *validator.Validate
}

// NewRegistry creates an empty registry. With allowOverride, registering an
// existing identifier replaces its definition instead of failing.
func NewRegistry(allowOverride bool) *Registry {
	return &Registry{
		allowOverride: allowOverride,
		definitions:   make(map[string]*Definition, 32),
		aliases:       make(map[string]string),
		validate:      validator.New(),
	}
}

// Register validates def and stores a copy of it.
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return &InvalidDefinitionError{Err: fmt.Errorf("nil definition")}
	}
	if def.Scope != "" && def.Scope != ScopeSingleton && def.Scope != ScopePrototype {
		return &InvalidScopeError{ID: def.ID, Scope: string(def.Scope)}
	}
	if err := r.validate.Struct(def); err != nil {
		return &InvalidDefinitionError{ID: def.ID, Err: err}
	}
	stored := def.clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return fmt.Errorf("register %q: %w", def.ID, ErrRegistryFrozen)
	}
	if _, isAlias := r.aliases[stored.ID]; isAlias {
		return fmt.Errorf("register %q: %w: identifier is already an alias", stored.ID, ErrDuplicateDefinition)
	}
	previous, exists := r.definitions[stored.ID]
	if exists && !r.allowOverride {
		return fmt.Errorf("register %q: %w", stored.ID, ErrDuplicateDefinition)
	}
	for _, alias := range stored.Aliases {
		if err := r.checkAlias(alias, stored.ID); err != nil {
			return err
		}
	}

	if exists {
		for _, alias := range previous.Aliases {
			delete(r.aliases, alias)
		}
	} else {
		r.order = append(r.order, stored.ID)
	}
	r.definitions[stored.ID] = stored
	for _, alias := range stored.Aliases {
		r.aliases[alias] = stored.ID
	}
	return nil
}

// RegisterAlias makes alias resolve to the component registered as id.
func (r *Registry) RegisterAlias(alias, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() {
		return fmt.Errorf("alias %q: %w", alias, ErrRegistryFrozen)
	}
	if target, ok := r.aliases[id]; ok {
		id = target
	}
	if _, ok := r.definitions[id]; !ok {
		return &DefinitionNotFoundError{ID: id}
	}
	if err := r.checkAlias(alias, id); err != nil {
		return err
	}
	r.aliases[alias] = id
	return nil
}

func (r *Registry) checkAlias(alias, id string) error {
	if alias == id {
		return fmt.Errorf("alias %q: %w: alias equals its identifier", alias, ErrDuplicateDefinition)
	}
	if _, ok := r.definitions[alias]; ok {
		return fmt.Errorf("alias %q: %w: name is a component identifier", alias, ErrDuplicateDefinition)
	}
	if target, ok := r.aliases[alias]; ok && target != id {
		return fmt.Errorf("alias %q: %w: already points to %q", alias, ErrDuplicateDefinition, target)
	}
	return nil
}

// Freeze rejects every later registration.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen.Store(true)
	r.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool {
	return r.frozen.Load()
}

func (r *Registry) rlock() func() {
	if r.frozen.Load() {
		return func() {}
	}
	r.mu.RLock()
	return r.mu.RUnlock
}

// Canonical resolves an alias to its identifier. Unknown names are returned as is.
func (r *Registry) Canonical(name string) string {
	defer r.rlock()()
	if id, ok := r.aliases[name]; ok {
		return id
	}
	return name
}

// Lookup returns the definition registered under name or one of its aliases.
// The returned definition is shared and must be treated as read-only.
func (r *Registry) Lookup(name string) (*Definition, bool) {
	defer r.rlock()()
	if id, ok := r.aliases[name]; ok {
		name = id
	}
	def, ok := r.definitions[name]
	return def, ok
}

// Contains reports whether name is a registered identifier or alias.
func (r *Registry) Contains(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// IDs returns every identifier in registration order.
func (r *Registry) IDs() []string {
	defer r.rlock()()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered definitions.
func (r *Registry) Len() int {
	defer r.rlock()()
	return len(r.order)
}

// CandidatesFor returns, in registration order, the definitions whose declared
// type is assignable to t.
func (r *Registry) CandidatesFor(t reflect.Type) []*Definition {
	defer r.rlock()()
	var out []*Definition
	for _, id := range r.order {
		def := r.definitions[id]
		if def.Type != nil && def.Type.AssignableTo(t) {
			out = append(out, def)
		}
	}
	return out
}

// dependencyEdge is one outgoing edge of the component graph.
type dependencyEdge struct {
	to        string
	dependsOn bool
}

func (r *Registry) edges(def *Definition) []dependencyEdge {
	var out []dependencyEdge
	add := func(name string, dependsOn bool) {
		if d, ok := r.definitions[r.canonicalLocked(name)]; ok {
			out = append(out, dependencyEdge{to: d.ID, dependsOn: dependsOn})
		}
	}

	for _, name := range def.DependsOn {
		add(name, true)
	}
	if rep, ok := def.Recipe.(DependencyReporter); ok {
		for _, name := range rep.Dependencies() {
			add(name, false)
		}
	}

	var walk func(ValueSpec)
	walk = func(v ValueSpec) {
		switch v.kind {
		case kindRef:
			add(v.ref, false)
		case kindTypeRef:
			for _, id := range r.order {
				cand := r.definitions[id]
				if cand.Type != nil && cand.Type.AssignableTo(v.typ) {
					out = append(out, dependencyEdge{to: cand.ID})
				}
			}
		case kindList:
			for _, item := range v.items {
				walk(item)
			}
		case kindMap:
			for _, k := range v.sortedKeys() {
				walk(v.entries[k])
			}
		}
	}
	for _, arg := range def.Args {
		walk(arg)
	}
	for _, p := range def.Properties {
		walk(p.Value)
	}
	return out
}

func (r *Registry) canonicalLocked(name string) string {
	if id, ok := r.aliases[name]; ok {
		return id
	}
	return name
}

// DependenciesOf returns the identifiers def refers to, directly.
func (r *Registry) DependenciesOf(id string) []string {
	defer r.rlock()()
	def, ok := r.definitions[r.canonicalLocked(id)]
	if !ok {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, e := range r.edges(def) {
		if !seen[e.to] {
			seen[e.to] = true
			out = append(out, e.to)
		}
	}
	return out
}

// DependencyOrder returns every identifier such that dependencies come before
// their dependents, using registration order as the tie-break. Reference cycles
// are left to the runtime, which breaks them with early references; a cycle made
// only of depends-on edges can never be satisfied and is reported.
func (r *Registry) DependencyOrder() ([]string, error) {
	defer r.rlock()()

	const (
		unvisited = iota
		visiting
		done
	)
	marks := make(map[string]int, len(r.order))
	result := make([]string, 0, len(r.order))
	var (
		stack     []string
		viaDepsOn []bool
	)

	var visit func(id string, dependsOn bool) error
	visit = func(id string, dependsOn bool) error {
		switch marks[id] {
		case done:
			return nil
		case visiting:
			if !dependsOn {
				return nil
			}
			start := len(stack) - 1
			for stack[start] != id {
				start--
			}
			for _, d := range viaDepsOn[start+1:] {
				if !d {
					return nil
				}
			}
			return &CircularDependencyError{ID: id, Chain: append(append([]string(nil), stack[start:]...), id)}
		}
		marks[id] = visiting
		stack = append(stack, id)
		viaDepsOn = append(viaDepsOn, dependsOn)
		for _, e := range r.edges(r.definitions[id]) {
			if err := visit(e.to, e.dependsOn); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		viaDepsOn = viaDepsOn[:len(viaDepsOn)-1]
		marks[id] = done
		result = append(result, id)
		return nil
	}

	for _, id := range r.order {
		if err := visit(id, false); err != nil {
			return nil, err
		}
	}
	return result, nil
}
