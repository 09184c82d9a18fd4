package wiring

import (
	"context"
	"fmt"
)

// Resolver turns value specs into values, calling back into the Provider for
// references. It has no state of its own.
type Resolver struct {
	registry *Registry
	provider Provider
}

// NewResolver returns a resolver looking definitions up in registry and
// components up through provider.
func NewResolver(registry *Registry, provider Provider) *Resolver {
	return &Resolver{registry: registry, provider: provider}
}

// ResolveArguments resolves the constructor arguments of def in declared order.
func (r *Resolver) ResolveArguments(ctx context.Context, def *Definition) ([]any, error) {
	args := make([]any, len(def.Args))
	for i, spec := range def.Args {
		v, err := r.Resolve(ctx, def.ID, spec)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// ResolveDependsOn creates the explicit ordering dependencies of def.
func (r *Resolver) ResolveDependsOn(ctx context.Context, def *Definition) error {
	for _, id := range def.DependsOn {
		if _, err := r.resolveRef(ctx, def.ID, Ref(id)); err != nil {
			return err
		}
	}
	return nil
}

// ResolvedProperty is one property value ready to be applied.
type ResolvedProperty struct {
	Name  string
	Value any
}

// ResolveProperties resolves the properties of def in declared order.
func (r *Resolver) ResolveProperties(ctx context.Context, def *Definition) ([]ResolvedProperty, error) {
	out := make([]ResolvedProperty, 0, len(def.Properties))
	for _, p := range def.Properties {
		v, err := r.Resolve(ctx, def.ID, p.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, ResolvedProperty{Name: p.Name, Value: v})
	}
	return out, nil
}

// Resolve produces the value of spec on behalf of the component owner.
func (r *Resolver) Resolve(ctx context.Context, owner string, spec ValueSpec) (any, error) {
	switch spec.kind {
	case kindLiteral:
		return spec.literal, nil
	case kindRef:
		return r.resolveRef(ctx, owner, spec)
	case kindTypeRef:
		return r.resolveType(ctx, owner, spec)
	case kindList:
		out := make([]any, len(spec.items))
		for i, item := range spec.items {
			v, err := r.Resolve(ctx, owner, item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case kindMap:
		out := make(map[string]any, len(spec.entries))
		for _, k := range spec.sortedKeys() {
			v, err := r.Resolve(ctx, owner, spec.entries[k])
			if err != nil {
				return nil, err
			}
			out[k] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("component %q: unknown value kind %d", owner, spec.kind)
	}
}

func (r *Resolver) resolveRef(ctx context.Context, owner string, spec ValueSpec) (any, error) {
	if !r.registry.Contains(spec.ref) {
		if spec.optional {
			return Absent, nil
		}
		return nil, &MissingDependencyError{Dependent: owner, Missing: spec.ref, Chain: pathWith(ctx, spec.ref)}
	}
	return r.provider.GetComponent(ctx, spec.ref)
}

func (r *Resolver) resolveType(ctx context.Context, owner string, spec ValueSpec) (any, error) {
	candidates := r.registry.CandidatesFor(spec.typ)

	// a component never satisfies its own by-type reference
	filtered := candidates[:0:0]
	for _, c := range candidates {
		if c.ID != owner {
			filtered = append(filtered, c)
		}
	}
	candidates = filtered

	if spec.qualifier != "" {
		want := r.registry.Canonical(spec.qualifier)
		for _, c := range candidates {
			if c.ID == want {
				return r.provider.GetComponent(ctx, c.ID)
			}
		}
		if spec.optional {
			return Absent, nil
		}
		return nil, &MissingDependencyError{Dependent: owner, Missing: spec.qualifier, Chain: pathWith(ctx, spec.qualifier)}
	}

	switch len(candidates) {
	case 0:
		if spec.optional {
			return Absent, nil
		}
		return nil, &MissingDependencyError{Dependent: owner, Missing: spec.typ.String(), Chain: ResolutionPath(ctx)}
	case 1:
		return r.provider.GetComponent(ctx, candidates[0].ID)
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ID
	}
	var primary *Definition
	for _, c := range candidates {
		if c.Primary {
			if primary != nil {
				return nil, &AmbiguousTypeError{Dependent: owner, Type: spec.typ.String(), Candidates: ids}
			}
			primary = c
		}
	}
	if primary == nil {
		return nil, &AmbiguousTypeError{Dependent: owner, Type: spec.typ.String(), Candidates: ids}
	}
	return r.provider.GetComponent(ctx, primary.ID)
}
