package wiring

import (
	"context"
	"reflect"
	"sort"
)

// Definition is the construction recipe of one component. It is copied on
// registration and must not be changed afterwards.
type Definition struct {
	// ID is the unique identifier of the component.
	ID string `validate:"required"`
	// Recipe produces the raw instance.
	Recipe Recipe `validate:"required"`
	// Args are resolved before instantiation and passed to Recipe.Construct.
	// Constructor-stage references cannot take part in cycle breaking.
	Args []ValueSpec
	// Properties are resolved and applied after instantiation, in declared order.
	Properties []Property `validate:"dive"`
	// Setter applies properties. When nil, exported struct fields are set by reflection.
	Setter PropertySetter

	Scope Scope `validate:"omitempty,oneof=singleton prototype"`
	// Type is the declared type of the produced instance, used by by-type references.
	// Recipes implementing TypedRecipe fill it in when left nil.
	Type reflect.Type
	// Primary wins by-type resolution among several candidates.
	Primary bool
	// Lazy components are skipped by Start and created on first lookup.
	Lazy bool
	// DependsOn lists components that must be created first without being injected.
	DependsOn []string `validate:"dive,required"`
	Aliases   []string `validate:"dive,required"`

	// SkipInit disables the custom initialization step.
	SkipInit bool
	// SkipDestroy disables destroy callbacks on shutdown.
	SkipDestroy bool
	// NoEarlyReference keeps the component out of circular-reference resolution.
	NoEarlyReference bool

	// Init runs after Initializer.OnBoot, when present.
	Init func(ctx context.Context, instance any) error
	// Destroy runs after Destroyer.OnShutdown, when present.
	Destroy func(ctx context.Context, instance any) error
}

// Property is one setter-style injection.
type Property struct {
	Name  string `validate:"required"`
	Value ValueSpec
}

func (d *Definition) scope() Scope {
	if d.Scope == "" {
		return ScopeSingleton
	}
	return d.Scope
}

func (d *Definition) clone() *Definition {
	cp := *d
	cp.Args = append([]ValueSpec(nil), d.Args...)
	cp.Properties = append([]Property(nil), d.Properties...)
	cp.DependsOn = append([]string(nil), d.DependsOn...)
	cp.Aliases = append([]string(nil), d.Aliases...)
	cp.Scope = d.scope()
	if cp.Type == nil {
		if tr, ok := d.Recipe.(TypedRecipe); ok {
			cp.Type = tr.ProducedType()
		}
	}
	return &cp
}

type valueKind int

const (
	kindLiteral valueKind = iota
	kindRef
	kindTypeRef
	kindList
	kindMap
)

// ValueSpec describes how to obtain one argument or property value.
type ValueSpec struct {
	kind      valueKind
	literal   any
	ref       string
	typ       reflect.Type
	qualifier string
	optional  bool
	items     []ValueSpec
	entries   map[string]ValueSpec
}

// Value is a literal passed through unchanged.
func Value(v any) ValueSpec {
	return ValueSpec{kind: kindLiteral, literal: v}
}

// Ref references another component by identifier or alias.
func Ref(id string) ValueSpec {
	return ValueSpec{kind: kindRef, ref: id}
}

// OptionalRef references a component that may not be registered. A miss resolves to Absent.
func OptionalRef(id string) ValueSpec {
	return ValueSpec{kind: kindRef, ref: id, optional: true}
}

// RefType references the single component whose declared type is assignable to t.
func RefType(t reflect.Type) ValueSpec {
	return ValueSpec{kind: kindTypeRef, typ: t}
}

// RefTypeOf is RefType for the type parameter.
func RefTypeOf[T any]() ValueSpec {
	return RefType(TypeOf[T]())
}

// List resolves each item in order into a []any.
func List(items ...ValueSpec) ValueSpec {
	return ValueSpec{kind: kindList, items: items}
}

// Map resolves each entry into a map[string]any with the same key set.
func Map(entries map[string]ValueSpec) ValueSpec {
	return ValueSpec{kind: kindMap, entries: entries}
}

// Optional marks a reference as optional.
func (v ValueSpec) Optional() ValueSpec {
	v.optional = true
	return v
}

// Qualified picks the candidate with the given identifier when a by-type
// reference matches several components.
func (v ValueSpec) Qualified(name string) ValueSpec {
	v.qualifier = name
	return v
}

// IsReference reports whether the spec points at another component.
func (v ValueSpec) IsReference() bool {
	return v.kind == kindRef || v.kind == kindTypeRef
}

func (v ValueSpec) sortedKeys() []string {
	keys := make([]string, 0, len(v.entries))
	for k := range v.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// absentMarker is the type of Absent.
type absentMarker struct{}

func (absentMarker) String() string { return "<absent>" }

// Absent is the value of an optional reference whose target is not registered.
var Absent any = absentMarker{}

// IsAbsent reports whether v is the Absent marker.
func IsAbsent(v any) bool {
	_, ok := v.(absentMarker)
	return ok
}

// TypeOf returns the reflect.Type of T, including interface types.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
