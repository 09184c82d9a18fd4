package wiring

import (
	"context"
	"fmt"
	"reflect"
)

// TypedRecipe is implemented by recipes that know the type they produce.
type TypedRecipe interface {
	Recipe
	ProducedType() reflect.Type
}

// DependencyReporter is implemented by recipes that look up components themselves,
// so Start can order those components first.
type DependencyReporter interface {
	Dependencies() []string
}

// ConstructorFunc adapts a plain function to the Recipe interface.
type ConstructorFunc func(ctx context.Context, args []any) (any, error)

func (f ConstructorFunc) Construct(ctx context.Context, args []any) (any, error) {
	return f(ctx, args)
}

// Instance returns a recipe that always produces v. It is meant for components
// built outside the runtime that should still take part in injection and hooks.
func Instance(v any) Recipe {
	return &instanceRecipe{value: v}
}

type instanceRecipe struct {
	value any
}

func (r *instanceRecipe) Construct(context.Context, []any) (any, error) {
	return r.value, nil
}

func (r *instanceRecipe) ProducedType() reflect.Type {
	return reflect.TypeOf(r.value)
}

var (
	errorType   = TypeOf[error]()
	contextType = TypeOf[context.Context]()
)

// ReflectConstructor calls an ordinary Go constructor with the resolved arguments.
// Supported signatures:
//   - func(A, B, ...) T
//   - func(A, B, ...) (T, error)
//   - either form with a leading context.Context parameter
type ReflectConstructor struct {
	fn           reflect.Value
	params       []reflect.Type
	withContext  bool
	returnsError bool
	out          reflect.Type
}

// NewConstructor validates fn and returns a recipe calling it.
func NewConstructor(fn any) (*ReflectConstructor, error) {
	if fn == nil {
		return nil, fmt.Errorf("constructor cannot be nil")
	}
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return nil, fmt.Errorf("constructor must be a function, got %v", t.Kind())
	}
	if t.IsVariadic() {
		return nil, fmt.Errorf("variadic constructors are not supported: %v", t)
	}

	numOut := t.NumOut()
	if numOut == 0 || numOut > 2 {
		return nil, fmt.Errorf("constructor must return (T) or (T, error), got %d return values", numOut)
	}
	if numOut == 2 && t.Out(1) != errorType {
		return nil, fmt.Errorf("constructor's second return value must be error, got %v", t.Out(1))
	}

	rc := &ReflectConstructor{
		fn:           v,
		returnsError: numOut == 2,
		out:          t.Out(0),
	}
	for i := 0; i < t.NumIn(); i++ {
		if i == 0 && t.In(0) == contextType {
			rc.withContext = true
			continue
		}
		rc.params = append(rc.params, t.In(i))
	}
	return rc, nil
}

// MustConstructor is NewConstructor that panics on an invalid function.
func MustConstructor(fn any) *ReflectConstructor {
	rc, err := NewConstructor(fn)
	if err != nil {
		panic(err)
	}
	return rc
}

// Arity is the number of resolved arguments the constructor expects.
func (rc *ReflectConstructor) Arity() int {
	return len(rc.params)
}

func (rc *ReflectConstructor) ProducedType() reflect.Type {
	return rc.out
}

func (rc *ReflectConstructor) Construct(ctx context.Context, args []any) (any, error) {
	if len(args) != len(rc.params) {
		return nil, fmt.Errorf("constructor %v expects %d arguments, got %d", rc.fn.Type(), len(rc.params), len(args))
	}

	in := make([]reflect.Value, 0, len(args)+1)
	if rc.withContext {
		in = append(in, reflect.ValueOf(ctx))
	}
	for i, arg := range args {
		v, err := assign(arg, rc.params[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in = append(in, v)
	}

	out := rc.fn.Call(in)
	if rc.returnsError && !out[1].IsNil() {
		return nil, out[1].Interface().(error)
	}
	return out[0].Interface(), nil
}

// FactoryMethod produces the instance by calling Produce on another component,
// the factory. The factory is looked up as a constructor-stage dependency.
type FactoryMethod struct {
	FactoryID string `validate:"required"`
	Produce   func(ctx context.Context, factory any, args []any) (any, error) `validate:"required"`
	Produces  reflect.Type
}

func (f *FactoryMethod) Construct(ctx context.Context, args []any) (any, error) {
	p, ok := ProviderFrom(ctx)
	if !ok {
		return nil, fmt.Errorf("factory method on %q called outside a runtime", f.FactoryID)
	}
	factory, err := p.GetComponent(ctx, f.FactoryID)
	if err != nil {
		return nil, err
	}
	return f.Produce(ctx, factory, args)
}

func (f *FactoryMethod) Dependencies() []string {
	return []string{f.FactoryID}
}

func (f *FactoryMethod) ProducedType() reflect.Type {
	return f.Produces
}
