package wiring

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// PropertySetter applies one resolved property value to an instance.
type PropertySetter interface {
	SetProperty(instance any, name string, value any) error
}

// PropertySetterFunc adapts a function to PropertySetter.
type PropertySetterFunc func(instance any, name string, value any) error

func (f PropertySetterFunc) SetProperty(instance any, name string, value any) error {
	return f(instance, name, value)
}

// assign converts a resolved value to t. Absent and nil become the zero value,
// []any and map[string]any produced by List and Map are converted element-wise.
func assign(value any, t reflect.Type) (reflect.Value, error) {
	if value == nil || IsAbsent(value) {
		return reflect.Zero(t), nil
	}

	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(t) {
		return v, nil
	}

	switch src := value.(type) {
	case []any:
		if t.Kind() == reflect.Slice {
			out := reflect.MakeSlice(t, 0, len(src))
			for i, item := range src {
				ev, err := assign(item, t.Elem())
				if err != nil {
					return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
				}
				out = reflect.Append(out, ev)
			}
			return out, nil
		}
	case map[string]any:
		if t.Kind() == reflect.Map && t.Key().Kind() == reflect.String {
			out := reflect.MakeMapWithSize(t, len(src))
			for k, item := range src {
				ev, err := assign(item, t.Elem())
				if err != nil {
					return reflect.Value{}, fmt.Errorf("entry %q: %w", k, err)
				}
				out.SetMapIndex(reflect.ValueOf(k).Convert(t.Key()), ev)
			}
			return out, nil
		}
	}

	// numeric literals decoded as int/float64 and named string types
	if isScalar(v.Kind()) && isScalar(t.Kind()) && v.Type().ConvertibleTo(t) {
		return v.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot assign %s to %s", v.Type(), t)
}

func isScalar(k reflect.Kind) bool {
	switch k {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// fieldIndexCache maps a struct type to its settable fields.
var fieldIndexCache sync.Map

type fieldSet struct {
	byName map[string]int
	// names in field declaration order, tag before field name
	names []string
}

func fieldIndex(t reflect.Type) *fieldSet {
	if cached, ok := fieldIndexCache.Load(t); ok {
		return cached.(*fieldSet)
	}

	fs := &fieldSet{byName: make(map[string]int, t.NumField())}
	add := func(name string, i int) {
		if _, taken := fs.byName[name]; taken {
			return
		}
		fs.byName[name] = i
		fs.names = append(fs.names, name)
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := f.Tag.Get("wiring")
		if tag == "-" {
			continue
		}
		if tag != "" {
			add(tag, i)
		}
		add(f.Name, i)
	}
	fieldIndexCache.Store(t, fs)
	return fs
}

// lookup matches name exactly, then case-insensitively. A case-insensitive
// name matching more than one field is rejected.
func (fs *fieldSet) lookup(name string) (int, error) {
	if i, ok := fs.byName[name]; ok {
		return i, nil
	}
	found := -1
	var first string
	for _, candidate := range fs.names {
		if !strings.EqualFold(candidate, name) {
			continue
		}
		i := fs.byName[candidate]
		switch {
		case found < 0:
			found, first = i, candidate
		case found != i:
			return -1, fmt.Errorf("property %q matches both %q and %q", name, first, candidate)
		}
	}
	return found, nil
}

// reflectSetter sets exported struct fields matched by `wiring:"name"` tag,
// exact field name, or case-insensitive field name.
type reflectSetter struct{}

func (reflectSetter) SetProperty(instance any, name string, value any) error {
	if IsAbsent(value) {
		return nil
	}

	v := reflect.ValueOf(instance)
	if v.Kind() != reflect.Pointer || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("cannot set property %q on %T: not a pointer to struct", name, instance)
	}
	sv := v.Elem()

	i, err := fieldIndex(sv.Type()).lookup(name)
	if err != nil {
		return fmt.Errorf("%T: %w", instance, err)
	}
	if i < 0 {
		return fmt.Errorf("%T has no settable field for property %q", instance, name)
	}

	field := sv.Field(i)
	converted, err := assign(value, field.Type())
	if err != nil {
		return fmt.Errorf("property %q: %w", name, err)
	}
	field.Set(converted)
	return nil
}
