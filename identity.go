package wiring

import (
	"fmt"
	"reflect"
)

// SameInstance reports whether a and b are the same object. Pointers, maps,
// channels and funcs compare by address; other comparable values compare by
// value.
func SameInstance(a, b any) (same bool) {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Pointer, reflect.UnsafePointer, reflect.Map, reflect.Chan, reflect.Func:
		return va.Pointer() == vb.Pointer()
	case reflect.Slice:
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	}
	if !va.Type().Comparable() {
		return false
	}
	// structs holding interfaces may still panic on ==
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

func describeInstance(v any) string {
	if v == nil {
		return "<nil>"
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.Slice:
		return fmt.Sprintf("%T@%#x", v, rv.Pointer())
	}
	return fmt.Sprintf("%T", v)
}
