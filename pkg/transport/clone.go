// Package transport implements the Value Transport layer (spec.md §4.5):
// deciding clone vs. transfer for values crossing the Controller/Executor
// boundary, degrading non-clonable objects, and reconstructing errors.
package transport

import (
	"reflect"
	"time"
)

// visited records the clone already produced for a given source pointer,
// map or slice-backing-array address, so that Clone preserves intra-graph
// reference sharing (spec.md §8: "if a.x === a.y before, clone(a).x ===
// clone(a).y").
type visited map[uintptr]reflect.Value

// Clone returns a deep, structurally independent copy of v. It handles the
// clonable value universe spec.md §4.5 lists: nil, bool, every numeric
// kind, strings, time.Time, byte slices, ordered sequences, maps, and
// structs whose fields are themselves clonable. Non-clonable values (see
// Degrade) are not handled here; callers that might receive class
// instances should run Degrade first.
func Clone(v any) any {
	if v == nil {
		return nil
	}
	seen := make(visited)
	out := cloneValue(reflect.ValueOf(v), seen)
	return out.Interface()
}

func cloneValue(v reflect.Value, seen visited) reflect.Value {
	if !v.IsValid() {
		return v
	}

	switch v.Kind() {
	case reflect.Ptr:
		if v.IsNil() {
			return v
		}
		addr := v.Pointer()
		if cached, ok := seen[addr]; ok {
			return cached
		}
		out := reflect.New(v.Type().Elem())
		seen[addr] = out
		out.Elem().Set(cloneValue(v.Elem(), seen))
		return out

	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		inner := cloneValue(v.Elem(), seen)
		out := reflect.New(v.Type()).Elem()
		out.Set(inner)
		return out

	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		if v.Type().Elem().Kind() == reflect.Uint8 {
			// []byte fast path: copy the backing array.
			dup := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
			reflect.Copy(dup, v)
			return dup
		}
		addr := v.Pointer()
		if cached, ok := seen[addr]; ok && cached.Len() == v.Len() {
			return cached
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		seen[addr] = out
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(cloneValue(v.Index(i), seen))
		}
		return out

	case reflect.Array:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(cloneValue(v.Index(i), seen))
		}
		return out

	case reflect.Map:
		if v.IsNil() {
			return v
		}
		addr := v.Pointer()
		if cached, ok := seen[addr]; ok {
			return cached
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		seen[addr] = out
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(cloneValue(iter.Key(), seen), cloneValue(iter.Value(), seen))
		}
		return out

	case reflect.Struct:
		if v.Type() == reflect.TypeOf(time.Time{}) {
			return v // time.Time is immutable-by-value; no aliasing risk.
		}
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			field := v.Type().Field(i)
			if field.PkgPath != "" {
				// unexported field: not part of the clonable surface.
				continue
			}
			out.Field(i).Set(cloneValue(v.Field(i), seen))
		}
		return out

	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		// Function-valued (and channel/unsafe) properties are dropped per
		// spec.md's degradation rule, applied here too for safety when a
		// clonable struct happens to embed one.
		return reflect.Zero(v.Type())

	default:
		// bool, every int/uint/float kind, string, complex: copy by value.
		return v
	}
}
