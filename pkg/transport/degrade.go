package transport

import (
	"fmt"
	"reflect"
	"time"
)

// Degrade converts a non-clonable value (anything that is not part of
// spec.md's clonable universe — most commonly a class instance or a
// pointer to one) into a plain map[string]any by walking its exported and
// embedded ("inherited") fields. Function-valued fields are dropped. This
// is intentionally lossy — see spec.md §9's "Property lookup on non-plain
// objects" design note — and is used by PrepareRun/PrepareFile whenever a
// Metadata value is not already a clonable primitive, map, slice or
// time.Time.
func Degrade(v any) any {
	if v == nil {
		return nil
	}
	return degradeValue(reflect.ValueOf(v))
}

func degradeValue(v reflect.Value) any {
	if !v.IsValid() {
		return nil
	}
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return v.Interface()

	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
			dup := make([]byte, v.Len())
			reflect.Copy(reflect.ValueOf(dup), v)
			return dup
		}
		out := make([]any, v.Len())
		for i := range out {
			out[i] = degradeValue(v.Index(i))
		}
		return out

	case reflect.Map:
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[toStringKey(iter.Key())] = degradeValue(iter.Value())
		}
		return out

	case reflect.Struct:
		if v.Type() == reflect.TypeOf(time.Time{}) {
			return v.Interface()
		}
		out := make(map[string]any)
		for _, field := range reflect.VisibleFields(v.Type()) {
			if field.PkgPath != "" || field.Anonymous {
				continue // unexported, or a promoted embedding handled via VisibleFields already
			}
			fv := v.FieldByIndex(field.Index)
			if fv.Kind() == reflect.Func || fv.Kind() == reflect.Chan {
				continue // function/channel-valued properties are dropped
			}
			out[field.Name] = degradeValue(fv)
		}
		return out

	default:
		// funcs, channels, unsafe pointers: not representable, dropped.
		return nil
	}
}

func toStringKey(v reflect.Value) string {
	if v.Kind() == reflect.String {
		return v.String()
	}
	return fmt.Sprint(v.Interface())
}

// IsClonable reports whether v belongs to spec.md's clonable universe
// outright, i.e. Clone alone is sufficient and Degrade need not run.
func IsClonable(v any) bool {
	if v == nil {
		return true
	}
	switch v.(type) {
	case bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, time.Time:
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return true
	case reflect.Ptr:
		return rv.IsNil()
	default:
		return false
	}
}
