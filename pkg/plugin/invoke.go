package plugin

import (
	"reflect"

	"github.com/kilnforge/filepool/pkg/poolerr"
)

// invokeDefault calls v with data if v is a function value, matching
// spec.md §4.4's "if its default value is a function, invoke it with
// data". Go has no dynamic-arity call without reflection, so this is the
// one place plugin loading reaches for reflect.Value.Call rather than a
// static type assertion — the same technique dependency-injection and
// encoding libraries across the ecosystem use to invoke a value whose
// exact function type is only known at runtime.
func invokeDefault(v any, data any) error {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Func {
		return nil // non-function default: no-op, matching spec.md's conditional invoke
	}

	t := rv.Type()
	var args []reflect.Value
	switch t.NumIn() {
	case 0:
		args = nil
	case 1:
		in := t.In(0)
		dv := reflect.ValueOf(data)
		if data == nil || !dv.IsValid() {
			args = []reflect.Value{reflect.Zero(in)}
		} else if dv.Type().AssignableTo(in) {
			args = []reflect.Value{dv}
		} else {
			return poolerr.New(poolerr.InvalidProcessor, "module hook does not accept the supplied data")
		}
	default:
		return poolerr.New(poolerr.InvalidProcessor, "module hook has an unsupported signature")
	}

	out := rv.Call(args)
	for _, o := range out {
		if o.Type().Implements(errType) && !o.IsNil() {
			return o.Interface().(error)
		}
	}
	return nil
}

var errType = reflect.TypeOf((*error)(nil)).Elem()
