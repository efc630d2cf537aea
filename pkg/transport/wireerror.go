package transport

import (
	"runtime/debug"

	"github.com/kilnforge/filepool/pkg/poolerr"
)

// WireError is the transported representation of an error crossing the
// Controller/Executor boundary: an `error` reply's payload (spec.md §4.5,
// §6). Errors are transported as toJSON-style records rather than via
// structured-clone-of-Error, because that is the strategy that preserves
// custom fields (spec.md §9's "Error clone fidelity" design note calls out
// both strategies and requires the implementation to pick one and document
// it — this is that documentation).
type WireError struct {
	Kind    string
	Message string
	Stack   string
	Fields  map[string]any
}

// AsError reconstructs the error this WireError describes, satisfying the
// structural interface pkg/channel uses to turn an `error` reply's payload
// back into a Go error without importing pkg/transport.
func (w *WireError) AsError() error {
	return FromWireError(w)
}

// ToWireError converts any error into its wire form. *poolerr.Error values
// keep their Kind, Stack and Fields; any other error is recorded with Kind
// poolerr.Generic and no fields, matching spec.md's "Non-Error thrown
// values ... are propagated as-is" only insofar as the message text is
// preserved — Go has no untyped-throw equivalent, so every error value
// necessarily satisfies the error interface here.
func ToWireError(err error) *WireError {
	if err == nil {
		return nil
	}
	if pe, ok := err.(*poolerr.Error); ok {
		stack := pe.Stack
		if stack == "" {
			stack = string(debug.Stack())
		}
		return &WireError{
			Kind:    string(pe.Kind),
			Message: pe.Message,
			Stack:   stack,
			Fields:  CloneMetadata(pe.Fields),
		}
	}
	return &WireError{
		Kind:    string(poolerr.Generic),
		Message: err.Error(),
		Stack:   string(debug.Stack()),
	}
}

// FromWireError reconstructs an error from its wire form. A Kind matching
// one of poolerr's known kinds reconstructs a *poolerr.Error of that kind;
// any other Kind reconstructs a generic *poolerr.Error tagged
// poolerr.Generic, carrying the same message, stack and fields (spec.md
// §4.5's "otherwise reconstruct a generic error carrying the same
// fields").
func FromWireError(w *WireError) error {
	if w == nil {
		return nil
	}
	kind := poolerr.Kind(w.Kind)
	switch kind {
	case poolerr.PoolDisposed, poolerr.InvalidConfig, poolerr.ModuleNotFound,
		poolerr.ModuleImportFailed, poolerr.InvalidProcessor, poolerr.InvalidFile,
		poolerr.PluginError, poolerr.UnexpectedExit, poolerr.Terminating,
		poolerr.ProtocolError:
		// recognized kind, fall through to reconstruction below
	default:
		kind = poolerr.Generic
	}
	return &poolerr.Error{
		Kind:    kind,
		Message: w.Message,
		Stack:   w.Stack,
		Fields:  w.Fields,
	}
}
