// Package poolerr defines the typed error taxonomy shared by every layer of
// the file-processing worker pool: value transport, the message channel,
// the executor runtime, worker handles and the pool itself.
package poolerr

// Kind identifies one of the pool's well-known error categories. Kind
// values also double as the wire-level "kind" tag used when an error
// crosses the Controller/Executor boundary (see pkg/transport).
type Kind string

const (
	// PoolDisposed is returned for any operation attempted after Dispose.
	PoolDisposed Kind = "PoolDisposed"
	// InvalidConfig is returned when pool construction receives a bad cwd
	// or a non-positive concurrency.
	InvalidConfig Kind = "InvalidConfig"
	// ModuleNotFound is returned when module resolution exhausts every
	// search strategy.
	ModuleNotFound Kind = "ModuleNotFound"
	// ModuleImportFailed wraps any error raised while importing a module
	// that was successfully resolved.
	ModuleImportFailed Kind = "ModuleImportFailed"
	// InvalidProcessor is returned when an imported module's export (or a
	// factory's return value) is not a Processor.
	InvalidProcessor Kind = "InvalidProcessor"
	// InvalidFile is returned when a plugin yields a value without a Path.
	InvalidFile Kind = "InvalidFile"
	// PluginError wraps anything thrown or panicked by plugin code while
	// processing a file.
	PluginError Kind = "PluginError"
	// UnexpectedExit is returned when a worker goroutine ends without
	// having been asked to terminate.
	UnexpectedExit Kind = "UnexpectedExit"
	// Terminating is returned to every pending request when Dispose (or
	// worker.Handle.Terminate) cancels a worker mid-flight.
	Terminating Kind = "Terminating"
	// ProtocolError is raised when a reply refers to an unknown message id.
	ProtocolError Kind = "ProtocolError"
	// Generic tags a reconstructed error whose kind did not match any of
	// the above when it crossed the wire.
	Generic Kind = "Error"
)

// Error is the concrete error type used across the pool. It carries enough
// structure to survive a round trip across the Controller/Executor
// boundary: Kind identifies the category, Fields carries any custom
// properties the original error had, and Cause chains to whatever error
// (local or reconstructed) triggered it.
type Error struct {
	Kind    Kind
	Message string
	Stack   string
	Fields  map[string]any
	Cause   error
}

// New creates an Error of the given kind with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind that chains to cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithField attaches a custom property to the error and returns it for
// chaining, mirroring the "...customProps" carried by PluginError.
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// Error renders as the message alone, or the message and its cause chained
// with ": " — Kind is not part of the string (callers that need it use
// KindOf or Is), so a caller relying on the message's literal wording, such
// as a wrapped "Error importing module: <id>" prefix, sees exactly that
// wording regardless of kind.
func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether err is a *Error of the given kind, unwrapping chained
// causes along the way.
func Is(err error, kind Kind) bool {
	for err != nil {
		if pe, ok := err.(*Error); ok {
			if pe.Kind == kind {
				return true
			}
			err = pe.Cause
			continue
		}
		break
	}
	return false
}

// KindOf returns the Kind of err if it is a *Error, and Generic otherwise.
func KindOf(err error) Kind {
	if pe, ok := err.(*Error); ok {
		return pe.Kind
	}
	return Generic
}
