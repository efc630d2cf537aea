package model

import "github.com/google/uuid"

// LogLevel is one of the four severities a Logger accepts, matching the
// wire protocol's `level` field (spec.md §6).
type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warning"
	LogError LogLevel = "error"
	LogDebug LogLevel = "debug"
)

// Logger is the logging capability threaded through a Run. On the
// Controller it forwards to the caller's logger; inside an Executor it is
// reconstructed to tunnel log records back to the exact request that
// produced them (see pkg/boundarylog). message may be a string or an
// error; errors route to LogError, strings to LogInfo, matching spec.md
// §4.5's "Logger shape at the Executor".
type Logger interface {
	Log(message any, data map[string]any)
	Info(message any, data map[string]any)
	Warn(message any, data map[string]any)
	Error(message any, data map[string]any)
	Debug(message any, data map[string]any)
}

// Run is per-build invocation data (spec.md's BuildContext). Exactly one of
// Full or Partial must be true.
type Run struct {
	// ID correlates dashboard and log output across a single build
	// invocation. It is minted by the Pool, not transported on the wire.
	ID uuid.UUID

	Cwd          string
	Concurrency  int
	Dev          bool
	Debug        bool
	Full         bool
	Partial      bool
	ChangedFiles []ChangedFile

	Log Logger
}

// Validate enforces the invariants spec.md §3 states for BuildContext.
func (r *Run) Validate() error {
	if r.Cwd == "" {
		return errBlankField("cwd")
	}
	if r.Concurrency <= 0 {
		return errBlankField("concurrency")
	}
	if r.Full == r.Partial {
		return errBlankField("exactly one of full/partial")
	}
	return nil
}

type fieldError string

func (e fieldError) Error() string { return "invalid run: " + string(e) }

func errBlankField(field string) error {
	return fieldError(field + " is required")
}
