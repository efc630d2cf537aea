// Package boundarylog implements the per-request logging channel
// (spec.md §4, "Boundary logger"): a Run's Log capability tunnels
// structured log records from an Executor back to the exact Controller
// call site that issued the request, and is reconstructed on each side of
// the boundary.
package boundarylog

import (
	"github.com/kilnforge/filepool/pkg/channel"
	"github.com/kilnforge/filepool/pkg/model"
	"github.com/kilnforge/filepool/pkg/transport"
)

// Payload is the `log` reply's data (spec.md §6: `log {level, message,
// data?}`). Message is always the record's text; when the logged value was
// an error, AsError also carries it as a WireError that the Controller
// reconstructs before handing it to the user's logger.
type Payload struct {
	Level   model.LogLevel
	Message string
	AsError *transport.WireError
	Data    map[string]any
}

// executorLogger is installed inside an Executor for the lifetime of one
// processFile request. It must never outlive that request (spec.md §9):
// once the request's terminal reply has been sent, log replies for its
// message id are ignored by the Controller's Channel while the id is in its
// bounded completed history, and reported as a ProtocolError after that.
type executorLogger struct {
	ch        *channel.Channel
	messageID uint64
	debug     bool
}

// New installs a fresh Logger inside an Executor, bound to messageID — the
// id of the processFile request currently being handled. debug mirrors
// Run.Debug; when false, Debug-level records are suppressed entirely
// rather than posted and filtered on the Controller side, since the
// Executor is what spec.md §8 requires to suppress them.
func New(ch *channel.Channel, messageID uint64, debug bool) model.Logger {
	return &executorLogger{ch: ch, messageID: messageID, debug: debug}
}

func (l *executorLogger) Log(message any, data map[string]any) {
	if err, ok := message.(error); ok {
		l.emit(model.LogError, err, data)
		return
	}
	l.emit(model.LogInfo, message, data)
}

func (l *executorLogger) Info(message any, data map[string]any)  { l.emit(model.LogInfo, message, data) }
func (l *executorLogger) Warn(message any, data map[string]any)  { l.emit(model.LogWarn, message, data) }
func (l *executorLogger) Error(message any, data map[string]any) { l.emit(model.LogError, message, data) }

func (l *executorLogger) Debug(message any, data map[string]any) {
	if !l.debug {
		return
	}
	l.emit(model.LogDebug, message, data)
}

func (l *executorLogger) emit(level model.LogLevel, message any, data map[string]any) {
	payload := Payload{Level: level, Data: transport.CloneMetadata(data)}
	if err, ok := message.(error); ok {
		payload.AsError = transport.ToWireError(err)
		payload.Message = err.Error()
	} else if s, ok := message.(string); ok {
		payload.Message = s
	} else {
		payload.Message = toString(message)
	}
	// Best-effort: a log reply for a request whose Controller side has
	// already stopped listening (the stream ended) is simply dropped by
	// the receiving Channel's dispatchLoop via the completed-history
	// check, matching spec.md's "arrived-after-cancel is ignored".
	_ = l.ch.Reply(l.messageID, channel.KindLog, payload)
}

func toString(v any) string {
	if v == nil {
		return "<nil>"
	}
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return "<unprintable log message>"
}

// Dispatch routes a `log` reply received on the Controller side into
// run's Log capability (spec.md §4.2: "dispatch into the run's logger with
// the provided level and data; message payload may be string or a
// reconstructed Error").
func Dispatch(run *model.Run, payload Payload) {
	if run == nil || run.Log == nil {
		return
	}
	var message any = payload.Message
	if payload.AsError != nil {
		message = payload.AsError.AsError()
	}
	switch payload.Level {
	case model.LogWarn:
		run.Log.Warn(message, payload.Data)
	case model.LogError:
		run.Log.Error(message, payload.Data)
	case model.LogDebug:
		run.Log.Debug(message, payload.Data)
	default:
		run.Log.Info(message, payload.Data)
	}
}
