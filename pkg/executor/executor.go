package executor

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/kilnforge/filepool/pkg/boundarylog"
	"github.com/kilnforge/filepool/pkg/channel"
	"github.com/kilnforge/filepool/pkg/model"
	"github.com/kilnforge/filepool/pkg/plugin"
	"github.com/kilnforge/filepool/pkg/poolerr"
	"github.com/kilnforge/filepool/pkg/transport"
)

// Executor is the runtime living inside one worker goroutine (spec.md
// §4.4). It owns the executor side of a Message Channel, resolves plugin
// modules through a Resolver, and dispatches processFile requests to
// whichever Processor was registered under a given moduleUID.
type Executor struct {
	WorkerID string
	Resolver plugin.Resolver
	Channel  *channel.Channel

	mu         sync.Mutex
	processors map[uint64]model.Processor
}

// New constructs an Executor bound to ch, resolving plugin modules via r.
func New(workerID string, r plugin.Resolver, ch *channel.Channel) *Executor {
	return &Executor{
		WorkerID:   workerID,
		Resolver:   r,
		Channel:    ch,
		processors: make(map[uint64]model.Processor),
	}
}

type workerIDKey struct{}

// WorkerIDFromContext returns the id of the worker executing the current
// request, if the context was derived from an Executor's Run.
func WorkerIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(workerIDKey{}).(string)
	return id, ok
}

// Run consumes requests from the channel until it is closed or ctx is
// canceled, dispatching each on its own goroutine so that a long-running
// processFile stream never blocks unrelated requests (spec.md notes each
// Executor is internally single-threaded cooperative; goroutines plus a
// per-executor channel give the same effective ordering per request
// without hand-rolled cooperative scheduling).
func (e *Executor) Run(ctx context.Context) {
	ctx = context.WithValue(ctx, workerIDKey{}, e.WorkerID)
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case msg, ok := <-e.Channel.Requests():
			if !ok {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				e.dispatch(ctx, msg)
			}()
		case <-ctx.Done():
			return
		}
	}
}

func (e *Executor) dispatch(ctx context.Context, msg channel.Message) {
	defer e.recoverPanic(msg)
	switch msg.Kind {
	case channel.KindImportFileProcessor:
		e.handleImportFileProcessor(ctx, msg)
	case channel.KindImportModule:
		e.handleImportModule(ctx, msg)
	case channel.KindProcessFile:
		e.handleProcessFile(ctx, msg)
	default:
		e.replyError(msg, poolerr.New(poolerr.ProtocolError, "unrecognized request kind"))
	}
}

// recoverPanic converts a panicking plugin call into a PluginError reply
// (spec.md §4.4: "any thrown exception during dispatch is caught and
// converted into an error reply") rather than letting it take down the
// worker goroutine — plugin code is untrusted and Go has no exception type
// to distinguish deliberate errors from crashes the way JS's try/catch
// does, so this is the boundary that plays that role.
func (e *Executor) recoverPanic(msg channel.Message) {
	if r := recover(); r != nil {
		err := poolerr.New(poolerr.PluginError, "plugin code panicked").
			WithField("panic", r).
			WithField("stack", string(debug.Stack()))
		e.replyError(msg, err)
	}
}

func (e *Executor) handleImportFileProcessor(ctx context.Context, msg channel.Message) {
	req, ok := msg.Payload.(ImportFileProcessorRequest)
	if !ok {
		e.replyError(msg, poolerr.New(poolerr.ProtocolError, "malformed importFileProcessor payload"))
		return
	}

	mod, err := plugin.Import(ctx, e.Resolver, req.Cwd, req.ModuleID)
	if err != nil {
		e.annotateNotFound(err, req.ModuleID)
		e.replyError(msg, err)
		return
	}

	proc, name, err := plugin.ResolveProcessor(mod, req.Data, req.DataProvided)
	if err != nil {
		e.replyError(msg, err)
		return
	}

	e.mu.Lock()
	e.processors[req.ModuleUID] = proc
	e.mu.Unlock()

	e.reply(msg, channel.KindFileProcessorImported, FileProcessorImportedReply{Name: name})
}

func (e *Executor) handleImportModule(ctx context.Context, msg channel.Message) {
	req, ok := msg.Payload.(ImportModuleRequest)
	if !ok {
		e.replyError(msg, poolerr.New(poolerr.ProtocolError, "malformed importModule payload"))
		return
	}

	mod, err := plugin.Import(ctx, e.Resolver, req.Cwd, req.ModuleID)
	if err != nil {
		e.annotateNotFound(err, req.ModuleID)
		e.replyError(msg, err)
		return
	}

	if err := plugin.ResolveHook(mod, req.Data); err != nil {
		e.replyError(msg, err)
		return
	}

	e.reply(msg, channel.KindFinished, FinishedReply{})
}

func (e *Executor) handleProcessFile(ctx context.Context, msg channel.Message) {
	req, ok := msg.Payload.(ProcessFileRequest)
	if !ok {
		e.replyError(msg, poolerr.New(poolerr.ProtocolError, "malformed processFile payload"))
		return
	}

	e.mu.Lock()
	proc, ok := e.processors[req.ModuleUID]
	e.mu.Unlock()
	if !ok {
		e.replyError(msg, poolerr.New(poolerr.InvalidProcessor, "no processor registered for module"))
		return
	}

	run := req.Run
	if run == nil {
		run = &model.Run{}
	}
	run.Log = boundarylog.New(e.Channel, msg.ID, run.Debug)

	results, err := proc(ctx, req.File, run)
	if err != nil {
		e.replyError(msg, poolerr.Wrap(poolerr.PluginError, "processor failed", err))
		return
	}

	for res := range results {
		if res.Err != nil {
			e.replyError(msg, poolerr.Wrap(poolerr.PluginError, "processor failed", res.Err))
			return
		}
		if res.File == nil {
			continue
		}
		if res.File.Path == "" {
			e.replyError(msg, poolerr.New(poolerr.InvalidFile,
				"processor yielded a value with no path"))
			return
		}
		wire, _ := transport.PrepareFileInfo(res.File)
		e.reply(msg, channel.KindFile, FileReply{File: wire})
	}

	e.reply(msg, channel.KindFinished, FinishedReply{})
}

func (e *Executor) annotateNotFound(err error, moduleID string) {
	if pe, ok := err.(*poolerr.Error); ok && pe.Kind == poolerr.ModuleNotFound {
		pe.WithField("workerId", e.WorkerID).WithField("moduleId", moduleID)
	}
}

func (e *Executor) reply(msg channel.Message, kind channel.Kind, payload any) {
	_ = e.Channel.Reply(msg.ID, kind, payload)
}

func (e *Executor) replyError(msg channel.Message, err error) {
	_ = e.Channel.Reply(msg.ID, channel.KindError, transport.ToWireError(err))
}
