// Package worker implements the Worker Handle (spec.md §4.2): the
// Controller-side proxy for one Executor, owning its Message Channel and
// mediating every request against an await-online gate and the worker's
// lifecycle.
package worker

import (
	"context"
	"sync"

	"github.com/kilnforge/filepool/pkg/boundarylog"
	"github.com/kilnforge/filepool/pkg/channel"
	"github.com/kilnforge/filepool/pkg/executor"
	"github.com/kilnforge/filepool/pkg/model"
	"github.com/kilnforge/filepool/pkg/plugin"
	"github.com/kilnforge/filepool/pkg/poolerr"
	"github.com/kilnforge/filepool/pkg/transport"
)

// linkBuffer sizes each direction of a worker's Message Channel. Streamed
// processFile replies (file, log) can arrive faster than a slow consumer
// drains them; a modest buffer avoids blocking the executor goroutine on a
// channel send during ordinary bursts.
const linkBuffer = 32

// Handle wraps one Executor goroutine and the Message Channel connecting
// to it. Go has no OS-thread-crash equivalent that Go code doesn't itself
// trigger, so "online" here fires when the executor goroutine is spawned
// rather than after an async startup handshake — a deliberate
// simplification over the literal worker_threads model documented in
// SPEC_FULL.md §0.
type Handle struct {
	ID string

	ctx    context.Context
	cancel context.CancelFunc
	ch     *channel.Channel
	online chan struct{}

	onWorkerError func(error)

	mu         sync.Mutex
	terminated bool
}

// New spawns an Executor bound to resolver and returns a Handle proxying
// it. onWorkerError is the pool's error sink (spec.md §4.1's
// "errorSink") — it receives UnexpectedExit and ProtocolError events that
// are not the direct result of a call the caller is already waiting on.
func New(id string, resolver plugin.Resolver, onWorkerError func(error)) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		ID:            id,
		ctx:           ctx,
		cancel:        cancel,
		online:        make(chan struct{}),
		onWorkerError: onWorkerError,
	}

	link := channel.NewLink(linkBuffer)
	h.ch = link.ControllerSide(h.onProtocolError)
	ex := executor.New(id, resolver, link.ExecutorSide(h.onProtocolError))

	close(h.online)
	go h.run(ex)
	return h
}

func (h *Handle) onProtocolError(err error) {
	if h.onWorkerError != nil {
		h.onWorkerError(err)
	}
}

func (h *Handle) run(ex *executor.Executor) {
	defer func() {
		recover() // an escaped panic outside a single request is treated as a crash, same as ctx cancellation
		h.handleExit()
	}()
	ex.Run(h.ctx)
}

// handleExit implements spec.md §4.2's exit(code) lifecycle event. If the
// worker was already marked terminated, this exit was requested by
// Terminate and everything has already been rejected and reported there.
// Otherwise this is an unrequested exit and is surfaced to the pool.
func (h *Handle) handleExit() {
	h.mu.Lock()
	already := h.terminated
	h.terminated = true
	h.mu.Unlock()
	if already {
		return
	}
	err := poolerr.New(poolerr.UnexpectedExit, "worker exited unexpectedly").WithField("workerId", h.ID)
	h.ch.Terminate(err)
	if h.onWorkerError != nil {
		h.onWorkerError(err)
	}
}

// State reports the worker's current lifecycle state for dashboard/status
// consumption (SPEC_FULL.md §11): online reports whether the await-online
// gate has resolved, terminated whether Terminate or an unrequested exit
// has occurred.
func (h *Handle) State() (online, terminated bool) {
	select {
	case <-h.online:
		online = true
	default:
	}
	h.mu.Lock()
	terminated = h.terminated
	h.mu.Unlock()
	return online, terminated
}

func (h *Handle) awaitOnline(ctx context.Context) error {
	select {
	case <-h.online:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ImportFileProcessor sends an importFileProcessor request and returns the
// processor's declared name.
func (h *Handle) ImportFileProcessor(ctx context.Context, moduleUID uint64, moduleID, cwd string, data any, dataProvided bool) (string, error) {
	if err := h.awaitOnline(ctx); err != nil {
		return "", err
	}
	reply, err := h.ch.SendAwait(ctx, channel.KindImportFileProcessor, executor.ImportFileProcessorRequest{
		ModuleUID:    moduleUID,
		ModuleID:     moduleID,
		Cwd:          cwd,
		Data:         transport.PrepareValue(data),
		DataProvided: dataProvided,
	})
	if err != nil {
		return "", err
	}
	imported, ok := reply.Payload.(executor.FileProcessorImportedReply)
	if !ok {
		return "", poolerr.New(poolerr.ProtocolError, "malformed fileProcessorImported reply")
	}
	return imported.Name, nil
}

// ImportModule sends an importModule request and awaits its Finished reply.
func (h *Handle) ImportModule(ctx context.Context, moduleID, cwd string, data any, dataProvided bool) error {
	if err := h.awaitOnline(ctx); err != nil {
		return err
	}
	_, err := h.ch.SendAwait(ctx, channel.KindImportModule, executor.ImportModuleRequest{
		ModuleID:     moduleID,
		Cwd:          cwd,
		Data:         transport.PrepareValue(data),
		DataProvided: dataProvided,
	})
	return err
}

// FileStream is the lazy sequence of FileInfo values a processFile call
// yields (spec.md §4.2). Next also silently dispatches interleaved `log`
// replies into run's logger before returning the next file, matching the
// spec's single combined reply stream.
type FileStream struct {
	handle *channel.StreamHandle
	run    *model.Run
}

// Next blocks for the next produced file, returning ok == false once the
// stream ends (see Err for whether it ended in error).
func (s *FileStream) Next(ctx context.Context) (*model.FileInfo, bool) {
	for {
		msg, ok := s.handle.Next(ctx)
		if !ok {
			return nil, false
		}
		switch msg.Kind {
		case channel.KindLog:
			if payload, ok := msg.Payload.(boundarylog.Payload); ok {
				boundarylog.Dispatch(s.run, payload)
			}
		case channel.KindFile:
			if fr, ok := msg.Payload.(executor.FileReply); ok {
				return fr.File, true
			}
		}
	}
}

// Err returns the error that ended the stream, if any.
func (s *FileStream) Err() error { return s.handle.Err() }

// ProcessFile transport-prepares file and run (spec.md §4.2 step 2) and
// dispatches a processFile request, returning a FileStream. run is kept by
// the caller (and by the returned FileStream) with its real Log capability
// intact; only the wire copy sent to the executor has it stripped.
func (h *Handle) ProcessFile(ctx context.Context, moduleUID uint64, file *model.File, run *model.Run) (*FileStream, error) {
	if err := h.awaitOnline(ctx); err != nil {
		return nil, err
	}
	wireFile, _ := transport.PrepareFile(file)
	wireRun := transport.PrepareRun(run)
	sh, err := h.ch.SendStream(ctx, channel.KindProcessFile, executor.ProcessFileRequest{
		ModuleUID: moduleUID,
		File:      wireFile,
		Run:       wireRun,
	})
	if err != nil {
		return nil, err
	}
	return &FileStream{handle: sh, run: run}, nil
}

// Terminate implements spec.md §4.2's terminate(): idempotent, rejects
// every pending request with a Terminating error, and stops the executor
// goroutine. It returns an exit code, always 0 for a requested termination
// since Go goroutines have no process exit status.
func (h *Handle) Terminate() int {
	h.mu.Lock()
	if h.terminated {
		h.mu.Unlock()
		return 0
	}
	h.terminated = true
	h.mu.Unlock()

	h.ch.Terminate(poolerr.New(poolerr.Terminating, "worker terminated"))
	h.cancel()
	return 0
}
