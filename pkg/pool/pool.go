// Package pool implements the Worker Pool (spec.md §4.1): a fixed-size set
// of Worker Handles, round-robin file dispatch, and plugin registration
// broadcast to every worker in parallel.
package pool

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/kilnforge/filepool/pkg/model"
	"github.com/kilnforge/filepool/pkg/plugin"
	"github.com/kilnforge/filepool/pkg/poolerr"
	"github.com/kilnforge/filepool/pkg/worker"
	"golang.org/x/sync/errgroup"
)

// Config configures pool construction (spec.md §4.1's "construct(concurrency,
// context, errorSink)").
type Config struct {
	Cwd         string
	Concurrency int
	Resolver    plugin.Resolver
	// OnWorkerError receives out-of-band worker errors (UnexpectedExit,
	// ProtocolError) not tied to a call the caller is already waiting on —
	// spec.md §6's "error event channel for unhandled worker errors".
	OnWorkerError func(error)
}

func (c Config) validate() error {
	if c.Concurrency <= 0 {
		return poolerr.New(poolerr.InvalidConfig, "concurrency must be a positive integer")
	}
	if strings.TrimSpace(c.Cwd) == "" {
		return poolerr.New(poolerr.InvalidConfig, "cwd must not be empty")
	}
	return nil
}

// Pool is a fixed-size set of Worker Handles. It is safe for concurrent
// use.
type Pool struct {
	cwd           string
	onWorkerError func(error)

	workers []*worker.Handle

	cursor        uint64 // round-robin selection, wraps modulo len(workers)
	moduleCounter uint64

	disposed atomic.Bool
	disposeOnce sync.Once
}

// New constructs a Pool per cfg, spawning cfg.Concurrency Worker Handles.
func New(cfg Config) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p := &Pool{
		cwd:           cfg.Cwd,
		onWorkerError: cfg.OnWorkerError,
		workers:       make([]*worker.Handle, cfg.Concurrency),
	}
	for i := range p.workers {
		p.workers[i] = worker.New(workerID(i), cfg.Resolver, p.onWorkerError)
	}
	return p, nil
}

func workerID(i int) string {
	return fmt.Sprintf("worker-%d", i)
}

// Size returns the number of live Worker Handles (0 after Dispose).
func (p *Pool) Size() int {
	if p.disposed.Load() {
		return 0
	}
	return len(p.workers)
}

// IsDisposed reports whether Dispose has been called; it is already true
// while Dispose is still terminating the workers.
func (p *Pool) IsDisposed() bool { return p.disposed.Load() }

// WorkerStats is one worker's lifecycle snapshot, consumed by the status
// dashboard (SPEC_FULL.md §11).
type WorkerStats struct {
	ID         string
	Online     bool
	Terminated bool
}

// Stats snapshots pool-wide and per-worker state (SPEC_FULL.md §4.1
// "(NEW) Pool.Stats()").
type Stats struct {
	Size     int
	Disposed bool
	Workers  []WorkerStats
}

func (p *Pool) Stats() Stats {
	s := Stats{Size: p.Size(), Disposed: p.disposed.Load(), Workers: make([]WorkerStats, len(p.workers))}
	for i, w := range p.workers {
		online, terminated := w.State()
		s.Workers[i] = WorkerStats{ID: w.ID, Online: online, Terminated: terminated}
	}
	return s
}

// NewRun mints a Run for a new build invocation: a fresh Run.ID and the
// pool's own Cwd/Concurrency, matching the Cwd/Concurrency every worker was
// constructed with. Callers set Dev/Debug/Full/Partial/ChangedFiles/Log
// before passing the Run to a Processor.
func (p *Pool) NewRun() *model.Run {
	return &model.Run{
		ID:          uuid.New(),
		Cwd:         p.cwd,
		Concurrency: len(p.workers),
	}
}

// ImportRequest is the moduleId-or-{moduleId,data} argument shape spec.md
// §4.1 describes for importFileProcessor/importModule.
type ImportRequest struct {
	ModuleID     string
	Data         any
	DataProvided bool
}

// ImportFileProcessor broadcasts an ImportFileProcessor request to every
// worker in parallel, then returns a Processor proxy that round-robins
// processFile calls across them (spec.md §4.1 steps 1-5).
func (p *Pool) ImportFileProcessor(ctx context.Context, req ImportRequest) (model.Processor, string, error) {
	if p.disposed.Load() {
		return nil, "", poolerr.New(poolerr.PoolDisposed, "pool is disposed")
	}
	if len(p.workers) == 0 {
		return nil, "", poolerr.New(poolerr.InvalidConfig, "pool has no workers")
	}

	moduleUID := atomic.AddUint64(&p.moduleCounter, 1)
	names := make([]string, len(p.workers))

	g, gctx := errgroup.WithContext(ctx)
	for i, w := range p.workers {
		i, w := i, w
		g.Go(func() error {
			name, err := w.ImportFileProcessor(gctx, moduleUID, req.ModuleID, p.cwd, req.Data, req.DataProvided)
			if err != nil {
				return err
			}
			names[i] = name
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, "", err
	}

	proxy := p.processorProxy(moduleUID)
	return proxy, names[0], nil
}

// processorProxy returns a model.Processor that selects a worker
// round-robin and delegates to its processFile for moduleUID (spec.md
// §4.1 step 5).
func (p *Pool) processorProxy(moduleUID uint64) model.Processor {
	return func(ctx context.Context, file *model.File, run *model.Run) (<-chan model.ProcessResult, error) {
		if p.disposed.Load() {
			return nil, poolerr.New(poolerr.PoolDisposed, "pool is disposed")
		}
		w := p.selectWorker()
		stream, err := w.ProcessFile(ctx, moduleUID, file, run)
		if err != nil {
			return nil, err
		}
		out := make(chan model.ProcessResult)
		go func() {
			defer close(out)
			for {
				fi, ok := stream.Next(ctx)
				if !ok {
					if err := stream.Err(); err != nil {
						out <- model.ProcessResult{Err: err}
					}
					return
				}
				out <- model.ProcessResult{File: fi}
			}
		}()
		return out, nil
	}
}

// ImportModule broadcasts an ImportModule request to every worker in
// parallel and returns once all acknowledge (spec.md §4.1's importModule).
func (p *Pool) ImportModule(ctx context.Context, req ImportRequest) error {
	if p.disposed.Load() {
		return poolerr.New(poolerr.PoolDisposed, "pool is disposed")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		w := w
		g.Go(func() error {
			return w.ImportModule(gctx, req.ModuleID, p.cwd, req.Data, req.DataProvided)
		})
	}
	return g.Wait()
}

func (p *Pool) selectWorker() *worker.Handle {
	i := atomic.AddUint64(&p.cursor, 1) - 1
	return p.workers[i%uint64(len(p.workers))]
}

// Dispose terminates every worker in parallel and marks the pool disposed.
// Idempotent: subsequent calls are no-ops (spec.md §4.1's dispose()).
func (p *Pool) Dispose() {
	p.disposeOnce.Do(func() {
		p.disposed.Store(true)
		var wg sync.WaitGroup
		for _, w := range p.workers {
			w := w
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.Terminate()
			}()
		}
		wg.Wait()
	})
}
