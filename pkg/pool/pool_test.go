package pool

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kilnforge/filepool/pkg/executor"
	"github.com/kilnforge/filepool/pkg/model"
	"github.com/kilnforge/filepool/pkg/plugin"
	"github.com/kilnforge/filepool/pkg/poolerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uppercaseModule() *plugin.Module {
	return &plugin.Module{Name: "uppercase", Default: model.Processor(
		func(ctx context.Context, f *model.File, r *model.Run) (<-chan model.ProcessResult, error) {
			return model.Single(&model.FileInfo{Path: strings.ToUpper(f.Path)}, nil), nil
		})}
}

func factoryModule() *plugin.Module {
	return &plugin.Module{Name: "withOptions", Default: model.Factory(func(data any) (model.Processor, error) {
		suffix := data.(map[string]any)["suffix"].(string)
		return func(ctx context.Context, f *model.File, r *model.Run) (<-chan model.ProcessResult, error) {
			return model.Single(&model.FileInfo{Path: f.Path + suffix}, nil), nil
		}, nil
	})}
}

func newTestPool(t *testing.T, concurrency int, resolver plugin.Resolver) *Pool {
	t.Helper()
	p, err := New(Config{Cwd: "/work", Concurrency: concurrency, Resolver: resolver})
	require.NoError(t, err)
	t.Cleanup(p.Dispose)
	return p
}

func TestPool_RoundTripSingleFile(t *testing.T) {
	resolver := plugin.MapResolver{"./upper": uppercaseModule()}
	p := newTestPool(t, 2, resolver)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	proc, name, err := p.ImportFileProcessor(ctx, ImportRequest{ModuleID: "./upper"})
	require.NoError(t, err)
	assert.Equal(t, "uppercase", name)

	ch, err := proc(ctx, &model.File{Path: "a.txt"}, &model.Run{Cwd: "/work", Concurrency: 2, Full: true})
	require.NoError(t, err)
	res := <-ch
	require.NoError(t, res.Err)
	assert.Equal(t, "A.TXT", res.File.Path)
}

func TestPool_FactoryWithData(t *testing.T) {
	resolver := plugin.MapResolver{"./withOptions": factoryModule()}
	p := newTestPool(t, 1, resolver)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	proc, _, err := p.ImportFileProcessor(ctx, ImportRequest{ModuleID: "./withOptions", Data: map[string]any{"suffix": ".out"}, DataProvided: true})
	require.NoError(t, err)

	ch, err := proc(ctx, &model.File{Path: "a.txt"}, &model.Run{Cwd: "/work", Concurrency: 1, Full: true})
	require.NoError(t, err)
	res := <-ch
	require.NoError(t, res.Err)
	assert.Equal(t, "a.txt.out", res.File.Path)
}

func taggingModule() *plugin.Module {
	return &plugin.Module{Name: "tag", Default: model.Processor(
		func(ctx context.Context, f *model.File, r *model.Run) (<-chan model.ProcessResult, error) {
			id, _ := executor.WorkerIDFromContext(ctx)
			return model.Single(&model.FileInfo{Path: f.Path + "@" + id}, nil), nil
		})}
}

func TestPool_RoundRobinAcrossWorkers(t *testing.T) {
	resolver := plugin.MapResolver{"./tag": taggingModule()}
	p := newTestPool(t, 3, resolver)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	proc, _, err := p.ImportFileProcessor(ctx, ImportRequest{ModuleID: "./tag"})
	require.NoError(t, err)

	counts := map[string]int{}
	for i := 0; i < 6; i++ {
		ch, err := proc(ctx, &model.File{Path: "a.txt"}, &model.Run{Cwd: "/work", Concurrency: 3, Full: true})
		require.NoError(t, err)
		res := <-ch
		require.NoError(t, res.Err)
		parts := strings.SplitN(res.File.Path, "@", 2)
		require.Len(t, parts, 2)
		counts[parts[1]]++
	}

	require.Len(t, counts, 3, "over k*N=6 calls all three workers must have been selected")
	for id, c := range counts {
		assert.Equal(t, 2, c, "worker %s should receive exactly k=2 calls", id)
	}
}

func TestPool_ImportFileProcessorFailsAfterDispose(t *testing.T) {
	resolver := plugin.MapResolver{"./upper": uppercaseModule()}
	p, err := New(Config{Cwd: "/work", Concurrency: 1, Resolver: resolver})
	require.NoError(t, err)
	p.Dispose()

	_, _, err = p.ImportFileProcessor(context.Background(), ImportRequest{ModuleID: "./upper"})
	require.Error(t, err)
	assert.Equal(t, poolerr.PoolDisposed, poolerr.KindOf(err))
	assert.Equal(t, 0, p.Size())
}

func TestPool_DisposeIsIdempotent(t *testing.T) {
	p, err := New(Config{Cwd: "/work", Concurrency: 2, Resolver: plugin.MapResolver{}})
	require.NoError(t, err)
	p.Dispose()
	p.Dispose()
}

func TestPool_ConstructValidatesConfig(t *testing.T) {
	_, err := New(Config{Cwd: "", Concurrency: 1})
	require.Error(t, err)
	assert.Equal(t, poolerr.InvalidConfig, poolerr.KindOf(err))

	_, err = New(Config{Cwd: "/work", Concurrency: 0})
	require.Error(t, err)
	assert.Equal(t, poolerr.InvalidConfig, poolerr.KindOf(err))
}

func TestPool_ImportFileProcessorFailsWhenAnyWorkerFails(t *testing.T) {
	p := newTestPool(t, 2, plugin.MapResolver{"./upper": uppercaseModule()})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, _, err := p.ImportFileProcessor(ctx, ImportRequest{ModuleID: "./missing"})
	require.Error(t, err)
	assert.Equal(t, poolerr.ModuleNotFound, poolerr.KindOf(err))
}

func TestPool_NewRunStampsIDAndPoolConfig(t *testing.T) {
	p := newTestPool(t, 3, plugin.MapResolver{})

	a := p.NewRun()
	b := p.NewRun()

	assert.NotEqual(t, uuid.Nil, a.ID)
	assert.NotEqual(t, a.ID, b.ID, "each call mints a fresh id")
	assert.Equal(t, "/work", a.Cwd)
	assert.Equal(t, 3, a.Concurrency)
}

func TestPool_Stats(t *testing.T) {
	p := newTestPool(t, 2, plugin.MapResolver{})
	stats := p.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.False(t, stats.Disposed)
	assert.Len(t, stats.Workers, 2)
	for _, w := range stats.Workers {
		assert.True(t, w.Online)
		assert.False(t, w.Terminated)
	}
}
