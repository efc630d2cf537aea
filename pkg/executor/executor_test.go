package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/kilnforge/filepool/pkg/channel"
	"github.com/kilnforge/filepool/pkg/model"
	"github.com/kilnforge/filepool/pkg/plugin"
	"github.com/kilnforge/filepool/pkg/poolerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPair(t *testing.T, resolver plugin.Resolver) (*channel.Channel, *Executor, context.CancelFunc) {
	t.Helper()
	link := channel.NewLink(8)
	controller := link.ControllerSide(nil)
	execCh := link.ExecutorSide(nil)

	ex := New("w0", resolver, execCh)
	ctx, cancel := context.WithCancel(context.Background())
	go ex.Run(ctx)
	return controller, ex, cancel
}

func TestExecutor_ImportFileProcessorAndProcessFile(t *testing.T) {
	mod := &plugin.Module{Name: "uppercase", Default: model.Processor(
		func(ctx context.Context, f *model.File, r *model.Run) (<-chan model.ProcessResult, error) {
			return model.Single(&model.FileInfo{Path: f.Path}, nil), nil
		})}
	resolver := plugin.MapResolver{"./uppercase": mod}
	controller, _, cancel := newTestPair(t, resolver)
	defer cancel()

	ctx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()

	reply, err := controller.SendAwait(ctx, channel.KindImportFileProcessor, ImportFileProcessorRequest{
		ModuleUID: 1, ModuleID: "./uppercase", Cwd: "/work",
	})
	require.NoError(t, err)
	imported := reply.Payload.(FileProcessorImportedReply)
	assert.Equal(t, "uppercase", imported.Name)

	stream, err := controller.SendStream(ctx, channel.KindProcessFile, ProcessFileRequest{
		ModuleUID: 1,
		File:      &model.File{Path: "a.txt"},
		Run:       &model.Run{Cwd: "/work", Concurrency: 1, Full: true},
	})
	require.NoError(t, err)

	m, ok := stream.Next(ctx)
	require.True(t, ok)
	fr := m.Payload.(FileReply)
	assert.Equal(t, "a.txt", fr.File.Path)

	_, ok = stream.Next(ctx)
	assert.False(t, ok)
	assert.NoError(t, stream.Err())
}

func TestExecutor_ProcessFileYieldsMultipleFilesInOrder(t *testing.T) {
	mod := &plugin.Module{Name: "split", Default: model.Processor(
		func(ctx context.Context, f *model.File, r *model.Run) (<-chan model.ProcessResult, error) {
			return model.Many([]model.FileInfo{{Path: "a.txt"}, {Path: "b.txt"}}), nil
		})}
	resolver := plugin.MapResolver{"./split": mod}
	controller, _, cancel := newTestPair(t, resolver)
	defer cancel()

	ctx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()

	_, err := controller.SendAwait(ctx, channel.KindImportFileProcessor, ImportFileProcessorRequest{
		ModuleUID: 1, ModuleID: "./split", Cwd: "/work",
	})
	require.NoError(t, err)

	stream, err := controller.SendStream(ctx, channel.KindProcessFile, ProcessFileRequest{
		ModuleUID: 1,
		File:      &model.File{Path: "source.txt"},
		Run:       &model.Run{Cwd: "/work", Concurrency: 1, Full: true},
	})
	require.NoError(t, err)

	var got []string
	for {
		m, ok := stream.Next(ctx)
		if !ok {
			break
		}
		got = append(got, m.Payload.(FileReply).File.Path)
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, []string{"a.txt", "b.txt"}, got, "files arrive in yield order, terminated by finished")
}

func TestExecutor_ProcessFileRejectsMissingPath(t *testing.T) {
	mod := &plugin.Module{Name: "bad", Default: model.Processor(
		func(ctx context.Context, f *model.File, r *model.Run) (<-chan model.ProcessResult, error) {
			return model.Single(&model.FileInfo{}, nil), nil
		})}
	resolver := plugin.MapResolver{"./bad": mod}
	controller, _, cancel := newTestPair(t, resolver)
	defer cancel()

	ctx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()

	_, err := controller.SendAwait(ctx, channel.KindImportFileProcessor, ImportFileProcessorRequest{
		ModuleUID: 1, ModuleID: "./bad", Cwd: "/work",
	})
	require.NoError(t, err)

	stream, err := controller.SendStream(ctx, channel.KindProcessFile, ProcessFileRequest{
		ModuleUID: 1,
		File:      &model.File{Path: "a.txt"},
		Run:       &model.Run{Cwd: "/work", Concurrency: 1, Full: true},
	})
	require.NoError(t, err)

	_, ok := stream.Next(ctx)
	assert.False(t, ok)
	require.Error(t, stream.Err())
	assert.Equal(t, poolerr.InvalidFile, poolerr.KindOf(stream.Err()))
}

func TestExecutor_ImportFileProcessorModuleNotFound(t *testing.T) {
	controller, _, cancel := newTestPair(t, plugin.MapResolver{})
	defer cancel()

	ctx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()

	_, err := controller.SendAwait(ctx, channel.KindImportFileProcessor, ImportFileProcessorRequest{
		ModuleUID: 1, ModuleID: "./missing", Cwd: "/work",
	})
	require.Error(t, err)
	assert.Equal(t, poolerr.ModuleNotFound, poolerr.KindOf(err))
	assert.True(t, strings.HasPrefix(err.Error(), "Error importing module: ./missing"),
		"scenario 8: message must start with the wrapped-import prefix, %q", err.Error())
}

func TestExecutor_PanicIsConvertedToPluginError(t *testing.T) {
	mod := &plugin.Module{Name: "panics", Default: model.Processor(
		func(ctx context.Context, f *model.File, r *model.Run) (<-chan model.ProcessResult, error) {
			panic("boom")
		})}
	resolver := plugin.MapResolver{"./panics": mod}
	controller, _, cancel := newTestPair(t, resolver)
	defer cancel()

	ctx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()

	_, err := controller.SendAwait(ctx, channel.KindImportFileProcessor, ImportFileProcessorRequest{
		ModuleUID: 1, ModuleID: "./panics", Cwd: "/work",
	})
	require.NoError(t, err)

	stream, err := controller.SendStream(ctx, channel.KindProcessFile, ProcessFileRequest{
		ModuleUID: 1,
		File:      &model.File{Path: "a.txt"},
		Run:       &model.Run{Cwd: "/work", Concurrency: 1, Full: true},
	})
	require.NoError(t, err)

	_, ok := stream.Next(ctx)
	assert.False(t, ok)
	require.Error(t, stream.Err())
	assert.Equal(t, poolerr.PluginError, poolerr.KindOf(stream.Err()))
}
