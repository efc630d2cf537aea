package worker

import (
	"context"
	"testing"
	"time"

	"github.com/kilnforge/filepool/pkg/model"
	"github.com/kilnforge/filepool/pkg/plugin"
	"github.com/kilnforge/filepool/pkg/poolerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uppercaseModule() *plugin.Module {
	return &plugin.Module{Name: "uppercase", Default: model.Processor(
		func(ctx context.Context, f *model.File, r *model.Run) (<-chan model.ProcessResult, error) {
			return model.Single(&model.FileInfo{Path: f.Path}, nil), nil
		})}
}

func TestHandle_ImportAndProcess(t *testing.T) {
	resolver := plugin.MapResolver{"./uppercase": uppercaseModule()}
	var workerErrs []error
	h := New("w0", resolver, func(err error) { workerErrs = append(workerErrs, err) })
	defer h.Terminate()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	name, err := h.ImportFileProcessor(ctx, 1, "./uppercase", "/work", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "uppercase", name)

	var logs []string
	run := &model.Run{Cwd: "/work", Concurrency: 1, Full: true, Log: recordingLogger(&logs)}
	stream, err := h.ProcessFile(ctx, 1, &model.File{Path: "a.txt"}, run)
	require.NoError(t, err)

	fi, ok := stream.Next(ctx)
	require.True(t, ok)
	assert.Equal(t, "a.txt", fi.Path)

	_, ok = stream.Next(ctx)
	assert.False(t, ok)
	assert.NoError(t, stream.Err())
	assert.Empty(t, workerErrs)
}

func blockingModule() *plugin.Module {
	return &plugin.Module{Name: "blocking", Default: model.Processor(
		func(ctx context.Context, f *model.File, r *model.Run) (<-chan model.ProcessResult, error) {
			// never closes: stands in for a processor still running when the
			// worker goes away, so the processFile request stays pending.
			return make(chan model.ProcessResult), nil
		})}
}

func TestHandle_UnrequestedExitReportsUnexpectedExitAndRejectsPending(t *testing.T) {
	resolver := plugin.MapResolver{"./blocking": blockingModule()}
	var reported error
	h := New("w0", resolver, func(err error) { reported = err })
	defer h.Terminate()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := h.ImportFileProcessor(ctx, 1, "./blocking", "/work", nil, false)
	require.NoError(t, err)

	stream, err := h.ProcessFile(ctx, 1, &model.File{Path: "a.txt"}, &model.Run{Cwd: "/work", Concurrency: 1, Full: true})
	require.NoError(t, err)

	// Simulate the executor goroutine going away on its own (a panic outside
	// a single request, an os.Exit-equivalent) rather than through
	// Terminate: handleExit is exactly what h.run's deferred cleanup calls
	// once ex.Run returns unrequested.
	h.handleExit()

	require.Error(t, reported)
	assert.Equal(t, poolerr.UnexpectedExit, poolerr.KindOf(reported))

	_, ok := stream.Next(ctx)
	assert.False(t, ok)
	require.Error(t, stream.Err())
	assert.Equal(t, poolerr.UnexpectedExit, poolerr.KindOf(stream.Err()))
}

func TestHandle_TerminateIsIdempotent(t *testing.T) {
	h := New("w0", plugin.MapResolver{}, nil)
	assert.Equal(t, 0, h.Terminate())
	assert.Equal(t, 0, h.Terminate())
}

func TestHandle_ProcessFileAfterTerminateFails(t *testing.T) {
	resolver := plugin.MapResolver{"./uppercase": uppercaseModule()}
	h := New("w0", resolver, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := h.ImportFileProcessor(ctx, 1, "./uppercase", "/work", nil, false)
	require.NoError(t, err)

	h.Terminate()

	_, err = h.ProcessFile(ctx, 1, &model.File{Path: "a.txt"}, &model.Run{Cwd: "/work", Concurrency: 1, Full: true})
	require.Error(t, err)
	assert.Equal(t, poolerr.Terminating, poolerr.KindOf(err))
}

type recordingLoggerT struct{ logs *[]string }

func recordingLogger(logs *[]string) model.Logger { return recordingLoggerT{logs: logs} }

func (l recordingLoggerT) Log(message any, data map[string]any)   { l.append(message) }
func (l recordingLoggerT) Info(message any, data map[string]any)  { l.append(message) }
func (l recordingLoggerT) Warn(message any, data map[string]any)  { l.append(message) }
func (l recordingLoggerT) Error(message any, data map[string]any) { l.append(message) }
func (l recordingLoggerT) Debug(message any, data map[string]any) { l.append(message) }

func (l recordingLoggerT) append(message any) {
	if s, ok := message.(string); ok {
		*l.logs = append(*l.logs, s)
	}
}
