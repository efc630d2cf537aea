package channel

import (
	"context"
	"testing"
	"time"

	"github.com/kilnforge/filepool/pkg/poolerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLink(t *testing.T) (*Channel, *Channel) {
	t.Helper()
	link := NewLink(8)
	controller := link.ControllerSide(nil)
	executor := link.ExecutorSide(nil)
	return controller, executor
}

func TestSendAwait_RoundTrip(t *testing.T) {
	controller, executor := newTestLink(t)

	go func() {
		req := <-executor.Requests()
		require.NoError(t, executor.Reply(req.ID, KindFinished, nil))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reply, err := controller.SendAwait(ctx, KindImportModule, "payload")
	require.NoError(t, err)
	assert.Equal(t, KindFinished, reply.Kind)
}

func TestSendAwait_ErrorReplyBecomesError(t *testing.T) {
	controller, executor := newTestLink(t)

	go func() {
		req := <-executor.Requests()
		wireErr := poolerr.New(poolerr.PluginError, "boom")
		require.NoError(t, executor.Reply(req.ID, KindError, wireErr))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := controller.SendAwait(ctx, KindProcessFile, nil)
	require.Error(t, err)
	assert.Equal(t, poolerr.PluginError, poolerr.KindOf(err))
}

func TestSendAwait_ContextCancelUnregistersPending(t *testing.T) {
	controller, _ := newTestLink(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := controller.SendAwait(ctx, KindProcessFile, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSendStream_YieldsUntilFinished(t *testing.T) {
	controller, executor := newTestLink(t)

	go func() {
		req := <-executor.Requests()
		require.NoError(t, executor.Reply(req.ID, KindFile, "a"))
		require.NoError(t, executor.Reply(req.ID, KindFile, "b"))
		require.NoError(t, executor.Reply(req.ID, KindFinished, nil))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	stream, err := controller.SendStream(ctx, KindProcessFile, nil)
	require.NoError(t, err)

	var got []any
	for {
		msg, ok := stream.Next(ctx)
		if !ok {
			break
		}
		got = append(got, msg.Payload)
	}
	require.NoError(t, stream.Err())
	assert.Equal(t, []any{"a", "b"}, got)
}

func TestSendStream_ErrorReplyEndsStreamWithErr(t *testing.T) {
	controller, executor := newTestLink(t)

	go func() {
		req := <-executor.Requests()
		require.NoError(t, executor.Reply(req.ID, KindError, poolerr.New(poolerr.InvalidFile, "bad")))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	stream, err := controller.SendStream(ctx, KindProcessFile, nil)
	require.NoError(t, err)

	_, ok := stream.Next(ctx)
	assert.False(t, ok)
	require.Error(t, stream.Err())
	assert.Equal(t, poolerr.InvalidFile, poolerr.KindOf(stream.Err()))
}

func TestTerminate_RejectsAllPending(t *testing.T) {
	controller, _ := newTestLink(t)

	ctx := context.Background()
	done := make(chan error, 1)
	go func() {
		_, err := controller.SendAwait(ctx, KindProcessFile, nil)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond) // let SendAwait register before terminating
	controller.Terminate(poolerr.New(poolerr.Terminating, "shutting down"))

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Equal(t, poolerr.Terminating, poolerr.KindOf(err))
	case <-time.After(time.Second):
		t.Fatal("SendAwait did not return after Terminate")
	}
}

func TestTerminate_IsIdempotent(t *testing.T) {
	controller, _ := newTestLink(t)
	err := poolerr.New(poolerr.Terminating, "bye")
	controller.Terminate(err)
	assert.NotPanics(t, func() { controller.Terminate(err) })
}

func TestPost_AfterTerminateFails(t *testing.T) {
	controller, _ := newTestLink(t)
	controller.Terminate(poolerr.New(poolerr.Terminating, "bye"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := controller.SendAwait(ctx, KindProcessFile, nil)
	require.Error(t, err)
	assert.Equal(t, poolerr.Terminating, poolerr.KindOf(err))
}

func TestReplyToUnknownID_ReportsProtocolError(t *testing.T) {
	var reported error
	link := NewLink(8)
	controller := link.ControllerSide(func(err error) { reported = err })
	_ = controller
	executor := link.ExecutorSide(nil)

	require.NoError(t, executor.Reply(9999, KindFinished, nil))
	assert.Eventually(t, func() bool { return reported != nil }, time.Second, 10*time.Millisecond)
	assert.Equal(t, poolerr.ProtocolError, poolerr.KindOf(reported))
}
