package task

import (
	"context"
	"testing"
	"time"

	"github.com/apposed/appose-go/wire"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	canceled []string
}

func (f *fakeSender) SendCancel(taskID string) error {
	f.canceled = append(f.canceled, taskID)
	return nil
}

func TestTaskCompletesAndDeliversOutputs(t *testing.T) {
	tk := New("t1", &fakeSender{})
	require.Equal(t, Queued, tk.Status())

	var events []Event
	tk.Listen(ListenerFunc(func(e Event) { events = append(events, e) }))

	tk.HandleResponse(wire.Response{Task: "t1", Type: wire.Launch})
	require.Equal(t, Running, tk.Status())

	tk.HandleResponse(wire.Response{Task: "t1", Type: wire.Completion, Outputs: map[string]any{"x": int64(1)}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	out, err := tk.Result(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"x": int64(1)}, out)
	require.Len(t, events, 2)
}

func TestTaskFailurePropagatesAsError(t *testing.T) {
	tk := New("t2", &fakeSender{})
	tk.HandleResponse(wire.Response{Task: "t2", Type: wire.Failure, Error: "boom"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := tk.Result(ctx)
	require.Error(t, err)
	var failed *FailedError
	require.ErrorAs(t, err, &failed)
	require.Equal(t, "boom", failed.Message)
}

func TestCancelOnTerminalTaskReturnsInvalidState(t *testing.T) {
	tk := New("t3", &fakeSender{})
	tk.HandleResponse(wire.Response{Task: "t3", Type: wire.Completion})

	err := tk.Cancel()
	require.Error(t, err)
	var invalid *ErrInvalidState
	require.ErrorAs(t, err, &invalid)
}

func TestCancelSendsOnSender(t *testing.T) {
	sender := &fakeSender{}
	tk := New("t4", sender)
	require.NoError(t, tk.Cancel())
	require.Equal(t, []string{"t4"}, sender.canceled)
}

func TestListenAfterTerminalDeliversImmediately(t *testing.T) {
	tk := New("t5", &fakeSender{})
	tk.HandleResponse(wire.Response{Task: "t5", Type: wire.Completion})

	var got Event
	tk.Listen(ListenerFunc(func(e Event) { got = e }))
	require.Equal(t, Complete, got.Status)
}
