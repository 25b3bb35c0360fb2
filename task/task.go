package task

import (
	"context"
	"sync"

	"github.com/apposed/appose-go/wire"
)

// Sender is the minimum a Task needs from its owning connection to request
// cancellation. service.Service implements it; defining it here rather than
// importing service avoids a service<->task import cycle.
type Sender interface {
	SendCancel(taskID string) error
}

// Task is the caller-side handle to an asynchronous worker computation. It
// is created by a service.Service and updated as wire.Response lines arrive
// on the worker's stdout pump; callers observe it via Listen, or block for
// completion via Wait/Result.
type Task struct {
	uuid   string
	sender Sender

	mu        sync.Mutex
	status    Status
	outputs   map[string]any
	info      map[string]any
	err       error
	listeners []Listener
	done      chan struct{}
}

// New creates a Task in the Queued state. Callers outside this module's
// service package should not normally construct a Task directly; use
// service.Service.StartTask.
func New(uuid string, sender Sender) *Task {
	return &Task{
		uuid:   uuid,
		sender: sender,
		status: Queued,
		done:   make(chan struct{}),
	}
}

// UUID is the task's stable identifier, shared with the worker side.
func (t *Task) UUID() string { return t.uuid }

// Status is the task's current lifecycle position.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Listen registers l to receive every subsequent Event for this task. If
// the task has already reached a terminal status, l is invoked immediately
// with that terminal event and not registered further.
func (t *Task) Listen(l Listener) {
	t.mu.Lock()
	if t.status.Terminal() {
		e := t.eventLocked()
		t.mu.Unlock()
		l.TaskEvent(e)
		return
	}
	t.listeners = append(t.listeners, l)
	t.mu.Unlock()
}

// Cancel requests cooperative cancellation of the task. It is a no-op error
// if the task has already reached a terminal status.
func (t *Task) Cancel() error {
	t.mu.Lock()
	if t.status.Terminal() {
		current := t.status
		t.mu.Unlock()
		return &ErrInvalidState{Task: t.uuid, Current: current, Want: "non-terminal"}
	}
	t.mu.Unlock()
	return t.sender.SendCancel(t.uuid)
}

// Wait blocks until the task reaches a terminal status or ctx is canceled.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Result blocks for completion and returns the task's outputs, or the
// terminal error (FailedError, CrashedError, or CanceledError) if the task
// did not complete successfully.
func (t *Task) Result(ctx context.Context) (map[string]any, error) {
	if err := t.Wait(ctx); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return nil, t.err
	}
	return t.outputs, nil
}

// HandleResponse applies a decoded wire.Response to the task's state
// machine, notifying listeners and, on a terminal response, closing the
// Wait channel. It is called exclusively by service.Service's response
// pump, one response at a time per task.
func (t *Task) HandleResponse(resp wire.Response) {
	t.mu.Lock()

	switch resp.Type {
	case wire.Launch:
		t.status = Running
	case wire.Update:
		// status unchanged; Update just carries progress/info.
	case wire.Completion:
		t.status = Complete
		t.outputs = resp.Outputs
	case wire.Cancelation:
		t.status = Canceled
		t.err = &CanceledError{Task: t.uuid}
	case wire.Failure:
		t.status = Failed
		t.err = &FailedError{Task: t.uuid, Message: resp.Error}
	case wire.Crash:
		t.status = Crashed
		t.err = &CrashedError{Task: t.uuid, Transcript: resp.Message}
	}
	t.info = resp.Info

	e := t.eventLocked()
	e.Message = resp.Message
	e.Current = resp.Current
	e.Maximum = resp.Maximum

	terminal := t.status.Terminal()
	listeners := append([]Listener(nil), t.listeners...)
	t.mu.Unlock()

	for _, l := range listeners {
		l.TaskEvent(e)
	}
	if terminal {
		close(t.done)
	}
}

func (t *Task) eventLocked() Event {
	return Event{
		Task:   t,
		Status: t.status,
		Info:   t.info,
	}
}
