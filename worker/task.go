package worker

import "sync"

// Task is the worker-side representation of one EXECUTE request in
// progress: its script key, bound inputs, the outputs map a running script
// writes to (directly or via SetOutput), and the cooperative-cancellation
// flag a script is expected to poll at safe points.
//
// This mirrors the caller-side task.Task (spec component D) but lives
// entirely on the worker side of the wire and is never shared across the
// process boundary; only its uuid and the Responses built from it cross.
type Task struct {
	UUID   string
	Script string
	Inputs map[string]any

	mu       sync.Mutex
	outputs  map[string]any
	canceled bool
	finished bool
}

func newTask(uuid, script string, inputs map[string]any) *Task {
	return &Task{
		UUID:    uuid,
		Script:  script,
		Inputs:  inputs,
		outputs: map[string]any{},
	}
}

// SetOutput stores v under name in the task's outputs, overwriting any
// previous value. This is the worker-side analog of script code writing
// task.outputs[name] = v.
func (t *Task) SetOutput(name string, v any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.outputs[name] = v
}

// MergeOutputs copies every entry of m into the task's outputs.
func (t *Task) MergeOutputs(m map[string]any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range m {
		t.outputs[k] = v
	}
}

// Outputs returns a snapshot copy of the task's accumulated outputs.
func (t *Task) Outputs() map[string]any {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]any, len(t.outputs))
	for k, v := range t.outputs {
		out[k] = v
	}
	return out
}

// requestCancel flips the cooperative-cancellation flag. The running
// script (via its Reporter handle) observes it through CancelRequested and
// decides for itself when it is safe to stop.
func (t *Task) requestCancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.canceled = true
}

// CancelRequested reports whether a CANCEL request has arrived for this
// task. Evaluators should poll it at safe points in long-running scripts.
func (t *Task) CancelRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canceled
}

// markFinished claims the task's single terminal-response slot. It returns
// true the first time it is called and false on every subsequent call, so
// a codec failure while encoding one terminal response cannot recursively
// trigger a second one (spec §4.8's "terminal-response deduplication").
func (t *Task) markFinished() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return false
	}
	t.finished = true
	return true
}
