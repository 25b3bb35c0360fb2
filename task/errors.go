package task

import "fmt"

// ErrInvalidState is returned by operations that require the task to be in
// a particular status (e.g. Cancel on an already-terminal task).
type ErrInvalidState struct {
	Task    string
	Current Status
	Want    string
}

func (e *ErrInvalidState) Error() string {
	return fmt.Sprintf("task %s: invalid state %s, expected %s", e.Task, e.Current, e.Want)
}

// FailedError wraps a worker-reported FAILURE response: the script raised
// an error on the worker side, as opposed to the worker process dying.
type FailedError struct {
	Task    string
	Message string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("task %s failed: %s", e.Task, e.Message)
}

// CrashedError is synthesized locally when the worker process exits (or is
// killed) while the task is still unresolved.
type CrashedError struct {
	Task       string
	Transcript string
}

func (e *CrashedError) Error() string {
	if e.Transcript == "" {
		return fmt.Sprintf("task %s: worker process terminated unexpectedly", e.Task)
	}
	return fmt.Sprintf("task %s: worker process terminated unexpectedly:\n%s", e.Task, e.Transcript)
}

// CanceledError is returned by Result when a task was canceled before or
// while the caller waited on it.
type CanceledError struct {
	Task string
}

func (e *CanceledError) Error() string {
	return fmt.Sprintf("task %s was canceled", e.Task)
}
