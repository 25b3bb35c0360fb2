// Package task implements the caller-side half of an Appose task: the
// future-like handle returned by Service.Task, its status state machine,
// and the listener fan-out that delivers worker progress/output events.
package task

// Status is a Task's position in its lifecycle state machine.
type Status string

const (
	Queued   Status = "QUEUED"
	Running  Status = "RUNNING"
	Complete Status = "COMPLETE"
	Canceled Status = "CANCELED"
	Failed   Status = "FAILED"
	Crashed  Status = "CRASHED"
)

// Terminal reports whether s ends a task's lifecycle; no further events are
// delivered for a task once it reaches a terminal status.
func (s Status) Terminal() bool {
	switch s {
	case Complete, Canceled, Failed, Crashed:
		return true
	default:
		return false
	}
}
