package wire

// RequestType identifies the kind of Request sent from a caller to a worker.
type RequestType string

const (
	// Execute asks the worker to run a script, optionally on its main thread.
	Execute RequestType = "EXECUTE"
	// Cancel asks the worker to cooperatively cancel a running or queued task.
	Cancel RequestType = "CANCEL"
)

// MainQueue is the only recognized value of Request.Queue.
const MainQueue = "main"

// Request is a single line of the caller-to-worker wire protocol.
//
// EXECUTE requests carry Script, Inputs, and optionally Queue. CANCEL
// requests carry no payload beyond Task.
type Request struct {
	Task   string
	Type   RequestType
	Script string
	Inputs map[string]any
	Queue  string
}
