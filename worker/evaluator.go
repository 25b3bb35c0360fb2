// Package worker implements the worker side of an Appose connection (spec
// component H): the request-reading loop, per-task scheduling (including
// the main-thread queue), cooperative cancellation, auto-export of
// non-serializable return values, and the terminal-response writer.
//
// It is grounded on the teacher's per-task goroutine dispatch with a
// shared sync.WaitGroup (go/bindings/trampoline.go) and its container
// lifecycle management (go/connector/container.go); the main-thread queue
// and thread-death janitor have no direct teacher analog and are built
// from the spec's own description of component H.
package worker

import "context"

// Reporter is the handle a running script gets back to its own task and to
// the worker's cross-task export registry — the Go rendering of spec
// §4.8's "task" binding exposed to every script (outputs, cancel_requested,
// update, cancel, export).
type Reporter interface {
	// Update emits a wire.Update response carrying progress information.
	Update(message string, current, maximum int64)

	// CancelRequested reports whether the caller has sent a CANCEL request
	// for this task. A long-running script is expected to poll this at
	// safe points and, on seeing true, wind down and call Canceled.
	CancelRequested() bool

	// Canceled emits the task's terminal CANCELATION response. A script
	// that observes CancelRequested and wants to honor it calls this
	// instead of returning normally.
	Canceled()

	// Export stores v under name in the worker's cross-task export table,
	// so a later task (via Registry's exports, or a put_var/get_var pair)
	// can see it under that same name.
	Export(name string, v any)
}

// Evaluator executes a script against the given inputs, reporting progress
// through report, and returns the script's outputs.
//
// The spec leaves concrete worker embeddings (Python, Groovy interpreters)
// out of scope; Go has no bundled script-language runtime to ground a
// literal-text interpreter against in the example pack, so Evaluator is
// pluggable. The reference implementation in this package (see Registry)
// resolves the "script" string as a lookup key into a registry of named Go
// functions instead of parsing it as source text, which still exercises
// every part of the worker runtime: request reading, per-task dispatch,
// main-queue scheduling, cancellation, and auto-export.
type Evaluator interface {
	Evaluate(ctx context.Context, script string, inputs map[string]any, report Reporter) (map[string]any, error)
}

// Func adapts a plain function to an Evaluator's registered-script handler.
type Func func(ctx context.Context, inputs map[string]any, report Reporter) (map[string]any, error)
