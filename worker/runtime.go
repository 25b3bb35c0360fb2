package worker

import (
	"context"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"time"

	"github.com/apposed/appose-go/shm"
	"github.com/apposed/appose-go/wire"
	log "github.com/sirupsen/logrus"
)

// janitorInterval and mainLoopInterval are the ~50ms polling periods spec
// §4.8/§5 call for on the worker's janitor sweep and main-thread queue
// drain. They are unexported constants rather than configuration because
// the spec does not make them tunable.
const (
	janitorInterval  = 50 * time.Millisecond
	mainLoopInterval = 50 * time.Millisecond
)

// Logger is the minimal structured-diagnostic sink the worker runtime
// writes to for conditions the spec says must be "logged" rather than
// turned into a wire response (malformed requests, an unknown task id on
// CANCEL). Its Log takes the same arguments as service.Logger's Log but
// returns no error; it is declared here rather than importing service,
// which would invert the module's dependency direction.
type Logger interface {
	Log(level log.Level, fields log.Fields, msg string)
}

// nopLogger discards everything; used when no Logger option is given.
type nopLogger struct{}

func (nopLogger) Log(log.Level, log.Fields, string) {}

// Runtime is the in-worker scheduler (spec component H). It owns the
// request-reader loop, the per-task dispatch (threaded, or queued onto the
// worker's main thread), the janitor that reaps tasks whose goroutine died
// without a terminal response, the cross-task export registry, and the
// terminal-response writer.
//
// Grounded on the teacher's go/connector/container.go process lifecycle
// and go/bindings/trampoline.go's per-call goroutine-plus-WaitGroup
// dispatch; the main-thread queue and janitor have no teacher analog and
// are built directly from spec §4.8/§5 (see DESIGN.md).
type Runtime struct {
	out       *wire.LineWriter
	evaluator Evaluator
	exports   *exportTable
	logger    Logger

	mu        sync.Mutex
	tasks     map[string]*Task
	done      map[string]chan struct{} // closed when a task's goroutine returns
	mainQueue []*Task
	wg        sync.WaitGroup
	stdinEOF  bool
}

// Option configures a Runtime at construction time.
type Option func(*Runtime)

// WithLogger sets the Logger used for conditions that are reported to
// stderr rather than onto the wire. Defaults to discarding everything.
func WithLogger(l Logger) Option {
	return func(rt *Runtime) { rt.logger = l }
}

// New creates a Runtime that writes wire responses to out and dispatches
// EXECUTE requests to evaluator.
func New(out io.Writer, evaluator Evaluator, opts ...Option) *Runtime {
	rt := &Runtime{
		out:       wire.NewLineWriter(out),
		evaluator: evaluator,
		exports:   newExportTable(),
		logger:    nopLogger{},
		tasks:     map[string]*Task{},
		done:      map[string]chan struct{}{},
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// DecodeContext returns the wire.Context a worker process should use to
// decode incoming requests: Worker is true (so any value this side later
// re-encodes auto-exports through the same table), and Allocator is alloc,
// the worker's own shared-memory allocator (construct it with
// shm.Allocator{WorkerMode: true} so attached regions are never unlinked
// locally, per spec §4.2's worker-mode invariant).
func (rt *Runtime) DecodeContext(alloc *shm.Allocator) wire.Context {
	return wire.Context{Worker: true, Exporter: rt.exports, Allocator: alloc}
}

// Export stores v under name in the worker's cross-task export table, as
// if a script had called task.export(name=v). It lets an embedding
// application seed exports directly; init-script outputs are copied into
// the table by RunInit.
func (rt *Runtime) Export(name string, v any) {
	rt.exports.Put(name, v)
}

// RunInit runs script once, synchronously, outside the normal request loop
// and before stdin is opened — the Go rendering of spec §4.9's optional
// init script. Any output the script returns becomes part of the worker's
// initial export table, as if a task had run it and every top-level
// binding it produced had been exported (cmd/appose-worker invokes this
// with APPOSE_INIT_SCRIPT's contents, then deletes the file).
func (rt *Runtime) RunInit(ctx context.Context, script string) error {
	t := newTask("init", script, nil)
	reporter := &taskReporter{rt: rt, task: t}
	outputs, err := rt.evaluator.Evaluate(ctx, script, rt.exports.Snapshot(), reporter)
	if err != nil {
		return fmt.Errorf("worker: init script: %w", err)
	}
	for k, v := range outputs {
		rt.exports.Put(k, v)
	}
	return nil
}

// Run drives the worker runtime to completion: it starts the receiver and
// janitor, executes main-queued tasks on the calling goroutine (the
// worker's designated "main thread", per spec §5), and returns once stdin
// is exhausted and every in-flight task has reached a terminal response.
func (rt *Runtime) Run(ctx context.Context, in io.Reader, decodeCtx wire.Context) error {
	recvErr := make(chan error, 1)
	go func() { recvErr <- rt.receive(ctx, in, decodeCtx) }()

	stopJanitor := make(chan struct{})
	janitorDone := make(chan struct{})
	go func() {
		defer close(janitorDone)
		rt.janitor(ctx, stopJanitor)
	}()

	rt.mainLoop(ctx)

	err := <-recvErr
	rt.wg.Wait()
	close(stopJanitor)
	<-janitorDone
	return err
}

// receive reads one request per stdin line until EOF, a blank line, or ctx
// cancellation, dispatching each to dispatch. A malformed line is logged
// and skipped; receive never returns an error for that case, matching spec
// §4.9 ("parse error on worker input -> diagnostic to stderr; continue").
func (rt *Runtime) receive(ctx context.Context, in io.Reader, decodeCtx wire.Context) error {
	err := wire.ReadLines(in, func(line map[string]any) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		req, err := wire.DecodeRequest(decodeCtx, line)
		if err != nil {
			rt.logger.Log(log.ErrorLevel, log.Fields{"error": err}, "malformed request")
			return nil
		}
		rt.dispatch(ctx, req)
		return nil
	})
	rt.mu.Lock()
	rt.stdinEOF = true
	rt.mu.Unlock()
	return err
}

func (rt *Runtime) dispatch(ctx context.Context, req wire.Request) {
	switch req.Type {
	case wire.Execute:
		t := newTask(req.Task, req.Script, req.Inputs)
		done := make(chan struct{})

		rt.mu.Lock()
		rt.tasks[req.Task] = t
		rt.done[req.Task] = done
		if req.Queue == wire.MainQueue {
			rt.mainQueue = append(rt.mainQueue, t)
			rt.mu.Unlock()
			return
		}
		rt.mu.Unlock()

		rt.wg.Add(1)
		go func() {
			defer rt.wg.Done()
			defer close(done)
			rt.runTask(withMainThread(ctx, false), t)
		}()

	case wire.Cancel:
		rt.mu.Lock()
		t, ok := rt.tasks[req.Task]
		rt.mu.Unlock()
		if !ok {
			rt.logger.Log(log.WarnLevel, log.Fields{"task": req.Task}, "cancel for unknown task")
			return
		}
		t.requestCancel()
	}
}

// mainLoop pops and executes queue:"main" tasks on the calling goroutine,
// sleeping ~50ms between polls when the queue is empty, until stdin has
// hit EOF and the queue has drained (spec §4.8 step 5, §5).
func (rt *Runtime) mainLoop(ctx context.Context) {
	for {
		rt.mu.Lock()
		var t *Task
		if len(rt.mainQueue) > 0 {
			t = rt.mainQueue[0]
			rt.mainQueue = rt.mainQueue[1:]
		}
		eof := rt.stdinEOF && len(rt.mainQueue) == 0
		rt.mu.Unlock()

		if t != nil {
			done := rt.taskDoneChan(t.UUID)
			rt.runTask(withMainThread(ctx, true), t)
			if done != nil {
				close(done)
			}
			continue
		}
		if eof {
			return
		}
		if ctx.Err() != nil {
			return
		}
		time.Sleep(mainLoopInterval)
	}
}

func (rt *Runtime) taskDoneChan(uuid string) chan struct{} {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.done[uuid]
}

// runTask executes one task end to end: LAUNCH, the evaluator call (with a
// panic-to-FAILURE safety net), and the terminal response.
func (rt *Runtime) runTask(ctx context.Context, t *Task) {
	rt.writeResponse(wire.Response{Task: t.UUID, Type: wire.Launch})

	outputs, err := rt.safeEvaluate(ctx, t)

	rt.mu.Lock()
	delete(rt.tasks, t.UUID)
	rt.mu.Unlock()

	if err != nil {
		rt.fail(t, err)
		return
	}
	rt.complete(t, outputs)
}

// safeEvaluate calls the evaluator, converting a panic into the same
// FAILURE-shaped error an ordinary returned error would produce, so a
// script bug never takes down the whole worker process.
func (rt *Runtime) safeEvaluate(ctx context.Context, t *Task) (outputs map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	reporter := &taskReporter{rt: rt, task: t}
	scope := rt.exports.Snapshot()
	for k, v := range t.Inputs {
		scope[k] = v
	}
	evalOutputs, evalErr := rt.evaluator.Evaluate(ctx, t.Script, scope, reporter)
	if evalErr != nil {
		return nil, evalErr
	}
	t.MergeOutputs(evalOutputs)
	return t.Outputs(), nil
}

func (rt *Runtime) complete(t *Task, outputs map[string]any) {
	if !t.markFinished() {
		return
	}
	rt.writeResponse(wire.Response{Task: t.UUID, Type: wire.Completion, Outputs: outputs})
}

func (rt *Runtime) fail(t *Task, err error) {
	if !t.markFinished() {
		return
	}
	rt.writeResponse(wire.Response{Task: t.UUID, Type: wire.Failure, Error: err.Error()})
}

// writeResponse encodes and writes resp, logging (rather than returning)
// any failure: a broken stdout pipe leaves the worker no one to report to.
func (rt *Runtime) writeResponse(resp wire.Response) {
	encCtx := wire.Context{Worker: true, Exporter: rt.exports}
	line, err := wire.EncodeResponse(encCtx, resp)
	if err != nil {
		rt.logger.Log(log.ErrorLevel, log.Fields{"error": err, "task": resp.Task}, "encoding response")
		return
	}
	if err := rt.out.WriteLine(line); err != nil {
		rt.logger.Log(log.ErrorLevel, log.Fields{"error": err, "task": resp.Task}, "writing response")
	}
}

// janitor periodically reaps tasks whose goroutine has exited without
// producing a terminal response — e.g. a script that called
// runtime.Goexit() or otherwise unwound the goroutine outside the normal
// return/panic paths safeEvaluate already catches (spec §4.8 step 4).
func (rt *Runtime) janitor(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			rt.sweep() // final sweep so a race-losing thread-death is still reported
			return
		case <-ticker.C:
			rt.sweep()
		}
	}
}

func (rt *Runtime) sweep() {
	rt.mu.Lock()
	var dead []*Task
	for uuid, done := range rt.done {
		select {
		case <-done:
			if t, ok := rt.tasks[uuid]; ok {
				dead = append(dead, t)
				delete(rt.tasks, uuid)
			}
			delete(rt.done, uuid)
		default:
		}
	}
	rt.mu.Unlock()

	for _, t := range dead {
		if t.markFinished() {
			rt.writeResponse(wire.Response{Task: t.UUID, Type: wire.Failure, Error: "thread death"})
		}
	}
}

// taskReporter adapts one Task plus its owning Runtime to the Evaluator's
// Reporter contract.
type taskReporter struct {
	rt   *Runtime
	task *Task
}

func (r *taskReporter) Update(message string, current, maximum int64) {
	r.rt.writeResponse(wire.Response{Task: r.task.UUID, Type: wire.Update, Message: message, Current: current, Maximum: maximum})
}

func (r *taskReporter) CancelRequested() bool { return r.task.CancelRequested() }

func (r *taskReporter) Canceled() {
	if r.task.markFinished() {
		r.rt.writeResponse(wire.Response{Task: r.task.UUID, Type: wire.Cancelation})
	}
}

func (r *taskReporter) Export(name string, v any) { r.rt.exports.Put(name, v) }
