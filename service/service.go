// Package service implements the caller side of an Appose connection
// (spec component E): it launches a worker process, speaks the wire
// protocol over its stdio, demultiplexes asynchronous task.Task updates,
// and surfaces worker crashes as terminal task errors. It is grounded on
// the teacher's container/process-driving idiom (go/connector/run.go,
// container.go) generalized from a Docker-run connector to a plain
// subprocess, and on go/bindings/trampoline.go's per-task dispatch.
package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/apposed/appose-go/proxy"
	"github.com/apposed/appose-go/shm"
	"github.com/apposed/appose-go/syntax"
	"github.com/apposed/appose-go/task"
	"github.com/apposed/appose-go/wire"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type config struct {
	args      []string
	env       []string
	dir       string
	syntax    syntax.Syntax
	logger    Logger
	cacheSize int
}

// Option configures a Service at construction time.
type Option func(*config)

// WithArgs sets the worker executable's arguments.
func WithArgs(args ...string) Option {
	return func(c *config) { c.args = args }
}

// WithEnv appends entries (in os/exec's "KEY=VALUE" form) to the worker
// process's environment, in addition to the current process's environment.
func WithEnv(env ...string) Option {
	return func(c *config) { c.env = env }
}

// WithDir sets the worker process's working directory. Defaults to the
// current process's working directory.
func WithDir(dir string) Option {
	return func(c *config) { c.dir = dir }
}

// WithSyntax sets the script-syntax renderer used for Proxy operations.
// Defaults to "python".
func WithSyntax(s syntax.Syntax) Option {
	return func(c *config) { c.syntax = s }
}

// WithLogger sets the structured logger used for worker stderr forwarding
// and service lifecycle events. Defaults to StdLogger().
func WithLogger(l Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithScriptCacheSize bounds the number of generated Proxy bridge scripts
// retained in memory. Defaults to 256.
func WithScriptCacheSize(n int) Option {
	return func(c *config) { c.cacheSize = n }
}

// Service owns one worker subprocess and every task.Task currently in
// flight against it.
type Service struct {
	cmd       *exec.Cmd
	stdin     *wire.LineWriter
	stdinPipe io.Closer
	logger    Logger
	syn       syntax.Syntax
	alloc     *shm.Allocator
	cache     *scriptCache

	stdoutTranscript *transcript
	stderrTranscript *transcript

	mu     sync.Mutex
	tasks  map[string]*task.Task
	closed bool

	done    chan struct{}
	exitErr error
}

// Start launches executable as a worker subprocess and begins pumping its
// stdio. The returned Service decodes shared-memory values with its own
// allocator, which has WorkerMode false.
func Start(executable string, opts ...Option) (*Service, error) {
	cfg := config{
		syntax:    mustPythonSyntax(),
		logger:    StdLogger(),
		cacheSize: 256,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	cmd := exec.Command(executable, cfg.args...)
	if len(cfg.env) > 0 {
		cmd.Env = append(os.Environ(), cfg.env...)
	}
	if cfg.dir != "" {
		cmd.Dir = cfg.dir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &StartError{Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &StartError{Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &StartError{Err: fmt.Errorf("stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return nil, &StartError{Err: err}
	}

	svc := &Service{
		cmd:              cmd,
		stdin:            wire.NewLineWriter(stdin),
		stdinPipe:        stdin,
		logger:           cfg.logger,
		syn:              cfg.syntax,
		alloc:            &shm.Allocator{WorkerMode: false},
		cache:            newScriptCache(cfg.cacheSize),
		stdoutTranscript: newTranscript(),
		stderrTranscript: newTranscript(),
		tasks:            map[string]*task.Task{},
		done:             make(chan struct{}),
	}

	go svc.pumpStdout(stdout)
	go svc.pumpStderr(stderr)
	go svc.awaitExit()

	return svc, nil
}

func mustPythonSyntax() syntax.Syntax {
	s, err := syntax.Lookup("python")
	if err != nil {
		panic(err)
	}
	return s
}

// Syntax implements proxy.Backend.
func (s *Service) Syntax() syntax.Syntax { return s.syn }

// CacheScript implements proxy.Backend.
func (s *Service) CacheScript(operation, varName string, extra []string, build func() string) string {
	return s.cache.getOrAdd(operation, varName, extra, build)
}

// Task looks up a previously started task by UUID.
func (s *Service) Task(uuid string) (*task.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[uuid]
	return t, ok
}

// StartTask queues script for execution against the worker, with inputs bound
// as its initial variables, and returns a handle to the resulting task.
// Pass wire.MainQueue as queue to force execution on the worker's main
// thread (e.g. for GUI toolkits that require it); an empty queue lets the
// worker schedule the task on its own.
func (s *Service) StartTask(script string, inputs map[string]any, queue string) (*task.Task, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, &ClosedError{Reason: "Start called after Close"}
	}
	s.mu.Unlock()

	id := uuid.NewString()
	t := task.New(id, s)

	encCtx := wire.Context{Allocator: s.alloc}
	req := wire.Request{Task: id, Type: wire.Execute, Script: script, Inputs: inputs, Queue: queue}
	line, err := wire.EncodeRequest(encCtx, req)
	if err != nil {
		return nil, fmt.Errorf("service: encoding request: %w", err)
	}

	s.mu.Lock()
	s.tasks[id] = t
	s.mu.Unlock()

	if err := s.stdin.WriteLine(line); err != nil {
		s.mu.Lock()
		delete(s.tasks, id)
		s.mu.Unlock()
		return nil, fmt.Errorf("service: sending request: %w", err)
	}
	return t, nil
}

// SendCancel implements task.Sender.
func (s *Service) SendCancel(taskID string) error {
	line, err := wire.EncodeRequest(wire.Context{}, wire.Request{Task: taskID, Type: wire.Cancel})
	if err != nil {
		return fmt.Errorf("service: encoding cancel: %w", err)
	}
	return s.stdin.WriteLine(line)
}

// RunScript implements proxy.Backend: it starts script as a task and blocks
// for its terminal outputs.
func (s *Service) RunScript(ctx context.Context, script string, inputs map[string]any) (map[string]any, error) {
	t, err := s.StartTask(script, inputs, "")
	if err != nil {
		return nil, err
	}
	return t.Result(ctx)
}

// GetVar retrieves the current value of a worker-side variable by name,
// rendering and running a small script through the service's configured
// Syntax (spec §4.5's "get_var").
func (s *Service) GetVar(ctx context.Context, varName string) (any, error) {
	script := s.syn.GetVar(varName)
	outputs, err := s.RunScript(ctx, script, nil)
	if err != nil {
		return nil, fmt.Errorf("service: get_var %q: %w", varName, err)
	}
	return outputs["result"], nil
}

// PutVar binds value to a worker-side variable named varName, rendering and
// running a small script through the service's configured Syntax (spec
// §4.5's "put_var").
func (s *Service) PutVar(ctx context.Context, varName string, value any) error {
	const inputName = "appose_put_var_value"
	script := s.syn.PutVar(varName, s.syn.GetVar(inputName))
	_, err := s.RunScript(ctx, script, map[string]any{inputName: value})
	if err != nil {
		return fmt.Errorf("service: put_var %q: %w", varName, err)
	}
	return nil
}

// Call invokes a top-level worker-side function by name with the given
// already-wire-encodable arguments and returns its result (spec §4.5's
// "call"). Unlike proxy.Proxy.Call, funcName need not already be bound to a
// worker-side variable.
func (s *Service) Call(ctx context.Context, funcName string, args ...any) (any, error) {
	argNames := make([]string, len(args))
	inputs := make(map[string]any, len(args))
	for i, a := range args {
		argNames[i] = fmt.Sprintf("arg%d", i)
		inputs[argNames[i]] = a
	}
	script := s.syn.Call(funcName, argNames)
	outputs, err := s.RunScript(ctx, script, inputs)
	if err != nil {
		return nil, fmt.Errorf("service: call %q: %w", funcName, err)
	}
	return outputs["result"], nil
}

// Proxy wraps an already-bound worker-side variable as a *proxy.Proxy,
// without waiting for a worker_object sentinel to arrive from a
// completion (spec §4.5's "proxy(var_name)").
func (s *Service) Proxy(varName string) *proxy.Proxy {
	return proxy.New(varName, s)
}

// Close signals the worker to exit by closing its stdin, then waits for the
// process to exit.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	_ = s.stdinPipe.Close()
	<-s.done
	return s.exitErr
}

// Wait blocks until the worker process has exited, returning its exit
// error (if any).
func (s *Service) Wait() error {
	<-s.done
	return s.exitErr
}

func (s *Service) pumpStdout(r io.Reader) {
	decodeCtx := wire.Context{Allocator: s.alloc}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		s.stdoutTranscript.add(scanner.Text())
		resp, err := decodeResponseLine(decodeCtx, scanner.Bytes())
		if err != nil {
			s.logger.Log(log.ErrorLevel, log.Fields{"error": err, "line": scanner.Text()}, "malformed worker response")
			continue
		}
		s.dispatch(resp)
	}
}

func (s *Service) dispatch(resp wire.Response) {
	s.mu.Lock()
	t, ok := s.tasks[resp.Task]
	if ok && resp.Type.IsTerminal() {
		delete(s.tasks, resp.Task)
	}
	s.mu.Unlock()

	if !ok {
		s.logger.Log(log.WarnLevel, log.Fields{"task": resp.Task}, "response for unknown task")
		return
	}
	if resp.Type == wire.Completion && resp.Outputs != nil {
		resp.Outputs = s.proxifyWorkerObjects(resp.Outputs)
	}
	t.HandleResponse(resp)
}

// proxifyWorkerObjects walks a decoded COMPLETION's outputs tree, replacing
// every wire.WorkerObjectRef sentinel with a *proxy.Proxy bound to this
// service, so a caller's task.Result() can transparently receive a usable
// remote handle (spec component G's "auto-proxy").
func (s *Service) proxifyWorkerObjects(v any) any {
	switch val := v.(type) {
	case wire.WorkerObjectRef:
		return proxy.New(val.VarName, s)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = s.proxifyWorkerObjects(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = s.proxifyWorkerObjects(elem)
		}
		return out
	default:
		return v
	}
}

func (s *Service) pumpStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	s.stderrTranscript.pumpReader(scanner, func(line string) {
		s.logger.Log(log.InfoLevel, log.Fields{"source": "worker-stderr"}, line)
	})
}

func (s *Service) awaitExit() {
	err := s.cmd.Wait()

	s.mu.Lock()
	s.closed = true
	remaining := s.tasks
	s.tasks = map[string]*task.Task{}
	s.exitErr = err
	s.mu.Unlock()

	crashMessage := formatCrashMessage(err, s.stdoutTranscript.String(), s.stderrTranscript.String())
	for _, t := range remaining {
		t.HandleResponse(wire.Response{Task: t.UUID(), Type: wire.Crash, Message: crashMessage})
	}
	close(s.done)
}

// formatCrashMessage builds the synthesized CRASH response's Message from
// the worker's exit status and both of its captured stdio transcripts, so a
// caller's task.error sees the exit code alongside whatever the worker
// printed before it died.
func formatCrashMessage(exitErr error, stdout, stderr string) string {
	exitCode := -1
	if exitErr != nil {
		var ee *exec.ExitError
		if errors.As(exitErr, &ee) {
			exitCode = ee.ExitCode()
		}
	} else {
		exitCode = 0
	}
	return fmt.Sprintf("worker process exited with code %d\n--- stdout ---\n%s\n--- stderr ---\n%s", exitCode, stdout, stderr)
}

func (s *Service) taskCountsByStatus() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[string]int{}
	for _, t := range s.tasks {
		counts[string(t.Status())]++
	}
	return counts
}
