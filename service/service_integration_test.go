//go:build integration

// These tests launch a real worker subprocess by re-executing the test
// binary itself (the standard library's own os/exec tests use the same
// technique), rather than mocking stdio. Run with:
//
//	go test -tags integration ./service/...
package service

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/apposed/appose-go/wire"
	"github.com/stretchr/testify/require"
)

const (
	reexecEnv    = "APPOSE_TEST_FAKE_WORKER"
	reexecVarEnv = "APPOSE_TEST_VAR_WORKER"
)

func TestMain(m *testing.M) {
	if os.Getenv(reexecEnv) == "1" {
		runFakeWorker()
		return
	}
	if os.Getenv(reexecVarEnv) == "1" {
		runVarWorker()
		return
	}
	os.Exit(m.Run())
}

// runFakeWorker is a minimal, fully conformant worker: it echoes each
// EXECUTE request's inputs back as its outputs, and answers every CANCEL
// with a CANCELATION.
func runFakeWorker() {
	ctx := wire.Context{}
	out := wire.NewLineWriter(os.Stdout)
	_ = wire.ReadLines(os.Stdin, func(line map[string]any) error {
		req, err := wire.DecodeRequest(ctx, line)
		if err != nil {
			return err
		}
		switch req.Type {
		case wire.Execute:
			launch, _ := wire.EncodeResponse(ctx, wire.Response{Task: req.Task, Type: wire.Launch})
			_ = out.WriteLine(launch)
			completion, _ := wire.EncodeResponse(ctx, wire.Response{
				Task: req.Task, Type: wire.Completion, Outputs: req.Inputs,
			})
			return out.WriteLine(completion)
		case wire.Cancel:
			cancel, _ := wire.EncodeResponse(ctx, wire.Response{Task: req.Task, Type: wire.Cancelation})
			return out.WriteLine(cancel)
		}
		return nil
	})
	os.Exit(0)
}

func startFakeWorkerService(t *testing.T) *Service {
	t.Helper()
	self, err := os.Executable()
	require.NoError(t, err)

	svc, err := Start(self,
		WithArgs("-test.run=^$"),
		WithEnv(reexecEnv+"=1"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestServiceExecutesScriptAgainstRealSubprocess(t *testing.T) {
	svc := startFakeWorkerService(t)

	tk, err := svc.StartTask("unused", map[string]any{"x": int64(41)}, "")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	out, err := tk.Result(ctx)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"x": int64(41)}, out)
}

// runVarWorker is a second fake worker, conformant enough to exercise
// GetVar/PutVar/Call: it maintains a variable store across tasks and
// interprets the handful of "lhs = rhs" script shapes the python syntax
// renderer produces for those three operations.
func runVarWorker() {
	ctx := wire.Context{}
	out := wire.NewLineWriter(os.Stdout)
	vars := map[string]any{}
	_ = wire.ReadLines(os.Stdin, func(line map[string]any) error {
		req, err := wire.DecodeRequest(ctx, line)
		if err != nil {
			return err
		}
		if req.Type != wire.Execute {
			return nil
		}
		for k, v := range req.Inputs {
			vars[k] = v
		}
		launch, _ := wire.EncodeResponse(ctx, wire.Response{Task: req.Task, Type: wire.Launch})
		_ = out.WriteLine(launch)

		outputs := evalAssignment(req.Script, vars)
		completion, _ := wire.EncodeResponse(ctx, wire.Response{Task: req.Task, Type: wire.Completion, Outputs: outputs})
		return out.WriteLine(completion)
	})
	os.Exit(0)
}

// evalAssignment interprets the handful of script shapes the python syntax
// renderer produces for get_var/put_var/call: a bare variable name or a
// "funcName(arg0, arg1)" call (get_var/call, whose value is captured as
// outputs["result"], mirroring a script's final expression being stored
// there), or a "lhs = rhs" first line possibly followed by a
// "task.export(...)" line (put_var, which produces no output but updates
// vars so a later get_var sees it).
func evalAssignment(script string, vars map[string]any) map[string]any {
	firstLine := strings.SplitN(script, "\n", 2)[0]

	if parts := strings.SplitN(firstLine, " = ", 2); len(parts) == 2 {
		lhs, rhs := parts[0], parts[1]
		vars[lhs] = evalExpr(rhs, vars)
		return nil
	}

	return map[string]any{"result": evalExpr(firstLine, vars)}
}

// evalExpr resolves expr as either a bare variable lookup or a
// "funcName(arg0, arg1)" call against a tiny builtin table.
func evalExpr(expr string, vars map[string]any) any {
	if open := strings.Index(expr, "("); open >= 0 && strings.HasSuffix(expr, ")") {
		funcName := expr[:open]
		argList := expr[open+1 : len(expr)-1]
		var args []any
		if argList != "" {
			for _, a := range strings.Split(argList, ", ") {
				args = append(args, vars[a])
			}
		}
		return callBuiltin(funcName, args)
	}
	return vars[expr]
}

func callBuiltin(name string, args []any) any {
	switch name {
	case "double":
		return 2 * args[0].(int64)
	default:
		return nil
	}
}

func startVarWorkerService(t *testing.T) *Service {
	t.Helper()
	self, err := os.Executable()
	require.NoError(t, err)

	svc, err := Start(self,
		WithArgs("-test.run=^$"),
		WithEnv(reexecVarEnv+"=1"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func TestServiceGetVarPutVarAndCall(t *testing.T) {
	svc := startVarWorkerService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, svc.PutVar(ctx, "age", int64(21)))

	got, err := svc.GetVar(ctx, "age")
	require.NoError(t, err)
	require.Equal(t, int64(21), got)

	doubled, err := svc.Call(ctx, "double", int64(21))
	require.NoError(t, err)
	require.Equal(t, int64(42), doubled)
}

func TestServiceCrashSynthesizesCrashForInFlightTasks(t *testing.T) {
	svc := startFakeWorkerService(t)

	// Start a task, then force an immediate process kill so the worker
	// exits while the task is still registered.
	tk, err := svc.StartTask("unused", nil, "")
	require.NoError(t, err)

	require.NoError(t, svc.cmd.Process.Kill())
	_ = svc.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = tk.Result(ctx)
	require.Error(t, err)
}
