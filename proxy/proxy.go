// Package proxy implements remote handles to worker-side objects that
// cannot cross the wire by value (spec component G). A Proxy never holds
// the object itself; every method forwards to the owning worker through a
// Backend and blocks for the resulting task.
package proxy

import (
	"context"
	"fmt"

	"github.com/apposed/appose-go/syntax"
)

// Backend is the minimum a Proxy needs from its owning connection: the
// ability to run a script against the worker and get back a result.
// service.Service implements it; Proxy depends on this interface rather
// than on service directly to avoid a proxy<->service import cycle.
type Backend interface {
	// RunScript executes script against the given already-bound inputs and
	// blocks for its terminal outputs.
	RunScript(ctx context.Context, script string, inputs map[string]any) (map[string]any, error)

	// Syntax is the script-syntax renderer the backend's worker expects.
	Syntax() syntax.Syntax

	// CacheScript returns a previously rendered script for the given
	// operation/varName/extra key, calling build and memoizing its result
	// if no entry exists yet. This lets repeated Proxy operations against
	// the same remote symbol skip re-running the Syntax formatter.
	CacheScript(operation, varName string, extra []string, build func() string) string
}

// RemoteInvocationError wraps a worker-side failure that occurred while
// satisfying a Proxy operation.
type RemoteInvocationError struct {
	VarName   string
	Operation string
	Err       error
}

func (e *RemoteInvocationError) Error() string {
	return fmt.Sprintf("proxy: %s on %q: %v", e.Operation, e.VarName, e.Err)
}

func (e *RemoteInvocationError) Unwrap() error { return e.Err }

// Proxy is an opaque handle to a named worker-side variable. It is the Go
// rendering of the spec's "auto-proxy" concept: rather than a dynamic
// language's implicit remote-object wrapper, a Proxy is an explicit value
// with GetAttr/Call/Invoke/ListAttrs, since Go cannot intercept arbitrary
// attribute/method access.
type Proxy struct {
	varName string
	backend Backend
}

// New wraps varName, a worker-side variable, as a Proxy through backend.
func New(varName string, backend Backend) *Proxy {
	return &Proxy{varName: varName, backend: backend}
}

// VarName is the worker-side variable this proxy addresses.
func (p *Proxy) VarName() string { return p.varName }

// GetAttr retrieves the value of a named attribute on the remote object.
func (p *Proxy) GetAttr(ctx context.Context, name string) (any, error) {
	script := p.backend.CacheScript("getattr", p.varName, []string{name}, func() string {
		return p.backend.Syntax().GetAttribute(p.varName, name)
	})
	outputs, err := p.backend.RunScript(ctx, script, nil)
	if err != nil {
		return nil, &RemoteInvocationError{VarName: p.varName, Operation: "getattr:" + name, Err: err}
	}
	return outputs["result"], nil
}

// Call invokes a method of the remote object by name with the given
// already-wire-encodable arguments, returning its result.
func (p *Proxy) Call(ctx context.Context, method string, args ...any) (any, error) {
	argNames, inputs := bindArgs(args)
	script := p.backend.CacheScript("call", p.varName+"."+method, argNames, func() string {
		return p.backend.Syntax().InvokeMethod(p.varName, method, argNames)
	})
	outputs, err := p.backend.RunScript(ctx, script, inputs)
	if err != nil {
		return nil, &RemoteInvocationError{VarName: p.varName, Operation: "call:" + method, Err: err}
	}
	return outputs["result"], nil
}

// Invoke calls the remote object itself (as opposed to a named method of
// it) with the given arguments.
func (p *Proxy) Invoke(ctx context.Context, args ...any) (any, error) {
	argNames, inputs := bindArgs(args)
	script := p.backend.CacheScript("invoke", p.varName, argNames, func() string {
		return p.backend.Syntax().Call(p.varName, argNames)
	})
	outputs, err := p.backend.RunScript(ctx, script, inputs)
	if err != nil {
		return nil, &RemoteInvocationError{VarName: p.varName, Operation: "invoke", Err: err}
	}
	return outputs["result"], nil
}

func bindArgs(args []any) ([]string, map[string]any) {
	argNames := make([]string, len(args))
	inputs := make(map[string]any, len(args))
	for i, a := range args {
		argNames[i] = fmt.Sprintf("arg%d", i)
		inputs[argNames[i]] = a
	}
	return argNames, inputs
}

// ListAttrs enumerates the remote object's attribute names.
func (p *Proxy) ListAttrs(ctx context.Context) ([]string, error) {
	script := p.backend.CacheScript("listattrs", p.varName, nil, func() string {
		return p.backend.Syntax().GetAttributes(p.varName)
	})
	outputs, err := p.backend.RunScript(ctx, script, nil)
	if err != nil {
		return nil, &RemoteInvocationError{VarName: p.varName, Operation: "listattrs", Err: err}
	}
	raw, _ := outputs["result"].([]any)
	names := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			names = append(names, s)
		}
	}
	return names, nil
}
