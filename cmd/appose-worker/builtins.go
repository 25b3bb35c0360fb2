package main

import (
	"context"
	"fmt"
	"math"

	"github.com/apposed/appose-go/worker"
)

// registerBuiltins wires up the small set of named scripts this reference
// worker ships with, exercising ordinary completion, progress updates and
// cooperative cancellation without requiring an embedded language
// interpreter. None of them exports values across tasks.
func registerBuiltins(r *worker.Registry) {
	r.Register("add", add)
	r.Register("sqrt", sqrt)
	r.Register("collatz", collatz)
	r.Register("identity", identity)
}

func add(_ context.Context, inputs map[string]any, _ worker.Reporter) (map[string]any, error) {
	a, err := asFloat(inputs, "a")
	if err != nil {
		return nil, err
	}
	b, err := asFloat(inputs, "b")
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": a + b}, nil
}

func sqrt(_ context.Context, inputs map[string]any, _ worker.Reporter) (map[string]any, error) {
	x, err := asFloat(inputs, "x")
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": math.Sqrt(x)}, nil
}

// collatz runs the Collatz sequence from n down to 1, reporting progress
// after every step, and honoring cooperative cancellation.
func collatz(ctx context.Context, inputs map[string]any, report worker.Reporter) (map[string]any, error) {
	n, err := asFloat(inputs, "n")
	if err != nil {
		return nil, err
	}
	steps := int64(0)
	for v := int64(n); v != 1; {
		if report.CancelRequested() {
			report.Canceled()
			return nil, nil
		}
		if v%2 == 0 {
			v /= 2
		} else {
			v = 3*v + 1
		}
		steps++
		report.Update("step", steps, 0)
	}
	return map[string]any{"result": steps}, nil
}

func identity(_ context.Context, inputs map[string]any, _ worker.Reporter) (map[string]any, error) {
	return inputs, nil
}

func asFloat(inputs map[string]any, key string) (float64, error) {
	v, ok := inputs[key]
	if !ok {
		return 0, fmt.Errorf("missing input %q", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("input %q has unsupported type %T", key, v)
	}
}
