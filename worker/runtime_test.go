package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/apposed/appose-go/wire"
	"github.com/stretchr/testify/require"
)

// readResponses decodes every newline-delimited wire.Response line written
// to buf. It is safe to call only after the writer side is done.
func readResponses(t *testing.T, r io.Reader) []wire.Response {
	t.Helper()
	var out []wire.Response
	err := wire.ReadLines(r, func(line map[string]any) error {
		resp, err := wire.DecodeResponse(wire.Context{}, line)
		require.NoError(t, err)
		out = append(out, resp)
		return nil
	})
	require.NoError(t, err)
	return out
}

func encodeLine(t *testing.T, v map[string]any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return append(data, '\n')
}

func TestRuntimeExecutesRegisteredFunctionAndEmitsCompletion(t *testing.T) {
	reg := NewRegistry()
	reg.Register("add", func(ctx context.Context, inputs map[string]any, report Reporter) (map[string]any, error) {
		a := inputs["a"].(int64)
		b := inputs["b"].(int64)
		return map[string]any{"result": a + b}, nil
	})

	var stdin bytes.Buffer
	stdin.Write(encodeLine(t, map[string]any{
		"task": "t1", "requestType": "EXECUTE", "script": "add",
		"inputs": map[string]any{"a": 1, "b": 2},
	}))

	var stdout bytes.Buffer
	rt := New(&stdout, reg)
	err := rt.Run(context.Background(), &stdin, wire.Context{Worker: true})
	require.NoError(t, err)

	resps := readResponses(t, &stdout)
	require.Len(t, resps, 2)
	require.Equal(t, wire.Launch, resps[0].Type)
	require.Equal(t, wire.Completion, resps[1].Type)
	require.Equal(t, int64(3), resps[1].Outputs["result"])
}

func TestRuntimeReportsUpdatesInOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register("collatz", func(ctx context.Context, inputs map[string]any, report Reporter) (map[string]any, error) {
		n := inputs["n"].(int64)
		steps := int64(0)
		for n != 1 {
			if n%2 == 0 {
				n /= 2
			} else {
				n = 3*n + 1
			}
			steps++
			report.Update("step", steps, 0)
		}
		return map[string]any{"result": steps}, nil
	})

	var stdin bytes.Buffer
	stdin.Write(encodeLine(t, map[string]any{
		"task": "t1", "requestType": "EXECUTE", "script": "collatz",
		"inputs": map[string]any{"n": 9999},
	}))

	var stdout bytes.Buffer
	rt := New(&stdout, reg)
	require.NoError(t, rt.Run(context.Background(), &stdin, wire.Context{Worker: true}))

	resps := readResponses(t, &stdout)
	require.Equal(t, wire.Launch, resps[0].Type)
	last := resps[len(resps)-1]
	require.Equal(t, wire.Completion, last.Type)
	require.Equal(t, int64(91), last.Outputs["result"])

	updates := resps[1 : len(resps)-1]
	require.Len(t, updates, 91)
	for i, u := range updates {
		require.Equal(t, wire.Update, u.Type)
		require.Equal(t, int64(i+1), u.Current)
	}
}

func TestRuntimeCrossTaskExport(t *testing.T) {
	reg := NewRegistry()
	reg.Register("define-sqrt-age", func(ctx context.Context, inputs map[string]any, report Reporter) (map[string]any, error) {
		report.Export("sqrt_age", func(age int64) float64 { return sqrtApprox(float64(age)) })
		return nil, nil
	})
	reg.Register("use-sqrt-age", func(ctx context.Context, inputs map[string]any, report Reporter) (map[string]any, error) {
		fn := inputs["sqrt_age"].(func(int64) float64)
		age := inputs["age"].(int64)
		return map[string]any{"result": fn(age)}, nil
	})

	var stdin bytes.Buffer
	stdin.Write(encodeLine(t, map[string]any{"task": "t1", "requestType": "EXECUTE", "script": "define-sqrt-age", "queue": "main"}))
	stdin.Write(encodeLine(t, map[string]any{"task": "t2", "requestType": "EXECUTE", "script": "use-sqrt-age", "inputs": map[string]any{"age": 100}, "queue": "main"}))
	stdin.Write(encodeLine(t, map[string]any{"task": "t3", "requestType": "EXECUTE", "script": "use-sqrt-age", "inputs": map[string]any{"age": 81}, "queue": "main"}))

	var stdout bytes.Buffer
	rt := New(&stdout, reg)
	require.NoError(t, rt.Run(context.Background(), &stdin, wire.Context{Worker: true}))

	results := map[string]float64{}
	for _, resp := range readResponses(t, &stdout) {
		if resp.Type == wire.Completion && resp.Outputs != nil {
			if v, ok := resp.Outputs["result"]; ok {
				results[resp.Task] = v.(float64)
			}
		}
	}
	require.InDelta(t, 10, results["t2"], 0.0001)
	require.InDelta(t, 9, results["t3"], 0.0001)
}

func TestRuntimeMainQueueTagsContext(t *testing.T) {
	reg := NewRegistry()
	seen := make(chan string, 2)
	reg.Register("whoami", func(ctx context.Context, inputs map[string]any, report Reporter) (map[string]any, error) {
		seen <- ThreadID(ctx)
		return map[string]any{"result": ThreadID(ctx)}, nil
	})

	var stdin bytes.Buffer
	stdin.Write(encodeLine(t, map[string]any{"task": "main1", "requestType": "EXECUTE", "script": "whoami", "queue": "main"}))
	stdin.Write(encodeLine(t, map[string]any{"task": "worker1", "requestType": "EXECUTE", "script": "whoami"}))

	var stdout bytes.Buffer
	rt := New(&stdout, reg)
	require.NoError(t, rt.Run(context.Background(), &stdin, wire.Context{Worker: true}))

	ids := map[string]string{}
	for _, resp := range readResponses(t, &stdout) {
		if resp.Type == wire.Completion {
			ids[resp.Task] = resp.Outputs["result"].(string)
		}
	}
	require.Equal(t, MainThreadID, ids["main1"])
	require.Equal(t, WorkerThreadID, ids["worker1"])
}

func TestRuntimeCooperativeCancellation(t *testing.T) {
	reg := NewRegistry()
	started := make(chan struct{})
	reg.Register("cancelable", func(ctx context.Context, inputs map[string]any, report Reporter) (map[string]any, error) {
		close(started)
		for !report.CancelRequested() {
			time.Sleep(time.Millisecond)
		}
		report.Canceled()
		return nil, nil
	})

	stdinR, stdinW := io.Pipe()
	var stdout bytes.Buffer
	rt := New(&stdout, reg)

	runDone := make(chan error, 1)
	go func() { runDone <- rt.Run(context.Background(), stdinR, wire.Context{Worker: true}) }()

	_, _ = stdinW.Write(encodeLine(t, map[string]any{"task": "c1", "requestType": "EXECUTE", "script": "cancelable"}))
	<-started
	_, _ = stdinW.Write(encodeLine(t, map[string]any{"task": "c1", "requestType": "CANCEL"}))
	require.NoError(t, stdinW.Close())
	require.NoError(t, <-runDone)

	resps := readResponses(t, &stdout)
	require.Equal(t, wire.Launch, resps[0].Type)
	require.Equal(t, wire.Cancelation, resps[len(resps)-1].Type)
}

func TestRuntimeFailurePropagatesScriptError(t *testing.T) {
	reg := NewRegistry()
	reg.Register("boom", func(ctx context.Context, inputs map[string]any, report Reporter) (map[string]any, error) {
		panic("kaboom")
	})

	var stdin bytes.Buffer
	stdin.Write(encodeLine(t, map[string]any{"task": "t1", "requestType": "EXECUTE", "script": "boom"}))

	var stdout bytes.Buffer
	rt := New(&stdout, reg)
	require.NoError(t, rt.Run(context.Background(), &stdin, wire.Context{Worker: true}))

	resps := readResponses(t, &stdout)
	require.Equal(t, wire.Failure, resps[len(resps)-1].Type)
	require.Contains(t, resps[len(resps)-1].Error, "kaboom")
}

func TestRuntimeInitScriptExportsBecomeAvailableToTasks(t *testing.T) {
	reg := NewRegistry()
	reg.Register("greeting-init", func(ctx context.Context, inputs map[string]any, report Reporter) (map[string]any, error) {
		return map[string]any{"greeting": "hello"}, nil
	})
	reg.Register("use-greeting", func(ctx context.Context, inputs map[string]any, report Reporter) (map[string]any, error) {
		return map[string]any{"result": inputs["greeting"].(string) + ", world"}, nil
	})

	var stdout bytes.Buffer
	rt := New(&stdout, reg)
	require.NoError(t, rt.RunInit(context.Background(), "greeting-init"))

	var stdin bytes.Buffer
	stdin.Write(encodeLine(t, map[string]any{"task": "t1", "requestType": "EXECUTE", "script": "use-greeting"}))
	require.NoError(t, rt.Run(context.Background(), &stdin, wire.Context{Worker: true}))

	resps := readResponses(t, &stdout)
	last := resps[len(resps)-1]
	require.Equal(t, wire.Completion, last.Type)
	require.Equal(t, "hello, world", last.Outputs["result"])
}

func sqrtApprox(x float64) float64 {
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 20; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}
