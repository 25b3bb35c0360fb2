package wire

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/bradleyjkemp/cupaloy"
	"github.com/nsf/jsondiff"
	"github.com/stretchr/testify/require"
)

type fakeExporter struct{ next int }

func (f *fakeExporter) AutoExport(v any) string {
	f.next++
	return "auto-var-" + string(rune('0'+f.next))
}

func TestEncodeDecodePrimitivesRoundTrip(t *testing.T) {
	ctx := Context{}
	in := map[string]any{
		"greeting": "hello",
		"count":    int64(42),
		"ratio":    3.5,
		"ok":       true,
		"nested":   []any{int64(1), int64(2), "three"},
	}

	enc, err := Encode(ctx, in)
	require.NoError(t, err)

	raw, err := roundTripThroughJSON(enc)
	require.NoError(t, err)

	dec, err := Decode(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, in, dec)
}

func TestEncodeWorkerObjectRefRoundTrip(t *testing.T) {
	ctx := Context{}
	ref := WorkerObjectRef{VarName: "x"}

	enc, err := Encode(ctx, ref)
	require.NoError(t, err)

	raw, err := roundTripThroughJSON(enc)
	require.NoError(t, err)

	dec, err := Decode(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, ref, dec)
}

func TestEncodeAutoExportsUnknownValueInWorkerMode(t *testing.T) {
	exporter := &fakeExporter{}
	ctx := Context{Worker: true, Exporter: exporter}

	type opaque struct{ n int }
	enc, err := Encode(ctx, opaque{n: 1})
	require.NoError(t, err)

	m, ok := enc.(map[string]any)
	require.True(t, ok)
	require.Equal(t, typeWorkerObject, m["appose_type"])
	require.Equal(t, 1, exporter.next)
}

func TestEncodeRejectsUnknownValueOutsideWorkerMode(t *testing.T) {
	ctx := Context{}
	type opaque struct{ n int }
	_, err := Encode(ctx, opaque{n: 1})
	require.Error(t, err)
}

func TestEncodeRequestSnapshot(t *testing.T) {
	ctx := Context{}
	req := Request{
		Task:   "11111111-1111-1111-1111-111111111111",
		Type:   Execute,
		Script: "task.outputs['result'] = 41 + 1",
		Queue:  MainQueue,
		Inputs: map[string]any{"a": int64(41)},
	}
	line, err := EncodeRequest(ctx, req)
	require.NoError(t, err)

	cupaloy.SnapshotT(t, line)

	back, err := DecodeRequest(ctx, roundTripMapThroughJSON(t, line))
	require.NoError(t, err)
	require.Equal(t, req, back)
}

func TestEncodeResponseSnapshot(t *testing.T) {
	ctx := Context{}
	resp := Response{
		Task:    "11111111-1111-1111-1111-111111111111",
		Type:    Completion,
		Outputs: map[string]any{"result": int64(42)},
	}
	line, err := EncodeResponse(ctx, resp)
	require.NoError(t, err)

	cupaloy.SnapshotT(t, line)

	back, err := DecodeResponse(ctx, roundTripMapThroughJSON(t, line))
	require.NoError(t, err)
	require.Equal(t, resp, back)
}

func TestJSONStructuralEquality(t *testing.T) {
	a := []byte(`{"task":"t","type":"EXECUTE","inputs":{"a":1}}`)
	b := []byte(`{"type":"EXECUTE","task":"t","inputs":{"a":1}}`)
	opts := jsondiff.DefaultConsoleOptions()
	diff, _ := jsondiff.Compare(a, b, &opts)
	require.Equal(t, jsondiff.FullMatch, diff)
}

func roundTripThroughJSON(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func roundTripMapThroughJSON(t *testing.T, m map[string]any) map[string]any {
	t.Helper()
	data, err := json.Marshal(m)
	require.NoError(t, err)
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out map[string]any
	require.NoError(t, dec.Decode(&out))
	return out
}
