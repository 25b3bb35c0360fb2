package wire

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/apposed/appose-go/ndarray"
	"github.com/apposed/appose-go/shm"
)

// appose_type tag values used to project non-JSON-native values onto the
// wire and recover them on the other side.
const (
	typeShm          = "shm"
	typeNDArray      = "ndarray"
	typeWorkerObject = "worker_object"
)

// Encode projects an arbitrary Appose value (nil, bool, string, a number,
// nested []any/map[string]any, a *shm.Region, an *ndarray.NDArray, a
// WorkerObjectRef, or — in worker mode — anything else) into a tree of
// plain JSON-marshalable values.
func Encode(ctx Context, v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, string, int, int32, int64, float32, float64:
		return val, nil
	case *shm.Region:
		return encodeShm(val), nil
	case *ndarray.NDArray:
		return encodeNDArray(val), nil
	case WorkerObjectRef:
		return map[string]any{"appose_type": typeWorkerObject, "var_name": val.VarName}, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			enc, err := Encode(ctx, elem)
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			enc, err := Encode(ctx, elem)
			if err != nil {
				return nil, fmt.Errorf("wire: encoding key %q: %w", k, err)
			}
			out[k] = enc
		}
		return out, nil
	default:
		if ctx.Worker && ctx.Exporter != nil {
			varName := ctx.Exporter.AutoExport(v)
			return map[string]any{"appose_type": typeWorkerObject, "var_name": varName}, nil
		}
		return nil, fmt.Errorf("wire: cannot encode value of type %T", v)
	}
}

func encodeShm(r *shm.Region) map[string]any {
	return map[string]any{
		"appose_type": typeShm,
		"name":        r.Name(),
		"rsize":       r.RSize(),
	}
}

func encodeNDArray(a *ndarray.NDArray) map[string]any {
	shape := make([]any, len(a.Shape()))
	for i, d := range a.Shape() {
		shape[i] = d
	}
	return map[string]any{
		"appose_type": typeNDArray,
		"dtype":       string(a.Dtype()),
		"shape":       shape,
		"shm":         encodeShm(a.Region()),
	}
}

// Decode walks the tree produced by a JSON decoder configured with
// UseNumber (see ReadLines) and reconstructs live Appose values: JSON
// numbers become int64 when integral and float64 otherwise, shm and
// ndarray objects become a *shm.Region or an *ndarray.NDArray by attaching
// to the referenced shared-memory block, and worker_object objects become a
// WorkerObjectRef.
func Decode(ctx Context, v any) (any, error) {
	switch val := v.(type) {
	case nil, bool, string:
		return val, nil
	case json.Number:
		return decodeNumber(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			dec, err := Decode(ctx, elem)
			if err != nil {
				return nil, err
			}
			out[i] = dec
		}
		return out, nil
	case map[string]any:
		if tag, ok := val["appose_type"].(string); ok {
			return decodeTagged(ctx, tag, val)
		}
		out := make(map[string]any, len(val))
		for k, elem := range val {
			dec, err := Decode(ctx, elem)
			if err != nil {
				return nil, fmt.Errorf("wire: decoding key %q: %w", k, err)
			}
			out[k] = dec
		}
		return out, nil
	default:
		return nil, fmt.Errorf("wire: cannot decode value of type %T", v)
	}
}

func decodeNumber(n json.Number) (any, error) {
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("wire: decoding number %q: %w", n.String(), err)
	}
	return f, nil
}

func decodeTagged(ctx Context, tag string, raw map[string]any) (any, error) {
	switch tag {
	case typeShm:
		return decodeShm(ctx, raw)
	case typeNDArray:
		return decodeNDArray(ctx, raw)
	case typeWorkerObject:
		varName, _ := raw["var_name"].(string)
		return WorkerObjectRef{VarName: varName}, nil
	default:
		return nil, fmt.Errorf("wire: unrecognized appose_type %q", tag)
	}
}

func decodeShm(ctx Context, raw map[string]any) (*shm.Region, error) {
	if ctx.Allocator == nil {
		return nil, fmt.Errorf("wire: decoding a shm value requires a non-nil Context.Allocator")
	}
	name, _ := raw["name"].(string)
	rsize, err := numberField(raw, "rsize")
	if err != nil {
		return nil, err
	}
	return ctx.Allocator.Attach(name, rsize)
}

func decodeNDArray(ctx Context, raw map[string]any) (*ndarray.NDArray, error) {
	dtypeStr, _ := raw["dtype"].(string)
	shapeRaw, _ := raw["shape"].([]any)
	shape := make([]int64, len(shapeRaw))
	for i, d := range shapeRaw {
		n, ok := d.(json.Number)
		if !ok {
			return nil, fmt.Errorf("wire: ndarray shape element %v is not a number", d)
		}
		v, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("wire: ndarray shape element %q: %w", n.String(), err)
		}
		shape[i] = v
	}
	shmRaw, ok := raw["shm"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("wire: ndarray value missing shm descriptor")
	}
	region, err := decodeShm(ctx, shmRaw)
	if err != nil {
		return nil, err
	}
	return ndarray.New(ndarray.Dtype(dtypeStr), shape, region)
}

func numberField(raw map[string]any, key string) (int64, error) {
	n, ok := raw[key].(json.Number)
	if !ok {
		return 0, fmt.Errorf("wire: field %q is not a number", key)
	}
	return n.Int64()
}

// LineWriter serializes concurrent writers of newline-delimited JSON
// messages onto a single underlying stream, mirroring the worker/service
// contract that each line is a complete, independently parseable message.
type LineWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLineWriter wraps w for synchronized line-at-a-time writes.
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: w}
}

// WriteLine marshals v to JSON and writes it as one terminated line. It is
// safe to call WriteLine from multiple goroutines.
func (lw *LineWriter) WriteLine(v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("wire: marshaling line: %w", err)
	}
	lw.mu.Lock()
	defer lw.mu.Unlock()
	_, err := lw.w.Write(buf.Bytes())
	if err != nil {
		return fmt.Errorf("wire: writing line: %w", err)
	}
	return nil
}

// ReadLines scans newline-delimited JSON objects from r, decoding each with
// UseNumber so Decode can distinguish integral from fractional numbers, and
// invokes fn with the raw decoded map. Scanning stops at the first error
// fn returns, at a malformed line, at a blank line, or at EOF.
func ReadLines(r io.Reader, fn func(line map[string]any) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			break
		}
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var raw map[string]any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("wire: decoding line %q: %w", line, err)
		}
		if err := fn(raw); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("wire: reading lines: %w", err)
	}
	return nil
}
