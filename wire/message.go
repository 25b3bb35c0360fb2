package wire

import (
	"encoding/json"
	"fmt"
)

// EncodeRequest projects a Request into a wire line, applying Encode to
// every entry of Inputs so shared-memory and ndarray arguments are
// serialized correctly.
func EncodeRequest(ctx Context, req Request) (map[string]any, error) {
	line := map[string]any{
		"task":        req.Task,
		"requestType": string(req.Type),
	}
	if req.Script != "" {
		line["script"] = req.Script
	}
	if req.Queue != "" {
		line["queue"] = req.Queue
	}
	if req.Inputs != nil {
		inputs := make(map[string]any, len(req.Inputs))
		for k, v := range req.Inputs {
			enc, err := Encode(ctx, v)
			if err != nil {
				return nil, fmt.Errorf("wire: encoding input %q: %w", k, err)
			}
			inputs[k] = enc
		}
		line["inputs"] = inputs
	}
	return line, nil
}

// DecodeRequest is the inverse of EncodeRequest.
func DecodeRequest(ctx Context, line map[string]any) (Request, error) {
	req := Request{
		Task: stringField(line, "task"),
		Type: RequestType(stringField(line, "requestType")),
	}
	if s, ok := line["script"].(string); ok {
		req.Script = s
	}
	if q, ok := line["queue"].(string); ok {
		req.Queue = q
	}
	if rawInputs, ok := line["inputs"].(map[string]any); ok {
		inputs := make(map[string]any, len(rawInputs))
		for k, v := range rawInputs {
			dec, err := Decode(ctx, v)
			if err != nil {
				return Request{}, fmt.Errorf("wire: decoding input %q: %w", k, err)
			}
			inputs[k] = dec
		}
		req.Inputs = inputs
	}
	return req, nil
}

// EncodeResponse projects a Response into a wire line, applying Encode to
// every entry of Outputs and Info.
func EncodeResponse(ctx Context, resp Response) (map[string]any, error) {
	line := map[string]any{
		"task":         resp.Task,
		"responseType": string(resp.Type),
	}
	if resp.Message != "" {
		line["message"] = resp.Message
	}
	if resp.Current != 0 {
		line["current"] = resp.Current
	}
	if resp.Maximum != 0 {
		line["maximum"] = resp.Maximum
	}
	if resp.Error != "" {
		line["error"] = resp.Error
	}
	if resp.Info != nil {
		info, err := encodeAnyMap(ctx, resp.Info)
		if err != nil {
			return nil, fmt.Errorf("wire: encoding info: %w", err)
		}
		line["info"] = info
	}
	if resp.Outputs != nil {
		outputs, err := encodeAnyMap(ctx, resp.Outputs)
		if err != nil {
			return nil, fmt.Errorf("wire: encoding outputs: %w", err)
		}
		line["outputs"] = outputs
	}
	return line, nil
}

// DecodeResponse is the inverse of EncodeResponse.
func DecodeResponse(ctx Context, line map[string]any) (Response, error) {
	resp := Response{
		Task:    stringField(line, "task"),
		Type:    ResponseType(stringField(line, "responseType")),
		Message: stringField(line, "message"),
		Error:   stringField(line, "error"),
	}
	if n, ok := line["current"].(json.Number); ok {
		v, err := n.Int64()
		if err != nil {
			return Response{}, fmt.Errorf("wire: decoding current: %w", err)
		}
		resp.Current = v
	}
	if n, ok := line["maximum"].(json.Number); ok {
		v, err := n.Int64()
		if err != nil {
			return Response{}, fmt.Errorf("wire: decoding maximum: %w", err)
		}
		resp.Maximum = v
	}
	if rawInfo, ok := line["info"].(map[string]any); ok {
		info, err := decodeAnyMap(ctx, rawInfo)
		if err != nil {
			return Response{}, fmt.Errorf("wire: decoding info: %w", err)
		}
		resp.Info = info
	}
	if rawOutputs, ok := line["outputs"].(map[string]any); ok {
		outputs, err := decodeAnyMap(ctx, rawOutputs)
		if err != nil {
			return Response{}, fmt.Errorf("wire: decoding outputs: %w", err)
		}
		resp.Outputs = outputs
	}
	return resp, nil
}

func encodeAnyMap(ctx Context, m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		enc, err := Encode(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = enc
	}
	return out, nil
}

func decodeAnyMap(ctx Context, m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		dec, err := Decode(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		out[k] = dec
	}
	return out, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
