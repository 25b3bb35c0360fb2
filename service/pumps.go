package service

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/apposed/appose-go/wire"
)

// decodeResponseLine parses one newline-delimited JSON line, using
// UseNumber so wire.Decode can distinguish integral from fractional
// numbers, and projects it onto a wire.Response.
func decodeResponseLine(ctx wire.Context, line []byte) (wire.Response, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return wire.Response{}, fmt.Errorf("decoding line: %w", err)
	}
	return wire.DecodeResponse(ctx, raw)
}
