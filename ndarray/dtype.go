package ndarray

import "fmt"

// Dtype identifies the element type of an NDArray's backing buffer.
type Dtype string

const (
	Int8    Dtype = "int8"
	Uint8   Dtype = "uint8"
	Int16   Dtype = "int16"
	Uint16  Dtype = "uint16"
	Int32   Dtype = "int32"
	Uint32  Dtype = "uint32"
	Int64   Dtype = "int64"
	Uint64  Dtype = "uint64"
	Float32 Dtype = "float32"
	Float64 Dtype = "float64"
	Bool    Dtype = "bool"
)

// ElemSize returns the width in bytes of one element of this dtype.
func (d Dtype) ElemSize() (int, error) {
	switch d {
	case Int8, Uint8, Bool:
		return 1, nil
	case Int16, Uint16:
		return 2, nil
	case Int32, Uint32, Float32:
		return 4, nil
	case Int64, Uint64, Float64:
		return 8, nil
	default:
		return 0, fmt.Errorf("ndarray: unknown dtype %q", d)
	}
}

// Valid reports whether d is one of the recognized element kinds.
func (d Dtype) Valid() bool {
	_, err := d.ElemSize()
	return err == nil
}
