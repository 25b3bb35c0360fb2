// Package ndarray implements Appose's bulk numeric array transport: a typed,
// shaped view over a shm.Region's raw bytes, so large tensors cross the
// caller/worker boundary without a JSON-encoded copy.
package ndarray

import (
	"fmt"
	"unsafe"

	"github.com/apposed/appose-go/shm"
)

// NDArray is a dtype-tagged, shaped view over a shared-memory region. The
// region's bytes are the single source of truth; the numeric typed
// accessors below alias the same backing array, while Bool returns a copy.
type NDArray struct {
	dtype  Dtype
	shape  []int64
	region *shm.Region
}

// New wraps an existing region as an NDArray of the given dtype and shape.
// It returns an error if the region's requested size (RSize) is smaller
// than shape requires.
func New(dtype Dtype, shape []int64, region *shm.Region) (*NDArray, error) {
	if !dtype.Valid() {
		return nil, fmt.Errorf("ndarray: invalid dtype %q", dtype)
	}
	elemSize, _ := dtype.ElemSize()
	need := elemSize
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("ndarray: negative shape dimension %d", d)
		}
		need *= int(d)
	}
	if int64(need) > region.RSize() {
		return nil, fmt.Errorf("ndarray: region of %d bytes too small for shape %v of dtype %s (needs %d)",
			region.RSize(), shape, dtype, need)
	}
	return &NDArray{dtype: dtype, shape: append([]int64(nil), shape...), region: region}, nil
}

// NewAlloc creates a fresh region sized for dtype/shape via alloc and wraps
// it as an NDArray.
func NewAlloc(alloc *shm.Allocator, dtype Dtype, shape []int64) (*NDArray, error) {
	if !dtype.Valid() {
		return nil, fmt.Errorf("ndarray: invalid dtype %q", dtype)
	}
	elemSize, _ := dtype.ElemSize()
	nbytes := elemSize
	for _, d := range shape {
		nbytes *= int(d)
	}
	region, err := alloc.Create(int64(nbytes))
	if err != nil {
		return nil, err
	}
	return New(dtype, shape, region)
}

// Dtype is the element kind of the array.
func (a *NDArray) Dtype() Dtype { return a.dtype }

// Shape is the array's dimensions, outermost first.
func (a *NDArray) Shape() []int64 { return append([]int64(nil), a.shape...) }

// Len is the total element count implied by Shape.
func (a *NDArray) Len() int64 {
	n := int64(1)
	for _, d := range a.shape {
		n *= d
	}
	return n
}

// Region is the underlying shared-memory block.
func (a *NDArray) Region() *shm.Region { return a.region }

func typedView[T any](a *NDArray, want Dtype) ([]T, error) {
	if a.dtype != want {
		return nil, fmt.Errorf("ndarray: dtype is %s, not %s", a.dtype, want)
	}
	n := int(a.Len())
	if n == 0 {
		return nil, nil
	}
	buf := a.region.Bytes()
	return unsafe.Slice((*T)(unsafe.Pointer(&buf[0])), n), nil
}

func (a *NDArray) Int8() ([]int8, error)     { return typedView[int8](a, Int8) }
func (a *NDArray) Uint8() ([]uint8, error)   { return typedView[uint8](a, Uint8) }
func (a *NDArray) Int16() ([]int16, error)   { return typedView[int16](a, Int16) }
func (a *NDArray) Uint16() ([]uint16, error) { return typedView[uint16](a, Uint16) }
func (a *NDArray) Int32() ([]int32, error)   { return typedView[int32](a, Int32) }
func (a *NDArray) Uint32() ([]uint32, error) { return typedView[uint32](a, Uint32) }
func (a *NDArray) Int64() ([]int64, error)   { return typedView[int64](a, Int64) }
func (a *NDArray) Uint64() ([]uint64, error) { return typedView[uint64](a, Uint64) }
func (a *NDArray) Float32() ([]float32, error) { return typedView[float32](a, Float32) }
func (a *NDArray) Float64() ([]float64, error) { return typedView[float64](a, Float64) }

// Bool views the region as a byte slice interpreted as 0/non-zero booleans;
// Go has no portable 1-byte bool array representation to alias directly.
func (a *NDArray) Bool() ([]bool, error) {
	if a.dtype != Bool {
		return nil, fmt.Errorf("ndarray: dtype is %s, not %s", a.dtype, Bool)
	}
	raw, err := typedView[byte](a, Bool)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(raw))
	for i, b := range raw {
		out[i] = b != 0
	}
	return out, nil
}
