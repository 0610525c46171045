package tensor

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Device represents the compute device for tensor operations.
type Device int

// Supported compute devices.
const (
	CPU Device = iota
	WebGPU
)

// String returns a human-readable device name.
func (d Device) String() string {
	switch d {
	case CPU:
		return "CPU"
	case WebGPU:
		return "WebGPU"
	default:
		return "Unknown"
	}
}

// tensorBuffer is a reference-counted shared buffer. Views created with
// SubSlice share the buffer with their parent, so the backing memory stays
// alive as long as any view does.
type tensorBuffer struct {
	data     []byte
	refCount atomic.Int32
	mu       sync.Mutex // For safe deallocation
}

// newTensorBuffer creates a new reference-counted buffer with refCount = 1.
func newTensorBuffer(size int) *tensorBuffer {
	buf := &tensorBuffer{
		data: make([]byte, size),
	}
	buf.refCount.Store(1)
	return buf
}

// addRef increments the reference count (for views and clones).
func (tb *tensorBuffer) addRef() {
	tb.refCount.Add(1)
}

// release decrements the reference count and deallocates if it reaches 0.
func (tb *tensorBuffer) release() {
	if tb.refCount.Add(-1) == 0 {
		tb.mu.Lock()
		defer tb.mu.Unlock()
		tb.data = nil
	}
}

// RawTensor is the low-level tensor representation: a shape plus row-major
// strides and an offset into a shared buffer. Per-timestep slices of a
// sequence tensor are lightweight non-owning views over the caller's storage.
type RawTensor struct {
	buffer *tensorBuffer // Shared reference-counted buffer
	shape  Shape         // Tensor dimensions
	stride []int         // Memory strides (row-major)
	dtype  DataType      // Runtime type information
	device Device        // Compute device
	offset int           // Offset in elements for slicing/views
}

// NewRaw creates a new RawTensor with the given shape and type.
// Memory is allocated and zero-initialized.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	numElements := shape.NumElements()
	byteSize := numElements * dtype.Size()

	return &RawTensor{
		buffer: newTensorBuffer(byteSize),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
		device: device,
		offset: 0,
	}, nil
}

// FromSlice creates a RawTensor that copies the given data.
// The length of data must match the number of elements of the shape.
func FromSlice[T DType](data []T, shape Shape, device Device) (*RawTensor, error) {
	raw, err := NewRaw(shape, DataTypeOf[T](), device)
	if err != nil {
		return nil, err
	}
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements())
	}
	copy(Elements[T](raw), data)
	return raw, nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// Strides returns the tensor's memory strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Device returns the tensor's compute device.
func (r *RawTensor) Device() Device {
	return r.device
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// Data returns the raw byte slice backing this tensor (or view).
// WARNING: Direct access to underlying memory. Use with caution.
func (r *RawTensor) Data() []byte {
	byteOff := r.offset * r.dtype.Size()
	return r.buffer.data[byteOff : byteOff+r.ByteSize()]
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	if r.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", r.dtype))
	}
	if r.NumElements() == 0 {
		return nil
	}
	data := r.Data()
	//nolint:gosec // unsafe.Slice for zero-copy reinterpretation, bounds checked by NumElements()
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), r.NumElements())
}

// AsFloat64 interprets the data as []float64.
// Panics if the tensor's dtype is not Float64.
func (r *RawTensor) AsFloat64() []float64 {
	if r.dtype != Float64 {
		panic(fmt.Sprintf("tensor dtype is %s, not float64", r.dtype))
	}
	if r.NumElements() == 0 {
		return nil
	}
	data := r.Data()
	//nolint:gosec // unsafe.Slice for zero-copy reinterpretation, bounds checked by NumElements()
	return unsafe.Slice((*float64)(unsafe.Pointer(&data[0])), r.NumElements())
}

// Elements returns the elements of r as a []T. It is the generic counterpart
// of AsFloat32/AsFloat64 and panics on a dtype mismatch.
func Elements[T DType](r *RawTensor) []T {
	switch any(*new(T)).(type) {
	case float64:
		return any(r.AsFloat64()).([]T)
	default:
		return any(r.AsFloat32()).([]T)
	}
}

// SubSlice returns a non-owning view of r[i] along the leading axis.
// For a [T, N, H] sequence tensor, SubSlice(t) is the contiguous [N, H]
// slice of timestep t. The view shares storage with r.
func (r *RawTensor) SubSlice(i int) *RawTensor {
	if len(r.shape) == 0 {
		panic("SubSlice: cannot slice a scalar tensor")
	}
	if i < 0 || i >= r.shape[0] {
		panic(fmt.Sprintf("SubSlice: index %d out of range [0, %d)", i, r.shape[0]))
	}
	r.buffer.addRef()
	return &RawTensor{
		buffer: r.buffer,
		shape:  r.shape[1:].Clone(),
		stride: append([]int(nil), r.stride[1:]...),
		dtype:  r.dtype,
		device: r.device,
		offset: r.offset + i*r.stride[0],
	}
}

// Clone creates a shallow copy of the RawTensor (shares buffer with reference
// counting). The buffer is freed once the last reference is released.
func (r *RawTensor) Clone() *RawTensor {
	r.buffer.addRef()
	return &RawTensor{
		buffer: r.buffer,
		shape:  r.shape.Clone(),
		stride: append([]int(nil), r.stride...),
		dtype:  r.dtype,
		device: r.device,
		offset: r.offset,
	}
}

// Release decrements the reference count and deallocates if it reaches 0.
func (r *RawTensor) Release() {
	r.buffer.release()
}

// IsUnique returns true if this tensor is the only reference to the buffer.
func (r *RawTensor) IsUnique() bool {
	return r.buffer.refCount.Load() == 1
}
