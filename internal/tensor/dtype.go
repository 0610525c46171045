package tensor

// DType is a constraint for the element types the numeric core computes in.
// One precision is selected uniformly for a whole forward or backward call.
type DType interface {
	float32 | float64
}

// DataType represents the underlying data type of a tensor.
type DataType int

// Supported data types.
const (
	Float32 DataType = iota
	Float64
)

// Size returns the size in bytes of one element.
func (d DataType) Size() int {
	switch d {
	case Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

// String returns a human-readable type name.
func (d DataType) String() string {
	switch d {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	default:
		return "unknown"
	}
}

// DataTypeOf returns the DataType for the compile-time element type T.
func DataTypeOf[T DType]() DataType {
	var zero T
	if _, ok := any(zero).(float64); ok {
		return Float64
	}
	return Float32
}
