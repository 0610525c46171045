package tensor

import "testing"

func TestShapeNumElements(t *testing.T) {
	tests := []struct {
		shape Shape
		want  int
	}{
		{Shape{}, 1}, // scalar
		{Shape{5}, 5},
		{Shape{3, 4}, 12},
		{Shape{2, 3, 4}, 24},
		{Shape{0, 3, 4}, 0},
	}
	for _, tt := range tests {
		if got := tt.shape.NumElements(); got != tt.want {
			t.Errorf("%v.NumElements() = %d, want %d", tt.shape, got, tt.want)
		}
	}
}

func TestShapeValidate(t *testing.T) {
	if err := (Shape{2, 3}).Validate(); err != nil {
		t.Errorf("valid shape rejected: %v", err)
	}
	if err := (Shape{0, 3}).Validate(); err != nil {
		t.Errorf("zero dimension rejected: %v", err)
	}
	if err := (Shape{2, -1}).Validate(); err == nil {
		t.Error("negative dimension accepted")
	}
}

func TestShapeEqual(t *testing.T) {
	if !(Shape{2, 3}).Equal(Shape{2, 3}) {
		t.Error("equal shapes reported unequal")
	}
	if (Shape{2, 3}).Equal(Shape{3, 2}) {
		t.Error("different shapes reported equal")
	}
	if (Shape{2, 3}).Equal(Shape{2, 3, 1}) {
		t.Error("different ranks reported equal")
	}
}

func TestShapeComputeStrides(t *testing.T) {
	strides := Shape{4, 3, 2}.ComputeStrides()
	want := []int{6, 2, 1}
	for i := range want {
		if strides[i] != want[i] {
			t.Errorf("stride[%d] = %d, want %d", i, strides[i], want[i])
		}
	}
}

func TestShapeCloneIndependent(t *testing.T) {
	orig := Shape{2, 3}
	clone := orig.Clone()
	clone[0] = 9
	if orig[0] != 2 {
		t.Error("Clone should not share backing storage")
	}
}

func TestDataTypeOf(t *testing.T) {
	if DataTypeOf[float32]() != Float32 {
		t.Error("DataTypeOf[float32] != Float32")
	}
	if DataTypeOf[float64]() != Float64 {
		t.Error("DataTypeOf[float64] != Float64")
	}
	if Float32.Size() != 4 || Float64.Size() != 8 {
		t.Error("wrong element sizes")
	}
}
