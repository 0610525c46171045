package tensor

import (
	"testing"
)

func TestNewRawZeroInitialized(t *testing.T) {
	raw, err := NewRaw(Shape{3, 2}, Float32, CPU)
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	data := raw.AsFloat32()
	if len(data) != 6 {
		t.Fatalf("AsFloat32 length = %d, want 6", len(data))
	}
	for i, v := range data {
		if v != 0 {
			t.Errorf("element %d = %g, want 0", i, v)
		}
	}

	// Modify and verify zero-copy
	data[0] = 42
	if raw.AsFloat32()[0] != 42 {
		t.Error("AsFloat32 should return zero-copy slice")
	}
}

func TestNewRawInvalidShape(t *testing.T) {
	if _, err := NewRaw(Shape{2, -1}, Float32, CPU); err == nil {
		t.Error("expected error for negative dimension")
	}
}

func TestNewRawZeroLengthLeadingAxis(t *testing.T) {
	// A zero-length sequence is a legal tensor with no elements.
	raw, err := NewRaw(Shape{0, 4, 8}, Float64, CPU)
	if err != nil {
		t.Fatalf("NewRaw: %v", err)
	}
	if raw.NumElements() != 0 {
		t.Errorf("NumElements = %d, want 0", raw.NumElements())
	}
	if got := raw.AsFloat64(); got != nil {
		t.Errorf("AsFloat64 on empty tensor = %v, want nil", got)
	}
}

func TestFromSlice(t *testing.T) {
	raw, err := FromSlice([]float64{1, 2, 3, 4, 5, 6}, Shape{2, 3}, CPU)
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}
	if raw.DType() != Float64 {
		t.Errorf("DType = %s, want float64", raw.DType())
	}
	data := raw.AsFloat64()
	for i, want := range []float64{1, 2, 3, 4, 5, 6} {
		if data[i] != want {
			t.Errorf("element %d = %g, want %g", i, data[i], want)
		}
	}
}

func TestFromSliceLengthMismatch(t *testing.T) {
	if _, err := FromSlice([]float32{1, 2, 3}, Shape{2, 2}, CPU); err == nil {
		t.Error("expected error for mismatched data length")
	}
}

func TestSubSliceView(t *testing.T) {
	// [3, 2, 2] sequence; SubSlice(t) must be the contiguous [2, 2] block of
	// timestep t, sharing storage with the parent.
	data := make([]float32, 12)
	for i := range data {
		data[i] = float32(i)
	}
	seq, err := FromSlice(data, Shape{3, 2, 2}, CPU)
	if err != nil {
		t.Fatalf("FromSlice: %v", err)
	}

	step1 := seq.SubSlice(1)
	defer step1.Release()

	if !step1.Shape().Equal(Shape{2, 2}) {
		t.Fatalf("SubSlice shape = %v, want [2 2]", step1.Shape())
	}
	view := step1.AsFloat32()
	for i, want := range []float32{4, 5, 6, 7} {
		if view[i] != want {
			t.Errorf("view[%d] = %g, want %g", i, view[i], want)
		}
	}

	// Writes through the view land in the parent's storage.
	view[0] = -1
	if seq.AsFloat32()[4] != -1 {
		t.Error("write through view not visible in parent")
	}
	// And parent writes are visible in the view.
	seq.AsFloat32()[5] = -2
	if step1.AsFloat32()[1] != -2 {
		t.Error("parent write not visible in view")
	}
}

func TestSubSliceOutOfRange(t *testing.T) {
	raw, _ := NewRaw(Shape{3, 2}, Float32, CPU)
	defer func() {
		if recover() == nil {
			t.Error("expected panic for out-of-range SubSlice")
		}
	}()
	raw.SubSlice(3)
}

func TestSubSliceRefCounting(t *testing.T) {
	raw, _ := NewRaw(Shape{4, 2}, Float32, CPU)
	if !raw.IsUnique() {
		t.Fatal("fresh tensor should be unique")
	}

	view := raw.SubSlice(2)
	if raw.IsUnique() {
		t.Error("tensor with a live view should not be unique")
	}

	// Releasing the parent keeps the view's storage alive.
	raw.Release()
	view.AsFloat32()[0] = 7
	if view.AsFloat32()[0] != 7 {
		t.Error("view storage freed while still referenced")
	}
	view.Release()
}

func TestCloneSharesBuffer(t *testing.T) {
	raw, _ := FromSlice([]float32{1, 2, 3, 4}, Shape{2, 2}, CPU)
	clone := raw.Clone()
	defer clone.Release()
	defer raw.Release()

	clone.AsFloat32()[0] = 9
	if raw.AsFloat32()[0] != 9 {
		t.Error("Clone should share the buffer")
	}
	if raw.IsUnique() {
		t.Error("tensor with a live clone should not be unique")
	}
}

func TestAsFloat32WrongDType(t *testing.T) {
	raw, _ := NewRaw(Shape{2}, Float64, CPU)
	defer func() {
		if recover() == nil {
			t.Error("expected panic for dtype mismatch")
		}
	}()
	raw.AsFloat32()
}

func TestElementsGeneric(t *testing.T) {
	raw32, _ := FromSlice([]float32{1, 2}, Shape{2}, CPU)
	if got := Elements[float32](raw32); got[1] != 2 {
		t.Errorf("Elements[float32][1] = %g, want 2", got[1])
	}
	raw64, _ := FromSlice([]float64{3, 4}, Shape{2}, CPU)
	if got := Elements[float64](raw64); got[0] != 3 {
		t.Errorf("Elements[float64][0] = %g, want 3", got[0])
	}
}
