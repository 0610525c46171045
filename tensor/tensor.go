// Copyright 2025 Recur ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for the strided buffer views used by
// the recurrence engines.
//
// The package defines core types for device-resident sequence data:
//   - RawTensor: shape + row-major strides + offset over caller-owned storage
//   - Shape, DataType, Device: core type definitions
//
// Per-timestep slices of a [T, N, F] sequence tensor are lightweight
// non-owning views created with SubSlice:
//
//	x, _ := tensor.FromSlice(data, tensor.Shape{steps, batch, features}, tensor.CPU)
//	xt := x.SubSlice(t) // contiguous [batch, features] view of timestep t
package tensor

import (
	"github.com/recur-ml/recur/internal/tensor"
)

// DType is a constraint for tensor element types.
// Supported types: float32, float64 — one precision per call.
type DType = tensor.DType

// DataType represents the underlying data type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
)

// Device represents the device where tensor data resides.
type Device = tensor.Device

// Device constants.
const (
	CPU    Device = tensor.CPU
	WebGPU Device = tensor.WebGPU
)

// Shape represents the dimensions of a tensor.
// Example: Shape{8, 32, 128} represents a [time, batch, feature] sequence.
type Shape = tensor.Shape

// RawTensor is the low-level tensor representation: a shape plus row-major
// strides and an offset into a shared, reference-counted buffer.
type RawTensor = tensor.RawTensor

// NewRaw creates a new zero-initialized RawTensor with the given shape and type.
func NewRaw(shape Shape, dtype DataType, device Device) (*RawTensor, error) {
	return tensor.NewRaw(shape, dtype, device)
}

// FromSlice creates a RawTensor that copies the given data.
func FromSlice[T DType](data []T, shape Shape, device Device) (*RawTensor, error) {
	return tensor.FromSlice(data, shape, device)
}

// Elements returns the elements of a RawTensor as a typed slice.
func Elements[T DType](r *RawTensor) []T {
	return tensor.Elements[T](r)
}

// DataTypeOf returns the DataType for the compile-time element type T.
func DataTypeOf[T DType]() DataType {
	return tensor.DataTypeOf[T]()
}
