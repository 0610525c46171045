// Copyright 2025 Recur ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package webgpu

import (
	internalwebgpu "github.com/recur-ml/recur/internal/backend/webgpu"

	"github.com/recur-ml/recur/blas"
)

// Context represents the WebGPU GEMM execution context.
//
// Single precision runs on the GPU through a WGSL compute shader; double
// precision falls back to the CPU kernels since WGSL has no f64 storage type.
type Context = internalwebgpu.Context

// Compile-time check that Context implements blas.Context.
var _ blas.Context = (*Context)(nil)

// New creates a new WebGPU execution context.
//
// Most callers should use blas.ContextFor(tensor.WebGPU) instead, which
// caches one context per device for the process lifetime. Returns an error
// if WebGPU is not available or initialization fails.
func New() (*Context, error) {
	return internalwebgpu.New()
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() bool {
	return internalwebgpu.IsAvailable()
}
