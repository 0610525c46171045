// Copyright 2025 Recur ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package blas provides the public API for GEMM execution contexts.
//
// A Context is a handle bound to one compute device that batches and
// dispatches dense matrix multiplies. One context is cached per device for
// process lifetime, created lazily on first use:
//
//	ctx, err := blas.ContextFor(tensor.CPU)
//
// Implementations:
//   - internal/backend/cpu: pure Go kernels, tiling picked from CPU features
//   - internal/backend/webgpu: cross-platform GPU compute via WebGPU
package blas

import (
	"github.com/recur-ml/recur/internal/blas"
	"github.com/recur-ml/recur/internal/device"
	"github.com/recur-ml/recur/tensor"
)

// Context dispatches dense matrix-multiply operations on one device.
type Context = blas.Context

// Registry is an explicit get-or-create map of per-device execution
// contexts with a one-time-initialization guarantee.
type Registry = device.Registry

// NewRegistry creates an empty context registry. Most callers should use the
// process-wide ContextFor instead.
func NewRegistry() *Registry {
	return device.NewRegistry()
}

// ContextFor returns the execution context for the given device from the
// process-wide registry, creating it on first use. The context lives until
// process shutdown.
func ContextFor(d tensor.Device) (Context, error) {
	return device.ContextFor(d)
}

// Gemm dispatches to the context's Sgemm or Dgemm based on the element type.
func Gemm[T tensor.DType](ctx Context, transA, transB bool, m, n, k int, alpha T, a []T, lda int, b []T, ldb int, beta T, c []T, ldc int) {
	blas.Gemm(ctx, transA, transB, m, n, k, alpha, a, lda, b, ldb, beta, c, ldc)
}
