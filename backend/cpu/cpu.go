// Copyright 2025 Recur ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/recur-ml/recur/internal/backend/cpu"

	"github.com/recur-ml/recur/blas"
)

// Context represents the CPU GEMM execution context.
//
// The CPU context provides pure Go GEMM kernels with tiling selected from
// detected CPU features. It is always available.
type Context = internalcpu.CPUContext

// Compile-time check that Context implements blas.Context.
var _ blas.Context = (*Context)(nil)

// New creates a new CPU execution context.
//
// Most callers should use blas.ContextFor(tensor.CPU) instead, which caches
// one context per device for the process lifetime.
func New() *Context {
	return internalcpu.New()
}
