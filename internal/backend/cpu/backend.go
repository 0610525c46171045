// Package cpu implements the CPU GEMM execution context in pure Go.
// Kernel tiling is selected once from detected CPU features.
package cpu

import (
	"fmt"

	"github.com/recur-ml/recur/internal/blas"
	"github.com/recur-ml/recur/internal/parallel"
	"github.com/recur-ml/recur/internal/tensor"
)

// CPUContext executes GEMM operations on the host CPU.
// The zero cost of construction makes it the always-available fallback device.
type CPUContext struct {
	features Features
	kc       int // k-dimension tile, sized to keep a panel of B in cache
	par      parallel.Config
}

// Compile-time check that CPUContext implements blas.Context.
var _ blas.Context = (*CPUContext)(nil)

// New creates a new CPU execution context.
func New() *CPUContext {
	f := Detect()
	return &CPUContext{
		features: f,
		kc:       f.TileK(),
		par:      parallel.DefaultConfig(),
	}
}

// Sgemm performs single-precision matrix multiplication. See blas.Context.
func (ctx *CPUContext) Sgemm(transA, transB bool, m, n, k int, alpha float32, a []float32, lda int, b []float32, ldb int, beta float32, c []float32, ldc int) {
	gemm(transA, transB, m, n, k, alpha, a, lda, b, ldb, beta, c, ldc, ctx.kc, ctx.par)
}

// Dgemm performs double-precision matrix multiplication. See blas.Context.
func (ctx *CPUContext) Dgemm(transA, transB bool, m, n, k int, alpha float64, a []float64, lda int, b []float64, ldb int, beta float64, c []float64, ldc int) {
	gemm(transA, transB, m, n, k, alpha, a, lda, b, ldb, beta, c, ldc, ctx.kc, ctx.par)
}

// Name returns the context description, including the detected feature level.
func (ctx *CPUContext) Name() string {
	return fmt.Sprintf("CPU (%s)", ctx.features)
}

// Device returns the compute device.
func (ctx *CPUContext) Device() tensor.Device {
	return tensor.CPU
}

// Features returns the detected CPU features.
func (ctx *CPUContext) Features() Features {
	return ctx.features
}
