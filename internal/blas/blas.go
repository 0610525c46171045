// Package blas defines the GEMM execution context consumed by the recurrence
// engines. A Context is bound to one compute device; all matrix multiplies
// issued against it are serialized on that device's execution path, which is
// what lets a timestep issue several GEMMs back to back without explicit
// synchronization between them.
package blas

import (
	"github.com/recur-ml/recur/internal/tensor"
)

// Context dispatches dense matrix-multiply operations on one device.
//
// Both entry points compute, in row-major layout:
//
//	C = alpha * op(A) @ op(B) + beta * C
//
// where op(X) is X or its transpose. op(A) is [m, k], op(B) is [k, n] and
// C is [m, n]. lda, ldb and ldc are the leading (row) strides of A, B and C
// as stored, before any transpose interpretation. beta = 0 overwrites C,
// beta = 1 accumulates into it.
//
// A Context is safe for concurrent use by multiple goroutines, but callers
// interleaving GEMMs that feed each other must issue them from one goroutine:
// ordering is only guaranteed for calls issued in program order.
type Context interface {
	// Sgemm performs single-precision general matrix multiplication.
	Sgemm(transA, transB bool, m, n, k int, alpha float32, a []float32, lda int, b []float32, ldb int, beta float32, c []float32, ldc int)

	// Dgemm performs double-precision general matrix multiplication.
	Dgemm(transA, transB bool, m, n, k int, alpha float64, a []float64, lda int, b []float64, ldb int, beta float64, c []float64, ldc int)

	// Name returns a human-readable description of the context.
	Name() string

	// Device returns the device this context is bound to.
	Device() tensor.Device
}

// Gemm dispatches to Sgemm or Dgemm based on the element type T.
func Gemm[T tensor.DType](ctx Context, transA, transB bool, m, n, k int, alpha T, a []T, lda int, b []T, ldb int, beta T, c []T, ldc int) {
	switch any(alpha).(type) {
	case float64:
		ctx.Dgemm(transA, transB, m, n, k,
			any(alpha).(float64), any(a).([]float64), lda,
			any(b).([]float64), ldb,
			any(beta).(float64), any(c).([]float64), ldc)
	default:
		ctx.Sgemm(transA, transB, m, n, k,
			any(alpha).(float32), any(a).([]float32), lda,
			any(b).([]float32), ldb,
			any(beta).(float32), any(c).([]float32), ldc)
	}
}
