package cpu

import (
	"github.com/recur-ml/recur/internal/parallel"
	"github.com/recur-ml/recur/internal/tensor"
)

// Gemm computes C = alpha * op(A) @ op(B) + beta * C in row-major layout
// without an execution context. It backs both CPUContext entry points and
// the WebGPU context's float64 fallback (WGSL has no f64 storage type).
func Gemm[T tensor.DType](transA, transB bool, m, n, k int, alpha T, a []T, lda int, b []T, ldb int, beta T, c []T, ldc int) {
	gemm(transA, transB, m, n, k, alpha, a, lda, b, ldb, beta, c, ldc, Detect().TileK(), parallel.DefaultConfig())
}

func gemm[T tensor.DType](transA, transB bool, m, n, k int, alpha T, a []T, lda int, b []T, ldb int, beta T, c []T, ldc int, kc int, par parallel.Config) {
	if m == 0 || n == 0 {
		return
	}

	// Scale or clear C first; the accumulation loops below only add.
	scaleRows(c, m, n, ldc, beta)

	if k == 0 || alpha == 0 {
		return
	}
	if kc <= 0 {
		kc = k
	}

	// Workers own disjoint row blocks of C, so the kernels below are free of
	// write conflicts. The transA kernel accumulates across k in its outer
	// loop and stays sequential; its m is a feature count in practice, not a
	// batch axis worth splitting.
	switch {
	case !transA && !transB:
		parallel.ForRows(m, par, func(i0, i1 int) {
			gemmNN(i0, i1, n, k, alpha, a, lda, b, ldb, c, ldc, kc)
		})
	case transA && !transB:
		gemmTN(m, n, k, alpha, a, lda, b, ldb, c, ldc)
	case !transA && transB:
		parallel.ForRows(m, par, func(i0, i1 int) {
			gemmNT(i0, i1, n, k, alpha, a, lda, b, ldb, c, ldc)
		})
	default:
		parallel.ForRows(m, par, func(i0, i1 int) {
			gemmTT(i0, i1, n, k, alpha, a, lda, b, ldb, c, ldc)
		})
	}
}

func scaleRows[T tensor.DType](c []T, m, n, ldc int, beta T) {
	for i := 0; i < m; i++ {
		row := c[i*ldc : i*ldc+n]
		switch beta {
		case 1:
		case 0:
			for j := range row {
				row[j] = 0
			}
		default:
			for j := range row {
				row[j] *= beta
			}
		}
	}
}

// gemmNN: A is [m, k], B is [k, n], computing output rows [i0, i1). Blocked
// over k so the active panel of B stays cache-resident; the inner loop is an
// axpy over a row of B.
func gemmNN[T tensor.DType](i0, i1, n, k int, alpha T, a []T, lda int, b []T, ldb int, c []T, ldc int, kc int) {
	for l0 := 0; l0 < k; l0 += kc {
		l1 := l0 + kc
		if l1 > k {
			l1 = k
		}
		for i := i0; i < i1; i++ {
			ci := c[i*ldc : i*ldc+n]
			ai := a[i*lda : i*lda+k]
			for l := l0; l < l1; l++ {
				t := alpha * ai[l]
				if t == 0 {
					continue
				}
				bl := b[l*ldb : l*ldb+n]
				for j, bv := range bl {
					ci[j] += t * bv
				}
			}
		}
	}
}

// gemmTN: A is stored [k, m], used as its transpose. Iterating l in the outer
// loop keeps both the A row and the B row sequential.
func gemmTN[T tensor.DType](m, n, k int, alpha T, a []T, lda int, b []T, ldb int, c []T, ldc int) {
	for l := 0; l < k; l++ {
		al := a[l*lda : l*lda+m]
		bl := b[l*ldb : l*ldb+n]
		for i := 0; i < m; i++ {
			t := alpha * al[i]
			if t == 0 {
				continue
			}
			ci := c[i*ldc : i*ldc+n]
			for j, bv := range bl {
				ci[j] += t * bv
			}
		}
	}
}

// gemmNT: B is stored [n, k], used as its transpose, computing output rows
// [i0, i1). Both operands are read sequentially by the inner dot product.
func gemmNT[T tensor.DType](i0, i1, n, k int, alpha T, a []T, lda int, b []T, ldb int, c []T, ldc int) {
	for i := i0; i < i1; i++ {
		ai := a[i*lda : i*lda+k]
		ci := c[i*ldc : i*ldc+n]
		for j := 0; j < n; j++ {
			bj := b[j*ldb : j*ldb+k]
			var sum T
			for l, av := range ai {
				sum += av * bj[l]
			}
			ci[j] += alpha * sum
		}
	}
}

// gemmTT: both operands transposed, computing output rows [i0, i1). Rare in
// practice (the recurrence engines never issue it) but kept for a complete
// Context contract.
func gemmTT[T tensor.DType](i0, i1, n, k int, alpha T, a []T, lda int, b []T, ldb int, c []T, ldc int) {
	for i := i0; i < i1; i++ {
		ci := c[i*ldc : i*ldc+n]
		for j := 0; j < n; j++ {
			bj := b[j*ldb : j*ldb+k]
			var sum T
			for l := 0; l < k; l++ {
				sum += a[l*lda+i] * bj[l]
			}
			ci[j] += alpha * sum
		}
	}
}
