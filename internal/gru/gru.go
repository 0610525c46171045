// Package gru implements the numerical core of a GRU layer: a time-stepped
// forward recurrence and the matching backpropagation-through-time reverse
// recurrence, batched over independent sequences.
//
// The per-gate math follows the standard GRU formulation
//
//	z[t] = sigmoid(W_z x[t] + R_z h[t-1] + bx_z + br_z)
//	r[t] = sigmoid(W_r x[t] + R_r h[t-1] + bx_r + br_r)
//	g[t] = tanh(W_g x[t] + bx_g + r[t] * (R_g h[t-1] + br_g))
//	h[t] = z[t] * h[t-1] + (1 - z[t]) * g[t]
//
// with the candidate's recurrent contribution gated by the reset gate after
// the matrix multiply, so one [H, 3H] recurrent GEMM serves all three gates.
//
// Both engines are thin stateful wrappers around a blas.Context and a fixed
// problem size; sequence and parameter buffers are owned by the caller. The
// timestep axis is strictly sequential: Iterate for step t consumes what step
// t-1 (forward) or t+1 (backward) produced, and the caller must not call into
// one engine instance from multiple goroutines.
package gru

import (
	"fmt"

	"github.com/recur-ml/recur/internal/tensor"
)

// Gate order of the column blocks in the kernels, biases and scratch buffers:
// update (z), reset (r), candidate (g).
const (
	gateZ = 0
	gateR = 1
	gateG = 2
)

// numGates is the number of gate blocks in kernels and biases.
const numGates = 3

// vWidth is the number of per-unit slots in the recorded intermediate v:
// z, r and g activations plus the candidate's recurrent pre-activation q_g.
const vWidth = 4

// Params are the read-only parameters of one GRU layer. All slices are
// row-major; the second axis of the kernels is the [z | r | g] gate blocks.
type Params[T tensor.DType] struct {
	Kernel          []T // [inputSize, 3*hiddenSize]
	RecurrentKernel []T // [hiddenSize, 3*hiddenSize]
	Bias            []T // [3*hiddenSize]
	RecurrentBias   []T // [3*hiddenSize]
}

func (p *Params[T]) validate(inputSize, hiddenSize int) error {
	if p == nil {
		return fmt.Errorf("gru: nil params")
	}
	gh := numGates * hiddenSize
	if len(p.Kernel) != inputSize*gh {
		return fmt.Errorf("gru: kernel has %d elements, want %d ([%d, %d])",
			len(p.Kernel), inputSize*gh, inputSize, gh)
	}
	if len(p.RecurrentKernel) != hiddenSize*gh {
		return fmt.Errorf("gru: recurrent kernel has %d elements, want %d ([%d, %d])",
			len(p.RecurrentKernel), hiddenSize*gh, hiddenSize, gh)
	}
	if len(p.Bias) != gh {
		return fmt.Errorf("gru: bias has %d elements, want %d", len(p.Bias), gh)
	}
	if len(p.RecurrentBias) != gh {
		return fmt.Errorf("gru: recurrent bias has %d elements, want %d", len(p.RecurrentBias), gh)
	}
	return nil
}

// hasZoneout reports whether zoneout is active for a call. A probability of
// zero and an absent mask are equivalent: both disable zoneout entirely.
func hasZoneout[T tensor.DType](prob T, mask []T) bool {
	return prob != 0 && len(mask) != 0
}

func checkLen[T tensor.DType](name string, buf []T, want int) error {
	if len(buf) != want {
		return fmt.Errorf("gru: %s has %d elements, want %d", name, len(buf), want)
	}
	return nil
}

func checkOptionalLen[T tensor.DType](name string, buf []T, want int) error {
	if buf == nil {
		return nil
	}
	return checkLen(name, buf, want)
}
