package gru

import (
	"math"

	"github.com/recur-ml/recur/internal/tensor"
)

// Element-wise gate primitives. The derivatives are expressed in terms of the
// activation VALUE, not the pre-activation, so the backward pass can rebuild
// gate gradients from recorded activations without recomputing the forward
// math.

func sigmoid[T tensor.DType](x T) T {
	return T(1.0 / (1.0 + math.Exp(-float64(x))))
}

func tanh[T tensor.DType](x T) T {
	return T(math.Tanh(float64(x)))
}

// dSigmoid is the sigmoid derivative given sigmoid's output value.
func dSigmoid[T tensor.DType](sigmoidOutput T) T {
	return sigmoidOutput * (1 - sigmoidOutput)
}

// dTanh is the tanh derivative given tanh's output value.
func dTanh[T tensor.DType](tanhOutput T) T {
	return 1 - tanhOutput*tanhOutput
}
