// Copyright 2025 Recur ML. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package gru provides the public API for the batched GRU forward/backward
// numerical core.
//
// ForwardPass drives h[t] = f(x[t], h[t-1], W, R, b) across T timesteps for a
// batch of independent sequences; BackwardPass drives the reverse recurrence,
// accumulating parameter gradients and per-timestep input gradients from the
// intermediates the forward pass recorded.
//
// Example:
//
//	ctx, _ := blas.ContextFor(tensor.CPU)
//	fwd, _ := gru.NewForwardPass[float32](true, batch, inputSize, hiddenSize, ctx)
//	err := fwd.Run(steps, params, x, nil, h, v, 0, nil)
package gru

import (
	"github.com/recur-ml/recur/internal/gru"
	"github.com/recur-ml/recur/tensor"

	"github.com/recur-ml/recur/blas"
)

// Params are the read-only parameters of one GRU layer.
type Params[T tensor.DType] = gru.Params[T]

// ForwardPass drives the GRU forward recurrence for a fixed problem size.
type ForwardPass[T tensor.DType] = gru.ForwardPass[T]

// BackwardPass drives backpropagation through time for a fixed problem size.
type BackwardPass[T tensor.DType] = gru.BackwardPass[T]

// NewForwardPass creates a forward engine bound to the given execution
// context. In training mode the engine records the per-step intermediate
// consumed by BackwardPass.
func NewForwardPass[T tensor.DType](training bool, batchSize, inputSize, hiddenSize int, ctx blas.Context) (*ForwardPass[T], error) {
	return gru.NewForwardPass[T](training, batchSize, inputSize, hiddenSize, ctx)
}

// NewBackwardPass creates a backward engine bound to the given execution
// context.
func NewBackwardPass[T tensor.DType](batchSize, inputSize, hiddenSize int, ctx blas.Context) (*BackwardPass[T], error) {
	return gru.NewBackwardPass[T](batchSize, inputSize, hiddenSize, ctx)
}
