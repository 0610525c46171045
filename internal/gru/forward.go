package gru

import (
	"fmt"

	"github.com/recur-ml/recur/internal/blas"
	"github.com/recur-ml/recur/internal/tensor"
)

// ForwardPass drives the GRU forward recurrence for a fixed problem size.
// In training mode it records the per-step intermediate v needed by
// BackwardPass; inference mode skips the recording and applies zoneout as an
// expectation blend instead of a sampled mask.
type ForwardPass[T tensor.DType] struct {
	training   bool
	batchSize  int
	inputSize  int
	hiddenSize int
	ctx        blas.Context
}

// NewForwardPass creates a forward engine for a fixed {batch, input, hidden}
// problem size bound to the given execution context. No sequence-length
// dependent memory is allocated; time steps are supplied per call.
func NewForwardPass[T tensor.DType](training bool, batchSize, inputSize, hiddenSize int, ctx blas.Context) (*ForwardPass[T], error) {
	if batchSize <= 0 || inputSize <= 0 || hiddenSize <= 0 {
		return nil, fmt.Errorf("gru: invalid problem size batch=%d input=%d hidden=%d (all must be > 0)",
			batchSize, inputSize, hiddenSize)
	}
	if ctx == nil {
		return nil, fmt.Errorf("gru: nil execution context")
	}
	return &ForwardPass[T]{
		training:   training,
		batchSize:  batchSize,
		inputSize:  inputSize,
		hiddenSize: hiddenSize,
		ctx:        ctx,
	}, nil
}

// Iterate advances the recurrence by one timestep.
//
// x is the input slice [N, C] for this step, hPrev the previous hidden state
// [N, H], hOut the write target [N, H]. v [N, 4H] must be non-nil exactly in
// training mode. tmpWx [N, 3H] and tmpRh [N, 3H] are scratch owned by the
// caller for the duration of the call; Iterate computes the input projection
// into tmpWx itself (callers batching that GEMM across timesteps should use
// Run instead). zoneoutMask [N, H] is optional; zoneoutProb 0 or a nil mask
// disables zoneout.
//
// Iterate assumes shape validation already happened upstream and performs no
// bounds checks of its own.
func (fp *ForwardPass[T]) Iterate(p *Params[T], x, hPrev, hOut, v, tmpWx, tmpRh []T, zoneoutProb T, zoneoutMask []T) {
	n, c, h := fp.batchSize, fp.inputSize, fp.hiddenSize
	blas.Gemm(fp.ctx, false, false, n, numGates*h, c, T(1), x, c, p.Kernel, numGates*h, T(0), tmpWx, numGates*h)
	fp.step(p, hPrev, hOut, v, tmpWx, tmpRh, zoneoutProb, zoneoutMask)
}

// step runs the recurrent projection and the pointwise gate math for one
// timestep, assuming tmpWx already holds x[t] @ kernel.
func (fp *ForwardPass[T]) step(p *Params[T], hPrev, hOut, v, tmpWx, tmpRh []T, zoneoutProb T, zoneoutMask []T) {
	n, h := fp.batchSize, fp.hiddenSize
	gh := numGates * h

	// Recurrent projection for all three gate blocks in one GEMM.
	blas.Gemm(fp.ctx, false, false, n, gh, h, T(1), hPrev, h, p.RecurrentKernel, gh, T(0), tmpRh, gh)

	zoneout := hasZoneout(zoneoutProb, zoneoutMask)
	bx, br := p.Bias, p.RecurrentBias

	for nb := 0; nb < n; nb++ {
		wx := tmpWx[nb*gh : (nb+1)*gh]
		rh := tmpRh[nb*gh : (nb+1)*gh]
		hp := hPrev[nb*h : (nb+1)*h]
		ho := hOut[nb*h : (nb+1)*h]

		for j := 0; j < h; j++ {
			zi, ri, gi := gateZ*h+j, gateR*h+j, gateG*h+j

			qg := rh[gi] + br[gi]
			z := sigmoid(wx[zi] + bx[zi] + rh[zi] + br[zi])
			r := sigmoid(wx[ri] + bx[ri] + rh[ri] + br[ri])
			g := tanh(wx[gi] + bx[gi] + r*qg)

			cur := z*hp[j] + (1-z)*g

			if zoneout {
				if fp.training {
					// Sampled blend: mask 1 keeps the new value, mask 0
					// freezes the unit at its previous value.
					cur = (cur-hp[j])*zoneoutMask[nb*h+j] + hp[j]
				} else {
					// Expectation blend at inference time.
					cur = zoneoutProb*hp[j] + (1-zoneoutProb)*cur
				}
			}

			ho[j] = cur

			if v != nil {
				vr := v[nb*vWidth*h : (nb+1)*vWidth*h]
				vr[j] = z
				vr[h+j] = r
				vr[2*h+j] = g
				vr[3*h+j] = qg
			}
		}
	}
}

// Run performs steps sequential Iterate calls, amortizing the input
// projection GEMM across all timesteps.
//
// Buffer shapes: x [steps, N, C]; h [steps, N, H] (output); h0 [N, H] is the
// initial hidden state, nil meaning zeros; v [steps, N, 4H] (required iff the
// engine is in training mode, nil otherwise); zoneoutMask [steps, N, H] or
// nil. All dimensions are validated once before any computation; a zero
// steps count is legal and produces empty outputs.
func (fp *ForwardPass[T]) Run(steps int, p *Params[T], x, h0, h, v []T, zoneoutProb T, zoneoutMask []T) error {
	n, c, hs := fp.batchSize, fp.inputSize, fp.hiddenSize
	gh := numGates * hs

	if steps < 0 {
		return fmt.Errorf("gru: negative step count %d", steps)
	}
	if err := p.validate(c, hs); err != nil {
		return err
	}
	if err := checkLen("x", x, steps*n*c); err != nil {
		return err
	}
	if err := checkLen("h", h, steps*n*hs); err != nil {
		return err
	}
	if err := checkOptionalLen("h0", h0, n*hs); err != nil {
		return err
	}
	if fp.training {
		if err := checkLen("v", v, steps*n*vWidth*hs); err != nil {
			return err
		}
	} else if len(v) != 0 {
		return fmt.Errorf("gru: v supplied to a non-training forward pass")
	}
	if zoneoutProb < 0 || zoneoutProb > 1 {
		return fmt.Errorf("gru: zoneout probability %v outside [0, 1]", zoneoutProb)
	}
	if err := checkOptionalLen("zoneout mask", zoneoutMask, steps*n*hs); err != nil {
		return err
	}

	if steps == 0 {
		return nil
	}

	tmpWx := make([]T, steps*n*gh)
	tmpRh := make([]T, n*gh)

	// x does not depend on the recurrence, so its projection is one big GEMM
	// over all steps*N rows instead of one GEMM per timestep.
	blas.Gemm(fp.ctx, false, false, steps*n, gh, c, T(1), x, c, p.Kernel, gh, T(0), tmpWx, gh)

	hPrev := h0
	if hPrev == nil {
		hPrev = make([]T, n*hs)
	}

	for t := 0; t < steps; t++ {
		var vt []T
		if fp.training {
			vt = v[t*n*vWidth*hs : (t+1)*n*vWidth*hs]
		}
		var maskT []T
		if zoneoutMask != nil {
			maskT = zoneoutMask[t*n*hs : (t+1)*n*hs]
		}
		hOut := h[t*n*hs : (t+1)*n*hs]
		fp.step(p, hPrev, hOut, vt, tmpWx[t*n*gh:(t+1)*n*gh], tmpRh, zoneoutProb, maskT)
		hPrev = hOut
	}

	return nil
}
