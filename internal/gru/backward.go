package gru

import (
	"fmt"

	"github.com/recur-ml/recur/internal/blas"
	"github.com/recur-ml/recur/internal/tensor"
)

// BackwardPass drives backpropagation through time for a fixed problem size.
// It consumes the recorded intermediate v produced by a training-mode
// ForwardPass and always computes gradients; there is no inference variant.
type BackwardPass[T tensor.DType] struct {
	batchSize  int
	inputSize  int
	hiddenSize int
	ctx        blas.Context
}

// NewBackwardPass creates a backward engine for a fixed {batch, input,
// hidden} problem size bound to the given execution context.
func NewBackwardPass[T tensor.DType](batchSize, inputSize, hiddenSize int, ctx blas.Context) (*BackwardPass[T], error) {
	if batchSize <= 0 || inputSize <= 0 || hiddenSize <= 0 {
		return nil, fmt.Errorf("gru: invalid problem size batch=%d input=%d hidden=%d (all must be > 0)",
			batchSize, inputSize, hiddenSize)
	}
	if ctx == nil {
		return nil, fmt.Errorf("gru: nil execution context")
	}
	return &BackwardPass[T]{
		batchSize:  batchSize,
		inputSize:  inputSize,
		hiddenSize: hiddenSize,
		ctx:        ctx,
	}, nil
}

// Iterate processes one timestep of the reverse recurrence. It must be
// called for t = T-1 down to 0.
//
// Inputs: x [N, C] and hPrev [N, H] are the step's input and the PREVIOUS
// hidden state (the zero vector at t = 0 — the caller supplies it), v
// [N, 4H] the recorded intermediate, dhNew [N, H] the output-side gradient
// arriving at this step, zoneoutMask [N, H] optional.
//
// Outputs: dx [N, C] is overwritten; dW [C, 3H], dR [H, 3H], dbx [3H] and
// dbr [3H] are accumulated into and must start at zero before the reverse
// loop; dh [N, H] is the carried hidden-state gradient, updated in place.
// dp and dq [N, 3H] are scratch with no identity beyond the call.
//
// Iterate assumes shape validation already happened upstream and performs no
// bounds checks of its own.
func (bp *BackwardPass[T]) Iterate(p *Params[T], x, hPrev, v, dhNew, dx, dW, dR, dbx, dbr, dh, dp, dq []T, zoneoutMask []T) {
	n, c, h := bp.batchSize, bp.inputSize, bp.hiddenSize
	gh := numGates * h

	// Pointwise chain rule through the gate equations, rebuilding gate
	// derivatives from the recorded activation values.
	for nb := 0; nb < n; nb++ {
		vr := v[nb*vWidth*h : (nb+1)*vWidth*h]
		hp := hPrev[nb*h : (nb+1)*h]
		dpr := dp[nb*gh : (nb+1)*gh]
		dqr := dq[nb*gh : (nb+1)*gh]

		for j := 0; j < h; j++ {
			z := vr[j]
			r := vr[h+j]
			g := vr[2*h+j]
			qg := vr[3*h+j]

			dhTotal := dhNew[nb*h+j] + dh[nb*h+j]
			var dhThrough T
			if len(zoneoutMask) != 0 {
				// Mirror the forward blend: gradient mass for a frozen unit
				// bypasses the gate-derivative chain entirely.
				m := zoneoutMask[nb*h+j]
				dhThrough = (1 - m) * dhTotal
				dhTotal = m * dhTotal
			}

			dg := (1 - z) * dhTotal
			dz := (hp[j] - g) * dhTotal
			dpG := dTanh(g) * dg
			dqG := dpG * r
			dr := dpG * qg
			dpR := dSigmoid(r) * dr
			dpZ := dSigmoid(z) * dz

			dpr[gateZ*h+j] = dpZ
			dpr[gateR*h+j] = dpR
			dpr[gateG*h+j] = dpG

			dqr[gateZ*h+j] = dpZ
			dqr[gateR*h+j] = dpR
			dqr[gateG*h+j] = dqG

			dbx[gateZ*h+j] += dpZ
			dbx[gateR*h+j] += dpR
			dbx[gateG*h+j] += dpG

			dbr[gateZ*h+j] += dpZ
			dbr[gateR*h+j] += dpR
			dbr[gateG*h+j] += dqG

			// Straight-through and update-gate components; the recurrent
			// kernel component is added by GEMM below.
			dh[nb*h+j] = dhThrough + dhTotal*z
		}
	}

	// dx[t] = dp @ kernel^T; pure overwrite, each input feeds only its step.
	blas.Gemm(bp.ctx, false, true, n, c, gh, T(1), dp, gh, p.Kernel, gh, T(0), dx, c)

	// dW += x[t]^T @ dp and dR += h[t-1]^T @ dq; outer-product accumulation.
	blas.Gemm(bp.ctx, true, false, c, gh, n, T(1), x, c, dp, gh, T(1), dW, gh)
	blas.Gemm(bp.ctx, true, false, h, gh, n, T(1), hPrev, h, dq, gh, T(1), dR, gh)

	// dh += dq @ recurrent_kernel^T, handing the carried gradient to the
	// next (earlier) iteration.
	blas.Gemm(bp.ctx, false, true, n, h, gh, T(1), dq, gh, p.RecurrentKernel, gh, T(1), dh, h)
}

// Run performs steps reverse Iterate calls.
//
// Buffer shapes: x [steps, N, C]; h [steps, N, H] the forward outputs; h0
// [N, H] the initial hidden state (nil meaning zeros); v [steps, N, 4H];
// dhNew [steps, N, H]; dx [steps, N, C] (output); dW [C, 3H], dR [H, 3H],
// dbx and dbr [3H] (outputs); dh [N, H] receives the gradient with respect
// to h0 and may be nil when not needed; zoneoutMask [steps, N, H] or nil.
//
// Run zeroes dW, dR, dbx, dbr and dh itself before the reverse loop —
// callers have no pre-zeroing obligation. All dimensions are validated once
// before any computation; a zero steps count legally produces zero
// gradients.
func (bp *BackwardPass[T]) Run(steps int, p *Params[T], x, h0, h, v, dhNew, dx, dW, dR, dbx, dbr, dh []T, zoneoutMask []T) error {
	n, c, hs := bp.batchSize, bp.inputSize, bp.hiddenSize
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
	if err := checkLen("v", v, steps*n*vWidth*hs); err != nil {
		return err
	}
	if err := checkLen("dh_new", dhNew, steps*n*hs); err != nil {
		return err
	}
	if err := checkLen("dx", dx, steps*n*c); err != nil {
		return err
	}
	if err := checkLen("dW", dW, c*gh); err != nil {
		return err
	}
	if err := checkLen("dR", dR, hs*gh); err != nil {
		return err
	}
	if err := checkLen("dbx", dbx, gh); err != nil {
		return err
	}
	if err := checkLen("dbr", dbr, gh); err != nil {
		return err
	}
	if err := checkOptionalLen("dh", dh, n*hs); err != nil {
		return err
	}
	if err := checkOptionalLen("zoneout mask", zoneoutMask, steps*n*hs); err != nil {
		return err
	}

	if dh == nil {
		dh = make([]T, n*hs)
	}
	zero(dW)
	zero(dR)
	zero(dbx)
	zero(dbr)
	zero(dh)

	if steps == 0 {
		return nil
	}

	dp := make([]T, n*gh)
	dq := make([]T, n*gh)

	if h0 == nil {
		h0 = make([]T, n*hs)
	}

	for t := steps - 1; t >= 0; t-- {
		hPrev := h0
		if t > 0 {
			hPrev = h[(t-1)*n*hs : t*n*hs]
		}
		var maskT []T
		if zoneoutMask != nil {
			maskT = zoneoutMask[t*n*hs : (t+1)*n*hs]
		}
		bp.Iterate(p,
			x[t*n*c:(t+1)*n*c],
			hPrev,
			v[t*n*vWidth*hs:(t+1)*n*vWidth*hs],
			dhNew[t*n*hs:(t+1)*n*hs],
			dx[t*n*c:(t+1)*n*c],
			dW, dR, dbx, dbr, dh, dp, dq,
			maskT)
	}

	return nil
}

func zero[T tensor.DType](s []T) {
	for i := range s {
		s[i] = 0
	}
}
