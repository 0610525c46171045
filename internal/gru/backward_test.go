package gru_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/recur-ml/recur/internal/backend/cpu"
	"github.com/recur-ml/recur/internal/gru"
)

// gradProblem is one backward-pass test case: random parameters and inputs
// for a fixed problem size, plus the loss weights of the scalar loss
// sum(w * h) that the finite-difference reference differentiates.
type gradProblem struct {
	steps, n, c, hs int
	p               *gru.Params[float64]
	x, h0, lossW    []float64
	zoneoutProb     float64
	mask            []float64
}

func newGradProblem(t *testing.T, seed int64, steps, n, c, hs int, zoneoutProb float64) *gradProblem {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))

	gp := &gradProblem{
		steps: steps, n: n, c: c, hs: hs,
		p:           randParams(rng, c, hs),
		x:           randVec(rng, steps*n*c),
		h0:          randVec(rng, n*hs),
		lossW:       randVec(rng, steps*n*hs),
		zoneoutProb: zoneoutProb,
	}
	if zoneoutProb > 0 {
		gp.mask = make([]float64, steps*n*hs)
		for i := range gp.mask {
			if rng.Float64() >= zoneoutProb {
				gp.mask[i] = 1
			}
		}
	}
	return gp
}

// loss runs a training-mode forward pass and reduces h against the loss
// weights. v receives the recorded intermediate when non-nil.
func (gp *gradProblem) loss(t *testing.T, v []float64) float64 {
	t.Helper()
	fp, err := gru.NewForwardPass[float64](true, gp.n, gp.c, gp.hs, cpu.New())
	if err != nil {
		t.Fatalf("NewForwardPass: %v", err)
	}
	h := make([]float64, gp.steps*gp.n*gp.hs)
	if v == nil {
		v = make([]float64, gp.steps*gp.n*4*gp.hs)
	}
	if err := fp.Run(gp.steps, gp.p, gp.x, gp.h0, h, v, gp.zoneoutProb, gp.mask); err != nil {
		t.Fatalf("forward Run: %v", err)
	}
	var l float64
	for i, hv := range h {
		l += gp.lossW[i] * hv
	}
	return l
}

type gradients struct {
	dx, dW, dR, dbx, dbr, dh []float64
}

// analytic runs the forward pass to record v, then the backward pass, and
// returns all gradients.
func (gp *gradProblem) analytic(t *testing.T) *gradients {
	t.Helper()
	gh := 3 * gp.hs

	v := make([]float64, gp.steps*gp.n*4*gp.hs)
	h := make([]float64, gp.steps*gp.n*gp.hs)
	fp, _ := gru.NewForwardPass[float64](true, gp.n, gp.c, gp.hs, cpu.New())
	if err := fp.Run(gp.steps, gp.p, gp.x, gp.h0, h, v, gp.zoneoutProb, gp.mask); err != nil {
		t.Fatalf("forward Run: %v", err)
	}

	bp, err := gru.NewBackwardPass[float64](gp.n, gp.c, gp.hs, cpu.New())
	if err != nil {
		t.Fatalf("NewBackwardPass: %v", err)
	}
	g := &gradients{
		dx:  make([]float64, gp.steps*gp.n*gp.c),
		dW:  make([]float64, gp.c*gh),
		dR:  make([]float64, gp.hs*gh),
		dbx: make([]float64, gh),
		dbr: make([]float64, gh),
		dh:  make([]float64, gp.n*gp.hs),
	}
	if err := bp.Run(gp.steps, gp.p, gp.x, gp.h0, h, v, gp.lossW,
		g.dx, g.dW, g.dR, g.dbx, g.dbr, g.dh, gp.mask); err != nil {
		t.Fatalf("backward Run: %v", err)
	}
	return g
}

// checkNumeric compares analytic against central finite differences for every
// element of buf, perturbing buf in place.
func (gp *gradProblem) checkNumeric(t *testing.T, name string, buf, analytic []float64) {
	t.Helper()
	const eps = 1e-6
	for i := range buf {
		orig := buf[i]
		buf[i] = orig + eps
		lp := gp.loss(t, nil)
		buf[i] = orig - eps
		lm := gp.loss(t, nil)
		buf[i] = orig

		numeric := (lp - lm) / (2 * eps)
		denom := math.Max(math.Abs(numeric), math.Abs(analytic[i]))
		if denom < 1e-8 {
			continue
		}
		if relErr := math.Abs(numeric-analytic[i]) / denom; relErr > 1e-5 {
			t.Fatalf("%s[%d]: analytic %g vs numeric %g (rel err %.3e)",
				name, i, analytic[i], numeric, relErr)
		}
	}
}

func (gp *gradProblem) checkAll(t *testing.T) {
	g := gp.analytic(t)
	gp.checkNumeric(t, "dW", gp.p.Kernel, g.dW)
	gp.checkNumeric(t, "dR", gp.p.RecurrentKernel, g.dR)
	gp.checkNumeric(t, "dbx", gp.p.Bias, g.dbx)
	gp.checkNumeric(t, "dbr", gp.p.RecurrentBias, g.dbr)
	gp.checkNumeric(t, "dx", gp.x, g.dx)
	gp.checkNumeric(t, "dh0", gp.h0, g.dh)
}

func TestBackwardGradients(t *testing.T) {
	newGradProblem(t, 11, 4, 2, 3, 5, 0).checkAll(t)
}

func TestBackwardGradientsZoneout(t *testing.T) {
	newGradProblem(t, 12, 4, 2, 3, 5, 0.5).checkAll(t)
}

func TestBackwardGradientsSingleStep(t *testing.T) {
	newGradProblem(t, 13, 1, 1, 2, 3, 0).checkAll(t)
}

// TestBackwardRunZeroesAccumulators poisons every accumulator before the call
// and checks that Run's results are identical to a call with fresh buffers.
func TestBackwardRunZeroesAccumulators(t *testing.T) {
	gp := newGradProblem(t, 14, 3, 2, 2, 4, 0)
	clean := gp.analytic(t)

	gh := 3 * gp.hs
	v := make([]float64, gp.steps*gp.n*4*gp.hs)
	h := make([]float64, gp.steps*gp.n*gp.hs)
	fp, _ := gru.NewForwardPass[float64](true, gp.n, gp.c, gp.hs, cpu.New())
	if err := fp.Run(gp.steps, gp.p, gp.x, gp.h0, h, v, 0, nil); err != nil {
		t.Fatalf("forward Run: %v", err)
	}

	poison := func(n int) []float64 {
		s := make([]float64, n)
		for i := range s {
			s[i] = math.NaN()
		}
		return s
	}
	dx := poison(gp.steps * gp.n * gp.c)
	dW := poison(gp.c * gh)
	dR := poison(gp.hs * gh)
	dbx := poison(gh)
	dbr := poison(gh)
	dh := poison(gp.n * gp.hs)

	bp, _ := gru.NewBackwardPass[float64](gp.n, gp.c, gp.hs, cpu.New())
	if err := bp.Run(gp.steps, gp.p, gp.x, gp.h0, h, v, gp.lossW,
		dx, dW, dR, dbx, dbr, dh, nil); err != nil {
		t.Fatalf("backward Run: %v", err)
	}

	for name, pair := range map[string][2][]float64{
		"dx":  {dx, clean.dx},
		"dW":  {dW, clean.dW},
		"dR":  {dR, clean.dR},
		"dbx": {dbx, clean.dbx},
		"dbr": {dbr, clean.dbr},
		"dh":  {dh, clean.dh},
	} {
		for i := range pair[0] {
			if math.Abs(pair[0][i]-pair[1][i]) > 1e-12 {
				t.Fatalf("%s[%d] = %g after poisoned buffers, want %g",
					name, i, pair[0][i], pair[1][i])
			}
		}
	}
}

// TestBackwardBatchAdditivity: parameter gradients over a batch must equal
// the sum of per-sequence gradients, and dx must be the per-sequence dx.
func TestBackwardBatchAdditivity(t *testing.T) {
	const steps, c, hs = 3, 2, 3
	rng := rand.New(rand.NewSource(15))
	gh := 3 * hs

	p := randParams(rng, c, hs)
	xA := randVec(rng, steps*c)
	xB := randVec(rng, steps*c)
	wA := randVec(rng, steps*hs)
	wB := randVec(rng, steps*hs)

	run := func(n int, x, lossW []float64) *gradients {
		fp, err := gru.NewForwardPass[float64](true, n, c, hs, cpu.New())
		if err != nil {
			t.Fatalf("NewForwardPass: %v", err)
		}
		h := make([]float64, steps*n*hs)
		v := make([]float64, steps*n*4*hs)
		if err := fp.Run(steps, p, x, nil, h, v, 0, nil); err != nil {
			t.Fatalf("forward Run: %v", err)
		}
		bp, err := gru.NewBackwardPass[float64](n, c, hs, cpu.New())
		if err != nil {
			t.Fatalf("NewBackwardPass: %v", err)
		}
		g := &gradients{
			dx:  make([]float64, steps*n*c),
			dW:  make([]float64, c*gh),
			dR:  make([]float64, hs*gh),
			dbx: make([]float64, gh),
			dbr: make([]float64, gh),
		}
		if err := bp.Run(steps, p, x, nil, h, v, lossW,
			g.dx, g.dW, g.dR, g.dbx, g.dbr, nil, nil); err != nil {
			t.Fatalf("backward Run: %v", err)
		}
		return g
	}

	// Interleave the two sequences into one N=2 batch: x[t] = [xA[t]; xB[t]].
	xBatch := make([]float64, steps*2*c)
	wBatch := make([]float64, steps*2*hs)
	for st := 0; st < steps; st++ {
		copy(xBatch[st*2*c:], xA[st*c:(st+1)*c])
		copy(xBatch[st*2*c+c:], xB[st*c:(st+1)*c])
		copy(wBatch[st*2*hs:], wA[st*hs:(st+1)*hs])
		copy(wBatch[st*2*hs+hs:], wB[st*hs:(st+1)*hs])
	}

	batched := run(2, xBatch, wBatch)
	gA := run(1, xA, wA)
	gB := run(1, xB, wB)

	sumCheck := func(name string, got, a, b []float64) {
		for i := range got {
			want := a[i] + b[i]
			if math.Abs(got[i]-want) > 1e-10 {
				t.Fatalf("%s[%d] = %g, want per-sequence sum %g", name, i, got[i], want)
			}
		}
	}
	sumCheck("dW", batched.dW, gA.dW, gB.dW)
	sumCheck("dR", batched.dR, gA.dR, gB.dR)
	sumCheck("dbx", batched.dbx, gA.dbx, gB.dbx)
	sumCheck("dbr", batched.dbr, gA.dbr, gB.dbr)

	for st := 0; st < steps; st++ {
		for k := 0; k < c; k++ {
			if math.Abs(batched.dx[st*2*c+k]-gA.dx[st*c+k]) > 1e-10 {
				t.Fatalf("dx sequence A diverges at step %d col %d", st, k)
			}
			if math.Abs(batched.dx[st*2*c+c+k]-gB.dx[st*c+k]) > 1e-10 {
				t.Fatalf("dx sequence B diverges at step %d col %d", st, k)
			}
		}
	}
}

// TestBackwardBatchPermutation: permuting the batch axis consistently across
// all inputs must permute dx and dh rows identically and leave the summed
// parameter gradients unchanged.
func TestBackwardBatchPermutation(t *testing.T) {
	const steps, n, c, hs = 3, 4, 2, 3
	rng := rand.New(rand.NewSource(16))
	gh := 3 * hs
	perm := []int{2, 0, 3, 1}

	p := randParams(rng, c, hs)
	x := randVec(rng, steps*n*c)
	h0 := randVec(rng, n*hs)
	lossW := randVec(rng, steps*n*hs)

	// permuteRows reorders the batch axis of a [steps, n, width] buffer.
	permuteRows := func(buf []float64, width int) []float64 {
		out := make([]float64, len(buf))
		for st := 0; st < steps; st++ {
			for nb := 0; nb < n; nb++ {
				copy(out[(st*n+nb)*width:(st*n+nb+1)*width],
					buf[(st*n+perm[nb])*width:(st*n+perm[nb]+1)*width])
			}
		}
		return out
	}
	permuteBatch := func(buf []float64, width int) []float64 {
		out := make([]float64, len(buf))
		for nb := 0; nb < n; nb++ {
			copy(out[nb*width:(nb+1)*width], buf[perm[nb]*width:(perm[nb]+1)*width])
		}
		return out
	}

	run := func(x, h0, lossW []float64) *gradients {
		fp, err := gru.NewForwardPass[float64](true, n, c, hs, cpu.New())
		if err != nil {
			t.Fatalf("NewForwardPass: %v", err)
		}
		h := make([]float64, steps*n*hs)
		v := make([]float64, steps*n*4*hs)
		if err := fp.Run(steps, p, x, h0, h, v, 0, nil); err != nil {
			t.Fatalf("forward Run: %v", err)
		}
		bp, err := gru.NewBackwardPass[float64](n, c, hs, cpu.New())
		if err != nil {
			t.Fatalf("NewBackwardPass: %v", err)
		}
		g := &gradients{
			dx:  make([]float64, steps*n*c),
			dW:  make([]float64, c*gh),
			dR:  make([]float64, hs*gh),
			dbx: make([]float64, gh),
			dbr: make([]float64, gh),
			dh:  make([]float64, n*hs),
		}
		if err := bp.Run(steps, p, x, h0, h, v, lossW,
			g.dx, g.dW, g.dR, g.dbx, g.dbr, g.dh, nil); err != nil {
			t.Fatalf("backward Run: %v", err)
		}
		return g
	}

	base := run(x, h0, lossW)
	permuted := run(permuteRows(x, c), permuteBatch(h0, hs), permuteRows(lossW, hs))

	for name, pair := range map[string][2][]float64{
		"dW":  {permuted.dW, base.dW},
		"dR":  {permuted.dR, base.dR},
		"dbx": {permuted.dbx, base.dbx},
		"dbr": {permuted.dbr, base.dbr},
	} {
		for i := range pair[0] {
			if math.Abs(pair[0][i]-pair[1][i]) > 1e-12 {
				t.Fatalf("%s[%d] changed under batch permutation: %g vs %g",
					name, i, pair[0][i], pair[1][i])
			}
		}
	}

	wantDx := permuteRows(base.dx, c)
	for i := range wantDx {
		if math.Abs(permuted.dx[i]-wantDx[i]) > 1e-12 {
			t.Fatalf("dx[%d] not permuted consistently: %g vs %g", i, permuted.dx[i], wantDx[i])
		}
	}
	wantDh := permuteBatch(base.dh, hs)
	for i := range wantDh {
		if math.Abs(permuted.dh[i]-wantDh[i]) > 1e-12 {
			t.Fatalf("dh[%d] not permuted consistently: %g vs %g", i, permuted.dh[i], wantDh[i])
		}
	}
}

// TestBackwardFloat32Tolerance: single-precision gradients track the double
// precision ones to well under 1e-3 relative error on a small problem.
func TestBackwardFloat32Tolerance(t *testing.T) {
	const steps, n, c, hs = 3, 2, 2, 3
	gh := 3 * hs
	gp := newGradProblem(t, 17, steps, n, c, hs, 0)
	g64 := gp.analytic(t)

	p32 := &gru.Params[float32]{
		Kernel:          toF32(gp.p.Kernel),
		RecurrentKernel: toF32(gp.p.RecurrentKernel),
		Bias:            toF32(gp.p.Bias),
		RecurrentBias:   toF32(gp.p.RecurrentBias),
	}
	x32 := toF32(gp.x)
	h032 := toF32(gp.h0)

	ctx := cpu.New()
	fp, _ := gru.NewForwardPass[float32](true, n, c, hs, ctx)
	h := make([]float32, steps*n*hs)
	v := make([]float32, steps*n*4*hs)
	if err := fp.Run(steps, p32, x32, h032, h, v, 0, nil); err != nil {
		t.Fatalf("float32 forward Run: %v", err)
	}

	bp, _ := gru.NewBackwardPass[float32](n, c, hs, ctx)
	dx := make([]float32, steps*n*c)
	dW := make([]float32, c*gh)
	dR := make([]float32, hs*gh)
	dbx := make([]float32, gh)
	dbr := make([]float32, gh)
	if err := bp.Run(steps, p32, x32, h032, h, v, toF32(gp.lossW),
		dx, dW, dR, dbx, dbr, nil, nil); err != nil {
		t.Fatalf("float32 backward Run: %v", err)
	}

	check := func(name string, got32 []float32, want64 []float64) {
		for i := range got32 {
			denom := math.Max(math.Abs(want64[i]), 1)
			if relErr := math.Abs(float64(got32[i])-want64[i]) / denom; relErr > 1e-3 {
				t.Fatalf("%s[%d]: float32 %g vs float64 %g (rel err %.3e)",
					name, i, got32[i], want64[i], relErr)
			}
		}
	}
	check("dW", dW, g64.dW)
	check("dR", dR, g64.dR)
	check("dbx", dbx, g64.dbx)
	check("dbr", dbr, g64.dbr)
	check("dx", dx, g64.dx)
}

func TestBackwardZeroSteps(t *testing.T) {
	const n, c, hs = 2, 2, 3
	gh := 3 * hs

	bp, err := gru.NewBackwardPass[float64](n, c, hs, cpu.New())
	if err != nil {
		t.Fatalf("NewBackwardPass: %v", err)
	}
	p := &gru.Params[float64]{
		Kernel:          make([]float64, c*gh),
		RecurrentKernel: make([]float64, hs*gh),
		Bias:            make([]float64, gh),
		RecurrentBias:   make([]float64, gh),
	}

	dW := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	dh := make([]float64, n*hs)
	for i := range dh {
		dh[i] = 99
	}
	if err := bp.Run(0, p, nil, nil, nil, nil, nil,
		nil, dW, make([]float64, hs*gh), make([]float64, gh), make([]float64, gh),
		dh, nil); err != nil {
		t.Fatalf("zero-step Run: %v", err)
	}
	for i, v := range dW {
		if v != 0 {
			t.Fatalf("dW[%d] = %g after zero-step run, want 0", i, v)
		}
	}
	for i, v := range dh {
		if v != 0 {
			t.Fatalf("dh[%d] = %g after zero-step run, want 0", i, v)
		}
	}
}

func TestBackwardValidation(t *testing.T) {
	const n, c, hs = 1, 2, 3
	gh := 3 * hs
	bp, err := gru.NewBackwardPass[float64](n, c, hs, cpu.New())
	if err != nil {
		t.Fatalf("NewBackwardPass: %v", err)
	}
	p := &gru.Params[float64]{
		Kernel:          make([]float64, c*gh),
		RecurrentKernel: make([]float64, hs*gh),
		Bias:            make([]float64, gh),
		RecurrentBias:   make([]float64, gh),
	}

	steps := 2
	x := make([]float64, steps*n*c)
	h := make([]float64, steps*n*hs)
	v := make([]float64, steps*n*4*hs)
	dhNew := make([]float64, steps*n*hs)
	dx := make([]float64, steps*n*c)
	dW := make([]float64, c*gh)
	dR := make([]float64, hs*gh)
	dbx := make([]float64, gh)
	dbr := make([]float64, gh)

	if err := bp.Run(steps, p, x, nil, h, v[:1], dhNew, dx, dW, dR, dbx, dbr, nil, nil); err == nil {
		t.Error("expected error for short v")
	}
	if err := bp.Run(steps, p, x, nil, h, v, dhNew[:1], dx, dW, dR, dbx, dbr, nil, nil); err == nil {
		t.Error("expected error for short dh_new")
	}
	if err := bp.Run(steps, p, x, nil, h, v, dhNew, dx, dW[:1], dR, dbx, dbr, nil, nil); err == nil {
		t.Error("expected error for short dW")
	}
	if err := bp.Run(-1, p, nil, nil, nil, nil, nil, nil, dW, dR, dbx, dbr, nil, nil); err == nil {
		t.Error("expected error for negative steps")
	}
	if _, err := gru.NewBackwardPass[float64](0, c, hs, cpu.New()); err == nil {
		t.Error("expected error for zero batch size")
	}
}
