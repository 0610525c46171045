package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/urfave/cli/v3"

	"github.com/recur-ml/recur/blas"
	"github.com/recur-ml/recur/gru"
)

func checkCmd() *cli.Command {
	var (
		steps      int64
		batch      int64
		inputSize  int64
		hiddenSize int64
		zoneout    float64
		eps        float64
		tol        float64
		deviceName string
	)

	return &cli.Command{
		Name:  "check",
		Usage: "Verify analytic gradients against finite differences",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "steps", Aliases: []string{"t"}, Usage: "sequence length", Value: 4, Destination: &steps},
			&cli.Int64Flag{Name: "batch", Aliases: []string{"n"}, Usage: "batch size", Value: 2, Destination: &batch},
			&cli.Int64Flag{Name: "input", Aliases: []string{"c"}, Usage: "input feature size", Value: 3, Destination: &inputSize},
			&cli.Int64Flag{Name: "hidden", Aliases: []string{"H"}, Usage: "hidden size", Value: 5, Destination: &hiddenSize},
			&cli.Float64Flag{Name: "zoneout", Usage: "zoneout probability (0 disables)", Value: 0, Destination: &zoneout},
			&cli.Float64Flag{Name: "eps", Usage: "finite-difference step", Value: 1e-6, Destination: &eps},
			&cli.Float64Flag{Name: "tol", Usage: "maximum allowed relative error", Value: 1e-5, Destination: &tol},
			&cli.StringFlag{Name: "device", Aliases: []string{"d"}, Usage: "execution device (cpu, webgpu)", Value: "cpu", Destination: &deviceName},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			dev, err := parseDevice(deviceName)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			ectx, err := blas.ContextFor(dev)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: create context: %v", err), 1)
			}

			maxErr, err := gradCheck(ectx, int(steps), int(batch), int(inputSize), int(hiddenSize), zoneout, eps)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			fmt.Printf("max relative error: %.3e (tolerance %.1e)\n", maxErr, tol)
			if maxErr > tol {
				return cli.Exit("gradient check FAILED", 1)
			}
			fmt.Println("gradient check passed")
			return nil
		},
	}
}

// gradCheck compares the analytic gradients of a scalar loss sum(w * h)
// against central finite differences over every parameter and input element.
// Double precision keeps the finite-difference noise floor well below the
// reported errors.
func gradCheck(ectx blas.Context, steps, batch, inputSize, hiddenSize int, zoneoutProb, eps float64) (float64, error) {
	rng := rand.New(rand.NewSource(7))
	randf := func(n int) []float64 {
		s := make([]float64, n)
		for i := range s {
			s[i] = rng.Float64()*2 - 1
		}
		return s
	}

	gh := 3 * hiddenSize
	p := &gru.Params[float64]{
		Kernel:          randf(inputSize * gh),
		RecurrentKernel: randf(hiddenSize * gh),
		Bias:            randf(gh),
		RecurrentBias:   randf(gh),
	}
	x := randf(steps * batch * inputSize)
	lossW := randf(steps * batch * hiddenSize)

	var mask []float64
	if zoneoutProb > 0 {
		mask = make([]float64, steps*batch*hiddenSize)
		for i := range mask {
			if rng.Float64() >= zoneoutProb {
				mask[i] = 1
			}
		}
	}

	fwd, err := gru.NewForwardPass[float64](true, batch, inputSize, hiddenSize, ectx)
	if err != nil {
		return 0, err
	}

	loss := func() (float64, error) {
		h := make([]float64, steps*batch*hiddenSize)
		v := make([]float64, steps*batch*4*hiddenSize)
		if err := fwd.Run(steps, p, x, nil, h, v, zoneoutProb, mask); err != nil {
			return 0, err
		}
		var l float64
		for i, hv := range h {
			l += lossW[i] * hv
		}
		return l, nil
	}

	// Analytic gradients.
	h := make([]float64, steps*batch*hiddenSize)
	v := make([]float64, steps*batch*4*hiddenSize)
	if err := fwd.Run(steps, p, x, nil, h, v, zoneoutProb, mask); err != nil {
		return 0, err
	}
	bwd, err := gru.NewBackwardPass[float64](batch, inputSize, hiddenSize, ectx)
	if err != nil {
		return 0, err
	}
	dx := make([]float64, steps*batch*inputSize)
	dW := make([]float64, inputSize*gh)
	dR := make([]float64, hiddenSize*gh)
	dbx := make([]float64, gh)
	dbr := make([]float64, gh)
	if err := bwd.Run(steps, p, x, nil, h, v, lossW, dx, dW, dR, dbx, dbr, nil, mask); err != nil {
		return 0, err
	}

	var maxErr float64
	checkBuf := func(buf, analytic []float64) error {
		for i := range buf {
			orig := buf[i]
			buf[i] = orig + eps
			lp, err := loss()
			if err != nil {
				return err
			}
			buf[i] = orig - eps
			lm, err := loss()
			if err != nil {
				return err
			}
			buf[i] = orig

			numeric := (lp - lm) / (2 * eps)
			denom := math.Max(math.Abs(numeric), math.Abs(analytic[i]))
			if denom < 1e-8 {
				continue
			}
			relErr := math.Abs(numeric-analytic[i]) / denom
			if relErr > maxErr {
				maxErr = relErr
			}
		}
		return nil
	}

	for _, pair := range []struct{ buf, analytic []float64 }{
		{p.Kernel, dW},
		{p.RecurrentKernel, dR},
		{p.Bias, dbx},
		{p.RecurrentBias, dbr},
		{x, dx},
	} {
		if err := checkBuf(pair.buf, pair.analytic); err != nil {
			return 0, err
		}
	}

	return maxErr, nil
}
