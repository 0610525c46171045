package main

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"time"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/recur-ml/recur/blas"
	"github.com/recur-ml/recur/gru"
	"github.com/recur-ml/recur/tensor"
)

// benchResult is the machine-readable output of one benchmark run.
type benchResult struct {
	Device       string  `json:"device"`
	Steps        int     `json:"steps"`
	Batch        int     `json:"batch"`
	InputSize    int     `json:"input_size"`
	HiddenSize   int     `json:"hidden_size"`
	Runs         int     `json:"runs"`
	ForwardMs    float64 `json:"forward_ms"`
	BackwardMs   float64 `json:"backward_ms,omitempty"`
	CellsPerSec  float64 `json:"cells_per_sec"`
	FinalHidMean float64 `json:"final_hidden_mean"`
}

func benchCmd() *cli.Command {
	var (
		steps      int64
		batch      int64
		inputSize  int64
		hiddenSize int64
		runs       int64
		deviceName string
		train      bool
		jsonOut    bool
	)

	return &cli.Command{
		Name:  "bench",
		Usage: "Benchmark the forward (and optionally backward) recurrence",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "steps", Aliases: []string{"t"}, Usage: "sequence length", Value: 64, Destination: &steps},
			&cli.Int64Flag{Name: "batch", Aliases: []string{"n"}, Usage: "batch size", Value: 32, Destination: &batch},
			&cli.Int64Flag{Name: "input", Aliases: []string{"c"}, Usage: "input feature size", Value: 128, Destination: &inputSize},
			&cli.Int64Flag{Name: "hidden", Aliases: []string{"H"}, Usage: "hidden size", Value: 128, Destination: &hiddenSize},
			&cli.Int64Flag{Name: "runs", Usage: "number of timed runs", Value: 5, Destination: &runs},
			&cli.StringFlag{Name: "device", Aliases: []string{"d"}, Usage: "execution device (cpu, webgpu)", Value: "cpu", Destination: &deviceName},
			&cli.BoolFlag{Name: "train", Usage: "also benchmark the backward pass", Destination: &train},
			&cli.BoolFlag{Name: "json", Usage: "emit machine-readable JSON", Destination: &jsonOut},
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

			result, err := runBench(ectx, int(steps), int(batch), int(inputSize), int(hiddenSize), int(runs), train)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			result.Device = ectx.Name()

			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}

			fmt.Printf("device:   %s\n", result.Device)
			fmt.Printf("problem:  T=%d N=%d C=%d H=%d\n", result.Steps, result.Batch, result.InputSize, result.HiddenSize)
			fmt.Printf("forward:  %.3f ms/run (%.2e cell updates/s)\n", result.ForwardMs, result.CellsPerSec)
			if train {
				fmt.Printf("backward: %.3f ms/run\n", result.BackwardMs)
			}
			return nil
		},
	}
}

func runBench(ectx blas.Context, steps, batch, inputSize, hiddenSize, runs int, train bool) (*benchResult, error) {
	rng := rand.New(rand.NewSource(42))

	p := &gru.Params[float32]{
		Kernel:          randSlice(rng, inputSize*3*hiddenSize),
		RecurrentKernel: randSlice(rng, hiddenSize*3*hiddenSize),
		Bias:            randSlice(rng, 3*hiddenSize),
		RecurrentBias:   randSlice(rng, 3*hiddenSize),
	}

	x, err := tensor.FromSlice(randSlice(rng, steps*batch*inputSize),
		tensor.Shape{steps, batch, inputSize}, tensor.CPU)
	if err != nil {
		return nil, err
	}
	h, err := tensor.NewRaw(tensor.Shape{steps, batch, hiddenSize}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, err
	}
	vWidth := 0
	if train {
		vWidth = 4 * hiddenSize
	}
	v, err := tensor.NewRaw(tensor.Shape{steps, batch, vWidth}, tensor.Float32, tensor.CPU)
	if err != nil {
		return nil, err
	}

	fwd, err := gru.NewForwardPass[float32](train, batch, inputSize, hiddenSize, ectx)
	if err != nil {
		return nil, err
	}

	var fwdTotal time.Duration
	for i := 0; i < runs; i++ {
		start := time.Now()
		if err := fwd.Run(steps, p, tensor.Elements[float32](x), nil,
			tensor.Elements[float32](h), tensor.Elements[float32](v), 0, nil); err != nil {
			return nil, err
		}
		fwdTotal += time.Since(start)
	}

	var bwdTotal time.Duration
	if train {
		bwd, err := gru.NewBackwardPass[float32](batch, inputSize, hiddenSize, ectx)
		if err != nil {
			return nil, err
		}
		dhNew := randSlice(rng, steps*batch*hiddenSize)
		dx := make([]float32, steps*batch*inputSize)
		dW := make([]float32, inputSize*3*hiddenSize)
		dR := make([]float32, hiddenSize*3*hiddenSize)
		dbx := make([]float32, 3*hiddenSize)
		dbr := make([]float32, 3*hiddenSize)

		for i := 0; i < runs; i++ {
			start := time.Now()
			if err := bwd.Run(steps, p, tensor.Elements[float32](x), nil,
				tensor.Elements[float32](h), tensor.Elements[float32](v),
				dhNew, dx, dW, dR, dbx, dbr, nil, nil); err != nil {
				return nil, err
			}
			bwdTotal += time.Since(start)
		}
	}

	fwdMs := float64(fwdTotal.Microseconds()) / 1000.0 / float64(runs)

	// Mean of the final timestep's hidden state, read through a view.
	var finalMean float64
	if steps > 0 {
		last := h.SubSlice(steps - 1)
		defer last.Release()
		for _, hv := range last.AsFloat32() {
			finalMean += float64(hv)
		}
		finalMean /= float64(last.NumElements())
	}

	result := &benchResult{
		Steps:        steps,
		Batch:        batch,
		InputSize:    inputSize,
		HiddenSize:   hiddenSize,
		Runs:         runs,
		ForwardMs:    fwdMs,
		CellsPerSec:  float64(steps*batch*hiddenSize) / (fwdMs / 1000.0),
		FinalHidMean: finalMean,
	}
	if train {
		result.BackwardMs = float64(bwdTotal.Microseconds()) / 1000.0 / float64(runs)
	}
	return result, nil
}

func randSlice(rng *rand.Rand, n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = rng.Float32()*0.2 - 0.1
	}
	return s
}
