// Command recur exercises the GRU recurrence kernels from the command line:
// benchmarking, gradient checking and device inspection.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/recur-ml/recur/tensor"
)

func main() {
	app := &cli.Command{
		Name:  "recur",
		Usage: "Batched GRU forward/backward kernel CLI",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			benchCmd(),
			checkCmd(),
			devicesCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// parseDevice maps a --device flag value to a tensor device.
func parseDevice(name string) (tensor.Device, error) {
	switch name {
	case "cpu":
		return tensor.CPU, nil
	case "webgpu":
		return tensor.WebGPU, nil
	default:
		return tensor.CPU, fmt.Errorf("unknown device %q (want cpu or webgpu)", name)
	}
}
