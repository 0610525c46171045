package main

import (
	"context"
	"fmt"
	"os"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/recur-ml/recur/backend/webgpu"
	"github.com/recur-ml/recur/blas"
	"github.com/recur-ml/recur/tensor"
)

type deviceInfo struct {
	Device    string `json:"device"`
	Available bool   `json:"available"`
	Name      string `json:"name,omitempty"`
	Error     string `json:"error,omitempty"`
}

func devicesCmd() *cli.Command {
	var jsonOut bool

	return &cli.Command{
		Name:  "devices",
		Usage: "List available GEMM execution contexts",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "json", Usage: "emit machine-readable JSON", Destination: &jsonOut},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			infos := probeDevices()

			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}

			for _, info := range infos {
				if info.Available {
					fmt.Printf("%-8s available  %s\n", info.Device, info.Name)
				} else {
					fmt.Printf("%-8s unavailable  %s\n", info.Device, info.Error)
				}
			}
			return nil
		},
	}
}

func probeDevices() []deviceInfo {
	infos := make([]deviceInfo, 0, 2)

	// CPU is always available.
	cpuCtx, err := blas.ContextFor(tensor.CPU)
	info := deviceInfo{Device: "cpu", Available: err == nil}
	if err != nil {
		info.Error = err.Error()
	} else {
		info.Name = cpuCtx.Name()
	}
	infos = append(infos, info)

	info = deviceInfo{Device: "webgpu"}
	if !webgpu.IsAvailable() {
		info.Error = "no WebGPU adapter found"
	} else if gpuCtx, err := blas.ContextFor(tensor.WebGPU); err != nil {
		info.Error = err.Error()
	} else {
		info.Available = true
		info.Name = gpuCtx.Name()
	}
	infos = append(infos, info)

	return infos
}
