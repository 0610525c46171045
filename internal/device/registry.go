// Package device owns process-wide device management: a registry of GEMM
// execution contexts, at most one per device, created lazily and kept alive
// until process shutdown.
package device

import (
	"fmt"
	"sync"

	"github.com/recur-ml/recur/internal/backend/cpu"
	"github.com/recur-ml/recur/internal/backend/webgpu"
	"github.com/recur-ml/recur/internal/blas"
	"github.com/recur-ml/recur/internal/tensor"
)

// Registry is an explicit get-or-create map of per-device execution contexts.
// The mutex is held across context creation, which is the one-time
// initialization guarantee: two goroutines racing on the first use of a
// device cannot both construct a context for it.
type Registry struct {
	mu       sync.Mutex
	contexts map[tensor.Device]blas.Context
}

// NewRegistry creates an empty context registry.
func NewRegistry() *Registry {
	return &Registry{
		contexts: make(map[tensor.Device]blas.Context),
	}
}

// ContextFor returns the execution context for the given device, creating it
// on first use. Creation failures (no accelerator, missing native library)
// are returned to the caller and not cached, so a later call may succeed if
// the environment changed; a successfully created context is never destroyed.
func (r *Registry) ContextFor(d tensor.Device) (blas.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ctx, ok := r.contexts[d]; ok {
		return ctx, nil
	}

	var (
		ctx blas.Context
		err error
	)
	switch d {
	case tensor.CPU:
		ctx = cpu.New()
	case tensor.WebGPU:
		ctx, err = webgpu.New()
	default:
		err = fmt.Errorf("device: no execution context for device %s", d)
	}
	if err != nil {
		return nil, err
	}

	r.contexts[d] = ctx
	return ctx, nil
}

// Devices returns the devices that currently hold a live context.
func (r *Registry) Devices() []tensor.Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices := make([]tensor.Device, 0, len(r.contexts))
	for d := range r.contexts {
		devices = append(devices, d)
	}
	return devices
}

// defaultRegistry is the process-wide registry used by ContextFor.
var defaultRegistry = NewRegistry()

// ContextFor returns a context from the process-wide registry.
func ContextFor(d tensor.Device) (blas.Context, error) {
	return defaultRegistry.ContextFor(d)
}
