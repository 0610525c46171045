// Package webgpu implements the WebGPU GEMM execution context.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
package webgpu

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/recur-ml/recur/internal/blas"
	"github.com/recur-ml/recur/internal/tensor"
)

// Context executes GEMM operations on a WebGPU device. One Context owns the
// instance/adapter/device/queue chain for its device; compiled shaders and
// compute pipelines are cached for the lifetime of the context. GEMMs issued
// against one Context are serialized on its queue.
type Context struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	// Shader and pipeline cache
	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex

	// Serializes whole GEMM dispatches; see Sgemm.
	submitMu sync.Mutex

	adapterInfo *wgpu.AdapterInfoGo
}

// Compile-time check that Context implements blas.Context.
var _ blas.Context = (*Context)(nil)

// New creates a new WebGPU execution context.
// Returns an error if WebGPU is not available or initialization fails.
func New() (ctx *Context, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			ctx = nil
			err = fmt.Errorf("webgpu: native library not available: %v", r)
		}
	}()

	instance, instanceErr := wgpu.CreateInstance(nil)
	if instanceErr != nil {
		return nil, fmt.Errorf("webgpu: failed to create instance: %w", instanceErr)
	}
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %w", adapterErr)
	}

	adapterInfo, _ := adapter.GetInfo()

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", deviceErr)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	return &Context{
		instance:    instance,
		adapter:     adapter,
		device:      device,
		queue:       queue,
		shaders:     make(map[string]*wgpu.ShaderModule),
		pipelines:   make(map[string]*wgpu.ComputePipeline),
		adapterInfo: adapterInfo,
	}, nil
}

// Release releases all WebGPU resources.
// Must be called when the context is no longer needed.
func (ctx *Context) Release() {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	for _, p := range ctx.pipelines {
		p.Release()
	}
	ctx.pipelines = nil

	for _, s := range ctx.shaders {
		s.Release()
	}
	ctx.shaders = nil

	if ctx.queue != nil {
		ctx.queue.Release()
		ctx.queue = nil
	}
	if ctx.device != nil {
		ctx.device.Release()
		ctx.device = nil
	}
	if ctx.adapter != nil {
		ctx.adapter.Release()
		ctx.adapter = nil
	}
	if ctx.instance != nil {
		ctx.instance.Release()
		ctx.instance = nil
	}
}

// Name returns the context description.
func (ctx *Context) Name() string {
	if ctx.adapterInfo != nil {
		return fmt.Sprintf("WebGPU (%s %s)", ctx.adapterInfo.Device, ctx.adapterInfo.Vendor)
	}
	return "WebGPU"
}

// Device returns the compute device.
func (ctx *Context) Device() tensor.Device {
	return tensor.WebGPU
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return false
	}
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()

	return true
}

// compileShader compiles WGSL shader code into a ShaderModule.
// Results are cached in the Context's shaders map.
func (ctx *Context) compileShader(name, code string) *wgpu.ShaderModule {
	ctx.mu.RLock()
	if shader, exists := ctx.shaders[name]; exists {
		ctx.mu.RUnlock()
		return shader
	}
	ctx.mu.RUnlock()

	shader := ctx.device.CreateShaderModuleWGSL(code)

	ctx.mu.Lock()
	ctx.shaders[name] = shader
	ctx.mu.Unlock()

	return shader
}

// getOrCreatePipeline returns a cached ComputePipeline or creates a new one.
func (ctx *Context) getOrCreatePipeline(name string, shader *wgpu.ShaderModule) *wgpu.ComputePipeline {
	ctx.mu.RLock()
	if pipeline, exists := ctx.pipelines[name]; exists {
		ctx.mu.RUnlock()
		return pipeline
	}
	ctx.mu.RUnlock()

	pipeline := ctx.device.CreateComputePipelineSimple(nil, shader, "main")

	ctx.mu.Lock()
	ctx.pipelines[name] = pipeline
	ctx.mu.Unlock()

	return pipeline
}

// createBuffer creates a GPU buffer and uploads initial data.
func (ctx *Context) createBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))

	buffer := ctx.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mappedSlice, data)
	buffer.Unmap()

	return buffer
}

// createUniformBuffer creates a uniform buffer with proper alignment.
// Uniform buffers require 16-byte alignment for struct fields.
func (ctx *Context) createUniformBuffer(data []byte) *wgpu.Buffer {
	size := uint64(len(data))
	alignedSize := (size + 15) &^ 15 // Round up to 16-byte boundary

	buffer := ctx.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             alignedSize,
		MappedAtCreation: wgpu.True,
	})

	mappedPtr := buffer.GetMappedRange(0, alignedSize)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), alignedSize)
	copy(mappedSlice, data)
	buffer.Unmap()

	return buffer
}

// readBuffer reads data back from a GPU buffer to CPU memory.
// Uses a staging buffer since storage buffers can't be mapped directly.
func (ctx *Context) readBuffer(srcBuffer *wgpu.Buffer, size uint64) ([]byte, error) {
	stagingBuffer := ctx.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer stagingBuffer.Release()

	encoder := ctx.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(srcBuffer, 0, stagingBuffer, 0, size)
	cmdBuffer := encoder.Finish(nil)
	ctx.queue.Submit(cmdBuffer)

	err := stagingBuffer.MapAsync(ctx.device, wgpu.MapModeRead, 0, size)
	if err != nil {
		return nil, fmt.Errorf("failed to map staging buffer: %w", err)
	}

	mappedPtr := stagingBuffer.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mappedSlice := unsafe.Slice((*byte)(mappedPtr), size)
	result := make([]byte, size)
	copy(result, mappedSlice)

	stagingBuffer.Unmap()

	return result, nil
}
