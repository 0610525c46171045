package webgpu

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/recur-ml/recur/internal/backend/cpu"
)

// Sgemm performs single-precision matrix multiplication on the GPU.
// See blas.Context for the row-major contract. The current C extent is
// uploaded alongside A and B so that beta-accumulation happens on device,
// and the result is copied back into c respecting ldc.
func (ctx *Context) Sgemm(transA, transB bool, m, n, k int, alpha float32, a []float32, lda int, b []float32, ldb int, beta float32, c []float32, ldc int) {
	if m == 0 || n == 0 {
		return
	}
	if k == 0 || alpha == 0 {
		// Nothing to multiply; scaling C on the host avoids zero-sized
		// storage buffers.
		for i := 0; i < m; i++ {
			row := c[i*ldc : i*ldc+n]
			for j := range row {
				row[j] *= beta
			}
		}
		return
	}

	rowsA, colsA := m, k
	if transA {
		rowsA, colsA = k, m
	}
	rowsB, colsB := k, n
	if transB {
		rowsB, colsB = n, k
	}
	extentA := (rowsA-1)*lda + colsA
	extentB := (rowsB-1)*ldb + colsB
	extentC := (m-1)*ldc + n

	shader := ctx.compileShader("gemm", gemmShader)
	pipeline := ctx.getOrCreatePipeline("gemm", shader)

	// A whole dispatch (upload, compute, readback) is one critical section;
	// interleaved dispatches would race on the staged C contents.
	ctx.submitMu.Lock()
	defer ctx.submitMu.Unlock()

	bufferA := ctx.createBuffer(f32Bytes(a[:extentA]), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	defer bufferA.Release()

	bufferB := ctx.createBuffer(f32Bytes(b[:extentB]), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	defer bufferB.Release()

	bufferC := ctx.createBuffer(f32Bytes(c[:extentC]), wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc|wgpu.BufferUsageCopyDst)
	defer bufferC.Release()

	// Params layout must match the WGSL Params struct (8 u32 + 2 f32).
	params := make([]byte, 48) // 16-byte aligned
	binary.LittleEndian.PutUint32(params[0:4], uint32(m))
	binary.LittleEndian.PutUint32(params[4:8], uint32(n))
	binary.LittleEndian.PutUint32(params[8:12], uint32(k))
	binary.LittleEndian.PutUint32(params[12:16], uint32(lda))
	binary.LittleEndian.PutUint32(params[16:20], uint32(ldb))
	binary.LittleEndian.PutUint32(params[20:24], uint32(ldc))
	binary.LittleEndian.PutUint32(params[24:28], boolU32(transA))
	binary.LittleEndian.PutUint32(params[28:32], boolU32(transB))
	binary.LittleEndian.PutUint32(params[32:36], math.Float32bits(alpha))
	binary.LittleEndian.PutUint32(params[36:40], math.Float32bits(beta))
	bufferParams := ctx.createUniformBuffer(params)
	defer bufferParams.Release()

	bindGroupLayout := pipeline.GetBindGroupLayout(0)
	bindGroup := ctx.device.CreateBindGroupSimple(bindGroupLayout, []wgpu.BindGroupEntry{
		wgpu.BufferBindingEntry(0, bufferA, 0, uint64(extentA*4)),
		wgpu.BufferBindingEntry(1, bufferB, 0, uint64(extentB*4)),
		wgpu.BufferBindingEntry(2, bufferC, 0, uint64(extentC*4)),
		wgpu.BufferBindingEntry(3, bufferParams, 0, 48),
	})
	defer bindGroup.Release()

	encoder := ctx.device.CreateCommandEncoder(nil)
	computePass := encoder.BeginComputePass(nil)

	computePass.SetPipeline(pipeline)
	computePass.SetBindGroup(0, bindGroup, nil)

	// 16x16 threads per workgroup, one thread per C element.
	workgroupsX := uint32((n + 15) / 16)
	workgroupsY := uint32((m + 15) / 16)
	computePass.DispatchWorkgroups(workgroupsX, workgroupsY, 1)
	computePass.End()

	cmdBuffer := encoder.Finish(nil)
	ctx.queue.Submit(cmdBuffer)

	resultData, err := ctx.readBuffer(bufferC, uint64(extentC*4))
	if err != nil {
		panic("webgpu: Sgemm: " + err.Error())
	}

	copy(f32Bytes(c[:extentC]), resultData)
}

// Dgemm performs double-precision matrix multiplication.
// WGSL has no f64 storage type, so double precision runs on the CPU kernels.
func (ctx *Context) Dgemm(transA, transB bool, m, n, k int, alpha float64, a []float64, lda int, b []float64, ldb int, beta float64, c []float64, ldc int) {
	cpu.Gemm(transA, transB, m, n, k, alpha, a, lda, b, ldb, beta, c, ldc)
}

func f32Bytes(s []float32) []byte {
	if len(s) == 0 {
		return nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy conversion, length derived from s
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
}

func boolU32(v bool) uint32 {
	if v {
		return 1
	}
	return 0
}
