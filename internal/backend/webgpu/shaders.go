// WGSL compute shaders for the GEMM execution context.
// Using string constants instead of embed for simplicity.
package webgpu

// gemmShader computes C = alpha * op(A) @ op(B) + beta * C in row-major
// layout. op(A) is [M, K], op(B) is [K, N], C is [M, N]; lda/ldb/ldc are the
// stored row strides. trans_a/trans_b select the transpose interpretation.
const gemmShader = `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> result: array<f32>;

struct Params {
    m: u32,       // rows of op(A) and C
    n: u32,       // cols of op(B) and C
    k: u32,       // cols of op(A), rows of op(B)
    lda: u32,
    ldb: u32,
    ldc: u32,
    trans_a: u32,
    trans_b: u32,
    alpha: f32,
    beta: f32,
}
@group(0) @binding(3) var<uniform> params: Params;

@compute @workgroup_size(16, 16)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let row = global_id.y;
    let col = global_id.x;

    if (row >= params.m || col >= params.n) {
        return;
    }

    var sum: f32 = 0.0;
    for (var l: u32 = 0u; l < params.k; l = l + 1u) {
        var av: f32;
        var bv: f32;
        if (params.trans_a != 0u) {
            av = a[l * params.lda + row];
        } else {
            av = a[row * params.lda + l];
        }
        if (params.trans_b != 0u) {
            bv = b[col * params.ldb + l];
        } else {
            bv = b[l * params.ldb + col];
        }
        sum = sum + av * bv;
    }

    let idx = row * params.ldc + col;
    result[idx] = params.alpha * sum + params.beta * result[idx];
}
`
