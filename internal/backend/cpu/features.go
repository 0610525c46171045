package cpu

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// Features describes the SIMD capabilities of the host CPU that influence
// GEMM kernel tiling. Fields for foreign architectures are false.
type Features struct {
	HasSSE2      bool
	HasAVX       bool
	HasAVX2      bool
	HasAVX512    bool
	HasNEON      bool
	Architecture string
}

// Detect performs CPU feature detection via golang.org/x/sys/cpu.
// The x/sys flags read as zero on architectures they do not apply to.
func Detect() Features {
	return Features{
		HasSSE2:      cpu.X86.HasSSE2,
		HasAVX:       cpu.X86.HasAVX,
		HasAVX2:      cpu.X86.HasAVX2,
		HasAVX512:    cpu.X86.HasAVX512F,
		HasNEON:      cpu.ARM64.HasASIMD,
		Architecture: runtime.GOARCH,
	}
}

// TileK returns the k-dimension tile size for blocked GEMM. Wider vector
// units amortize more of the B-panel reload, so they get deeper tiles.
func (f Features) TileK() int {
	switch {
	case f.HasAVX512:
		return 512
	case f.HasAVX2, f.HasNEON:
		return 256
	default:
		return 128
	}
}

// String returns the highest detected feature level.
func (f Features) String() string {
	switch {
	case f.HasAVX512:
		return f.Architecture + "/avx512"
	case f.HasAVX2:
		return f.Architecture + "/avx2"
	case f.HasAVX:
		return f.Architecture + "/avx"
	case f.HasNEON:
		return f.Architecture + "/neon"
	case f.HasSSE2:
		return f.Architecture + "/sse2"
	default:
		return f.Architecture
	}
}
