// Package parallel provides the worker fan-out used by the CPU GEMM kernels.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled    bool // Whether parallel execution is enabled.
	NumWorkers int  // Number of worker goroutines to use.
	MinRows    int  // Minimum output rows per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:    n > 1,
		NumWorkers: n,
		MinRows:    32,
	}
}

// ForRows executes f over disjoint row ranges [start, end) covering [0, m).
// Each worker owns a contiguous block of output rows, so kernels that write
// row i only inside the f call whose range contains i need no locking.
// Falls back to a single sequential call when parallelism is disabled or m
// is too small to amortize goroutine startup.
func ForRows(m int, cfg Config, f func(start, end int)) {
	if !cfg.Enabled || m < 2*cfg.MinRows || cfg.NumWorkers < 2 {
		f(0, m)
		return
	}

	chunk := (m + cfg.NumWorkers - 1) / cfg.NumWorkers
	if chunk < cfg.MinRows {
		chunk = cfg.MinRows
	}

	var wg sync.WaitGroup
	for start := 0; start < m; start += chunk {
		end := min(start+chunk, m)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			f(s, e)
		}(start, end)
	}
	wg.Wait()
}
