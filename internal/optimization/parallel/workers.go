package parallel

import (
	"runtime"

	"github.com/copyleftdev/tourga/internal/optimization"
)

// MaxWorkers is the worker count requested with "max": every CPU but one.
const MaxWorkers = 0

// ResolveWorkers turns a requested worker count into the number of workers
// to start. MaxWorkers resolves to runtime.NumCPU()-1, and at least 1.
func ResolveWorkers(requested int) (int, error) {
	switch {
	case requested < 0:
		return 0, optimization.ConfigErrorf("parallel.ResolveWorkers", "worker count must not be negative, got %d", requested)
	case requested == MaxWorkers:
		return max(runtime.NumCPU()-1, 1), nil
	default:
		return requested, nil
	}
}

// deriveSeed spreads a base seed over workers with a SplitMix64 step, so
// workers sharing a base seed still draw independent streams.
func deriveSeed(base int64, worker int) int64 {
	z := uint64(base) + uint64(worker+1)*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return int64(z ^ (z >> 31))
}
