package preflight

import (
	"runtime"

	"golang.org/x/sys/unix"
)

const (
	fallbackWorkers = 2
	maxAutoWorkers  = 3
	bytesPerWorker  = 4 << 30
)

// memoryBytes is replaced in tests.
var memoryBytes = func() (uint64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, err
	}
	return uint64(info.Totalram) * uint64(info.Unit), nil
}

// cpuCount is replaced in tests.
var cpuCount = runtime.NumCPU

// WorkerCeiling derives the largest sensible worker count for this host:
// one worker per four CPUs plus one, one per 4 GiB of memory, and never
// more than three. When memory cannot be read it returns two.
func WorkerCeiling() int {
	mem, err := memoryBytes()
	if err != nil || mem == 0 {
		return fallbackWorkers
	}
	n := min(maxAutoWorkers, cpuCount()/4+1, int(mem/bytesPerWorker))
	return max(n, 1)
}

// ResolveMaxWorkers returns the configured worker count, or the hardware
// ceiling when configured is zero. Explicit values are capped at eight.
func ResolveMaxWorkers(configured int) int {
	if configured <= 0 {
		return WorkerCeiling()
	}
	return min(configured, 8)
}
