// Package memcheck implements the memory-estimation advisory the CLI
// uses before spawning pipeline workers. It also surfaces the host's
// actual available memory via gopsutil so the advisory warning can
// compare the estimate against real headroom, not just a fixed 1 GiB
// ceiling.
package memcheck

import (
	"fmt"
	"math"

	"github.com/shirou/gopsutil/v4/mem"
)

// Limit is the suggested memory ceiling, 1 GiB.
const Limit = 1 << 30

// EstimatedUsage returns the estimated number of bytes the pipeline will
// hold in chunk buffers at any instant: (2*poolSize+5) chunks of
// chunkSize bytes each. The "+5" over the pool's own 2N+3 in-flight
// bound accounts for one outstanding read buffer and one outstanding
// write buffer held outside the pool.
func EstimatedUsage(chunkSize int, poolSize int) int64 {
	totalChunks := int64(poolSize)*2 + 5
	return int64(chunkSize) * totalChunks
}

// FormatBytes renders a byte count in human-readable form, floored to
// two decimal places (bytes / KiB / MiB / GiB).
func FormatBytes(size int64) string {
	switch {
	case size == 1:
		return "1 byte"
	case size < (1 << 10):
		return fmt.Sprintf("%d bytes", size)
	case size < (1 << 20):
		return fmt.Sprintf("%.2f KiB", floorTo(float64(size)/float64(1<<10), 2))
	case size < (1 << 30):
		return fmt.Sprintf("%.2f MiB", floorTo(float64(size)/float64(1<<20), 2))
	default:
		return fmt.Sprintf("%.2f GiB", floorTo(float64(size)/float64(1<<30), 2))
	}
}

func floorTo(n float64, decimals int) float64 {
	mult := math.Pow(10, float64(decimals))
	return math.Floor(n*mult) / mult
}

// AvailableSystemMemory reports the host's currently available memory in
// bytes, via gopsutil. Errors reading host memory stats are non-fatal:
// the advisory simply omits the "available" comparison when the host
// doesn't expose it.
func AvailableSystemMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// Check compares the estimated usage against Limit. If the estimate
// exceeds the limit and override is false, it returns a descriptive
// error naming the expected usage (and, when available, how much
// physical memory the host actually has free). If override is true and
// the limit is exceeded, it returns nil but the caller is expected to
// log that the override took effect.
func Check(chunkSize int, poolSize int, override bool) error {
	required := EstimatedUsage(chunkSize, poolSize)

	if required <= Limit {
		return nil
	}

	if override {
		return nil
	}

	msg := fmt.Sprintf(
		"the suggested memory limit of 1 GiB has been exceeded\nexpected memory usage with the current configuration is %s",
		FormatBytes(required),
	)

	if available, err := AvailableSystemMemory(); err == nil {
		msg += fmt.Sprintf(" (%s currently available on this host)", FormatBytes(int64(available)))
	}

	msg += "\nchange the chunk size magnitude or pool size to lower the expected memory usage, or override the memory limit to proceed with the existing configuration"

	return fmt.Errorf("%s", msg)
}
