// Package vthread implements the virtual-thread container and its carrier
// pool: the registry of carrier and virtual threads belonging
// to one tenant, lazily backed by a work-stealing-style pool of OS
// threads.
package vthread

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

// SchedulerConfig sizes a tenant's carrier pool: parallelism, the hard
// cap on carrier count, and the floor the pool won't shrink below.
type SchedulerConfig struct {
	Parallelism int
	MaxPool     int
	MinRunnable int
	KeepAlive   time.Duration
}

// DefaultSchedulerConfig derives parallelism from the host's available CPU
// count, clamped to maxPool, with min_runnable defaulting to
// max(parallelism/2, 1) and a 30s keep-alive.
func DefaultSchedulerConfig(maxPool int) SchedulerConfig {
	n := availableCPUs()
	if maxPool > 0 && n > maxPool {
		n = maxPool
	}
	if n < 1 {
		n = 1
	}
	minRunnable := n / 2
	if minRunnable < 1 {
		minRunnable = 1
	}
	return SchedulerConfig{
		Parallelism: n,
		MaxPool:     maxPool,
		MinRunnable: minRunnable,
		KeepAlive:   30 * time.Second,
	}
}

// availableCPUs reports the host's logical CPU count as gopsutil's
// cpu.Counts(true) returns it, or 1 if that count is unavailable.
func availableCPUs() int {
	n, err := cpu.Counts(true)
	if err != nil || n <= 0 {
		return 1
	}
	return n
}
