//go:build linux

// Package cpuaccounting is the CPU-time facade described in the tenant
// termination spec's accounting section: it aggregates the live CPU time
// of every thread in a tenant's spawned set with the accumulator of
// threads that have already exited runThread.
package cpuaccounting

import (
	"errors"
	"time"

	"github.com/armon/go-metrics"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/nomad-tenant/featureflag"
	"github.com/hashicorp/nomad-tenant/tenant"
)

// ErrFeatureDisabled is returned when CPU accounting is off globally.
var ErrFeatureDisabled = errors.New("cpuaccounting: feature disabled")

// sample caches a thread's most recently observed CPU time, keyed by its
// stable handle id, so a burst of process_cpu_time calls within the
// facade's ttl reuses the sample instead of asking the host again.
type sample struct {
	ns       int64
	sampleAt time.Time
}

// Facade aggregates process-wide tenant CPU time. One Facade is shared
// across every tenant; its cache is sized independently of tenant count.
type Facade struct {
	cache *lru.Cache[uint64, sample]
	ttl   time.Duration
}

// NewFacade builds a facade with an LRU cache capped at cacheSize recent
// per-thread samples, each considered fresh for ttl.
func NewFacade(cacheSize int, ttl time.Duration) (*Facade, error) {
	cache, err := lru.New[uint64, sample](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Facade{cache: cache, ttl: ttl}, nil
}

// ProcessCPUTime returns t's aggregate CPU time in nanoseconds: every live
// spawned thread's current consumption plus the accumulator left behind
// by threads that already exited runThread.
//
// It takes destroy_lock for read with a non-blocking try; if the lock is
// held (destroy in progress), it conservatively returns just the
// exited-thread accumulator rather than blocking.
func (f *Facade) ProcessCPUTime(t *tenant.Tenant) (int64, error) {
	if !featureflag.CPUAccountEnabled() {
		return 0, ErrFeatureDisabled
	}

	exited := t.ExitedCPUTimeNS()

	if !t.DestroyLock.TryRLock() {
		return exited, nil
	}
	defer t.DestroyLock.RUnlock()

	host := t.Host()
	total := exited
	now := time.Now()

	for _, th := range t.Spawned() {
		if s, ok := f.cache.Get(th.ID()); ok && now.Sub(s.sampleAt) < f.ttl {
			total += s.ns
			continue
		}
		ns, err := host.ThreadCPUTimeNS(th)
		if err != nil {
			continue
		}
		f.cache.Add(th.ID(), sample{ns: ns, sampleAt: now})
		total += ns
	}

	metrics.SetGauge([]string{"tenant", "cpu_time_ns"}, float32(total))
	return total, nil
}
