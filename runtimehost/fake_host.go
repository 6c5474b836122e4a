//go:build linux

package runtimehost

import (
	"sync"
	"time"
)

// FakeHost is an in-memory Host for tests: marking, waking and
// interrupting just flip flags/close channels rather than touching real
// OS threads, and CPU time is whatever the test pre-seeds. It lets the
// termination engine and vthread container be exercised deterministically
// without a real cgroup filesystem or real blocked syscalls.
type FakeHost struct {
	mu          sync.Mutex
	cpuTime     map[uint64]int64
	Interrupted []*Thread
	WokenUp     []*Thread
}

// NewFakeHost returns a ready-to-use FakeHost.
func NewFakeHost() *FakeHost {
	return &FakeHost{cpuTime: make(map[uint64]int64)}
}

// SetCPUTime pre-seeds the CPU time FakeHost reports for a thread.
func (h *FakeHost) SetCPUTime(t *Thread, ns int64) {
	h.mu.Lock()
	h.cpuTime[t.ID()] = ns
	h.mu.Unlock()
}

func (h *FakeHost) PrepareForDestroy(threads []*Thread, virtualOnly, osWakeup bool) time.Duration {
	start := time.Now()
	for _, t := range threads {
		if virtualOnly && t.Kind != KindVirtual {
			continue
		}
		if !t.Alive() {
			continue
		}
		t.markForDeath()
		if !t.Masked() {
			t.signalWake()
		}
	}
	return time.Since(start)
}

func (h *FakeHost) Interrupt(t *Thread) {
	h.mu.Lock()
	h.Interrupted = append(h.Interrupted, t)
	h.mu.Unlock()
	t.signalWake()
}

func (h *FakeHost) WakeUp(t *Thread) {
	h.mu.Lock()
	h.WokenUp = append(h.WokenUp, t)
	h.mu.Unlock()
	t.signalWake()
}

func (h *FakeHost) DumpThreads(threads []*Thread) string {
	return "fake dump"
}

func (h *FakeHost) ThreadCPUTimeNS(t *Thread) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cpuTime[t.ID()], nil
}
