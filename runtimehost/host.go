//go:build linux

package runtimehost

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Host is the runtime collaboration interface: the only
// operations the tenant lifecycle core calls out for. A real host binds
// these to actual OS threads; FakeHost (see fake_host.go) lets the
// termination engine be tested without real threads.
type Host interface {
	// PrepareForDestroy marks every thread in threads for tenant death at
	// its next safepoint (here: the next time it observes
	// HasTenantDeath or WakeChan). virtualOnly restricts marking to
	// virtual threads. osWakeup additionally requests a best-effort OS
	// wakeup of blocked threads. Returns how long the pass took, for STW
	// accounting.
	PrepareForDestroy(threads []*Thread, virtualOnly, osWakeup bool) time.Duration

	// Interrupt requests that the runtime interrupt a blocked thread
	// before a live thread can be cancelled.
	Interrupt(t *Thread)

	// WakeUp performs a best-effort OS-level wake of a thread blocked in
	// a syscall.
	WakeUp(t *Thread)

	// DumpThreads produces a diagnostic stack dump of the given threads
	// for threads that survived destruction past a soft deadline.
	DumpThreads(threads []*Thread) string

	// ThreadCPUTimeNS returns the thread's consumed CPU time in
	// nanoseconds.
	ThreadCPUTimeNS(t *Thread) (int64, error)
}

// defaultHost is the production Host: marking is in-process (setting
// atomic flags honoring the shutdown mask), waking is a best-effort
// channel signal, and CPU time is read from the real OS thread via
// platform-specific accounting.
type defaultHost struct{}

// NewHost returns the production Host implementation.
func NewHost() Host { return &defaultHost{} }

func (h *defaultHost) PrepareForDestroy(threads []*Thread, virtualOnly, osWakeup bool) time.Duration {
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
		if osWakeup {
			h.WakeUp(t)
		}
	}
	return time.Since(start)
}

func (h *defaultHost) Interrupt(t *Thread) {
	t.signalWake()
}

func (h *defaultHost) WakeUp(t *Thread) {
	t.signalWake()
}

func (h *defaultHost) DumpThreads(threads []*Thread) string {
	var b strings.Builder
	buf := make([]byte, 1<<16)
	n := runtime.Stack(buf, true)
	fmt.Fprintf(&b, "stack dump requested for %d survivor thread(s):\n", len(threads))
	for _, t := range threads {
		fmt.Fprintf(&b, "  - %s (%s) osTID=%d alive=%v masked=%v\n",
			t.Name, t.Kind, t.OSThreadID(), t.Alive(), t.Masked())
	}
	b.Write(buf[:n])
	return b.String()
}
