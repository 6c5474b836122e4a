// Package featureflag exposes the process-wide subsystem toggles that gate
// tenant isolation: whether multi-tenancy itself is enabled, whether cgroup
// CPU throttling/accounting is wired up, and whether the termination engine
// is allowed to stop threads at all. Flags are initialized exactly once at
// process start (Init) and read lock-free afterward.
package featureflag

import "sync/atomic"

// Flags is the immutable-after-Init set of process-wide toggles.
type Flags struct {
	MultiTenantEnabled bool
	CPUThrottleEnabled bool
	CPUAccountEnabled  bool
	ThreadStopEnabled  bool
}

var (
	current atomic.Pointer[Flags]
)

// Init installs the process-wide flag set. Calling it more than once
// replaces the prior value; callers are expected to call it exactly once
// during process startup, consistent with "initialized at process
// start and never reassigned" note, but a reassignment is not itself an
// error since some embedders (tests) re-init between cases.
func Init(f Flags) {
	current.Store(&f)
}

// Current returns the active flag set. Before Init is called, every flag
// reads as disabled.
func Current() Flags {
	if f := current.Load(); f != nil {
		return *f
	}
	return Flags{}
}

// MultiTenantEnabled reports whether tenant isolation is active at all.
func MultiTenantEnabled() bool { return Current().MultiTenantEnabled }

// CPUThrottleEnabled reports whether JGroups apply CPU throttling limits.
func CPUThrottleEnabled() bool { return Current().CPUThrottleEnabled }

// CPUAccountEnabled reports whether the CPU accounting facade is usable.
func CPUAccountEnabled() bool { return Current().CPUAccountEnabled }

// ThreadStopEnabled reports whether destroy() may actually mark/interrupt
// threads, as opposed to performing cleanup only.
func ThreadStopEnabled() bool { return Current().ThreadStopEnabled }
