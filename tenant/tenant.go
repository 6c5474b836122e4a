//go:build linux

// Package tenant is the lifecycle core: the Tenant state machine, the
// process-wide Registry, thread entry (run/runThread), and the
// inheritance rules that decide which new threads and pools pick up a
// tenant's identity.
package tenant

import (
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-set/v3"
	"github.com/hashicorp/nomad-tenant/jgroup"
	"github.com/hashicorp/nomad-tenant/runtimehost"
	"github.com/hashicorp/nomad-tenant/vthread"
)

// State is a tenant's position in its monotonic lifecycle.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateStopping
	StateDead
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// Tenant is one node in the forest of isolated execution contexts rooted
// at the implicit "root" (represented as a nil *Tenant attached-tenant
// slot, never as an actual Tenant value).
type Tenant struct {
	ID       int64
	Name     string
	Parent   *Tenant
	registry *Registry
	logger   hclog.Logger

	mu    sync.Mutex
	state State

	jgroup    *jgroup.JGroup // nil iff CPU throttling disabled
	Container *vthread.Container

	// DestroyLock serializes destruction against entry: readers are
	// RunThread and the CPU accounting facade; the writer is the
	// termination engine.
	DestroyLock sync.RWMutex

	setsMu   sync.Mutex
	spawned  *set.Set[*runtimehost.Thread]
	virtual  *set.Set[*runtimehost.Thread]
	carriers *set.Set[*runtimehost.Thread]

	exitedCPUTimeNS atomic.Int64
}

// State returns the tenant's current lifecycle state.
func (t *Tenant) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// JGroup returns the tenant's cgroup adapter, or nil if CPU throttling is
// disabled for this process.
func (t *Tenant) JGroup() *jgroup.JGroup { return t.jgroup }

// Spawned, Virtual, Carriers return snapshots of the tenant's three
// thread collections, filtered to currently-alive threads. These stand in
// for the original design's weak-reference collections: a thread that has
// exited is still physically present in the underlying set until the
// next purge, but Alive() reports false for it immediately.
func (t *Tenant) Spawned() []*runtimehost.Thread  { return t.aliveSnapshot(t.spawned) }
func (t *Tenant) Virtual() []*runtimehost.Thread  { return t.aliveSnapshot(t.virtual) }
func (t *Tenant) Carriers() []*runtimehost.Thread { return t.aliveSnapshot(t.carriers) }

func (t *Tenant) aliveSnapshot(s *set.Set[*runtimehost.Thread]) []*runtimehost.Thread {
	t.setsMu.Lock()
	defer t.setsMu.Unlock()
	out := make([]*runtimehost.Thread, 0, s.Size())
	for _, th := range s.Slice() {
		if th.Alive() {
			out = append(out, th)
		}
	}
	return out
}

// ThreadSetsEmpty reports whether all three thread collections are empty
// of live threads; the termination loop repeats until this is true.
func (t *Tenant) ThreadSetsEmpty() bool {
	return len(t.Spawned()) == 0 && len(t.Virtual()) == 0 && len(t.Carriers()) == 0
}

// PurgeDead drops set members whose thread has exited, standing in for
// the original design's weak-reference reaping.
func (t *Tenant) PurgeDead() {
	t.setsMu.Lock()
	defer t.setsMu.Unlock()
	for _, s := range []*set.Set[*runtimehost.Thread]{t.spawned, t.virtual, t.carriers} {
		for _, th := range s.Slice() {
			if !th.Alive() {
				s.Remove(th)
			}
		}
	}
}

// ExitedCPUTimeNS returns the accumulated CPU time of every thread that
// has exited runThread so far.
func (t *Tenant) ExitedCPUTimeNS() int64 { return t.exitedCPUTimeNS.Load() }

func (t *Tenant) registerCarrier(th *runtimehost.Thread) {
	t.setsMu.Lock()
	t.carriers.Insert(th)
	t.setsMu.Unlock()
}

func (t *Tenant) deregisterCarrier(th *runtimehost.Thread) {
	t.setsMu.Lock()
	t.carriers.Remove(th)
	t.setsMu.Unlock()
}

func (t *Tenant) registerVirtual(th *runtimehost.Thread) {
	t.setsMu.Lock()
	t.virtual.Insert(th)
	t.setsMu.Unlock()
}

func (t *Tenant) deregisterVirtual(th *runtimehost.Thread) {
	t.setsMu.Lock()
	t.virtual.Remove(th)
	t.setsMu.Unlock()
}

// Run executes runnable as this tenant. caller is the calling goroutine's
// explicit thread handle (Go has no goroutine-local storage, so the
// attached-tenant slot lives on that handle instead of being looked up
// implicitly).
//
//  1. Reject if Dead.
//  2. Reject with ErrCrossTenant if caller is already attached to a
//     different, non-root tenant.
//  3. If caller is already attached to this tenant, invoke inline.
//  4. Otherwise attach to the JGroup (if any), stamp the slot, run, and
//     guarantee detach/restore on every exit path.
func (t *Tenant) Run(caller *runtimehost.Thread, runnable func()) error {
	if t.State() == StateDead {
		return ErrDeadTenant
	}

	if prev, _ := caller.AttachedTenant().(*Tenant); prev != nil {
		if prev == t {
			runnable()
			return nil
		}
		return ErrCrossTenant
	}

	if t.jgroup != nil {
		if err := t.jgroup.Attach(); err != nil {
			return &ErrAttachFailed{Err: err}
		}
	}
	caller.SetAttachedTenant(t)
	defer func() {
		caller.SetAttachedTenant(nil)
		if t.jgroup != nil {
			if err := t.jgroup.Detach(t.registry.jvmGroup); err != nil {
				t.logger.Warn("detach failed", "tenant", t.ID, "error", err)
			}
		}
	}()

	runnable()
	return nil
}

// RunThread is invoked by the runtime when a thread-under-tenant actually
// starts executing its body: it governs entry against the destroy lock
// and the state machine, then guarantees deregistration and CPU-time
// accounting on exit.
func (t *Tenant) RunThread(caller *runtimehost.Thread, runnable func()) error {
	if !t.DestroyLock.TryRLock() {
		if caller.Kind == runtimehost.KindCarrier {
			// Virtual threads may be re-mounted onto new carriers while
			// shutdown is draining the old ones; refusing to run the
			// carrier would strand them.
			runnable()
			return nil
		}
		t.logger.Warn("rejecting thread entry, destroy in progress", "tenant", t.ID)
		return ErrDeadTenant
	}

	t.mu.Lock()
	if t.state == StateStarting {
		t.state = StateRunning
	}
	state := t.state
	t.mu.Unlock()

	if state == StateStopping || state == StateDead {
		t.DestroyLock.RUnlock()
		return ErrDeadTenant
	}

	t.setsMu.Lock()
	t.spawned.Insert(caller)
	t.setsMu.Unlock()
	caller.SetAttachedTenant(t)
	t.DestroyLock.RUnlock()

	defer func() {
		caller.SetAttachedTenant(nil)
		t.setsMu.Lock()
		t.spawned.Remove(caller)
		t.setsMu.Unlock()
		if ns, err := t.registry.host.ThreadCPUTimeNS(caller); err == nil {
			t.exitedCPUTimeNS.Add(ns)
		}
	}()

	runnable()
	return nil
}

// EnterStopping moves Starting/Running -> Stopping and removes the
// tenant from the registry (insertion-at-create, removal-on-Stopping).
// Called exactly once, by the termination engine.
func (t *Tenant) EnterStopping() {
	t.mu.Lock()
	if t.state == StateStarting || t.state == StateRunning {
		t.state = StateStopping
	}
	t.mu.Unlock()
	t.registry.remove(t.ID)
}

// EnterDead moves Stopping -> Dead. Called exactly once, from cleanup.
func (t *Tenant) EnterDead() {
	t.mu.Lock()
	t.state = StateDead
	t.mu.Unlock()
}

// Registry returns the tenant's owning registry.
func (t *Tenant) Registry() *Registry { return t.registry }

// Host returns the runtime collaboration interface for this tenant's
// registry.
func (t *Tenant) Host() runtimehost.Host { return t.registry.host }

// Logger returns the tenant's named logger.
func (t *Tenant) Logger() hclog.Logger { return t.logger }
