//go:build linux

// Package termination implements the tenant destruction algorithm: the
// mark/wake/interrupt loop that cooperatively cancels every thread owned
// by a tenant, the watchdog that takes over when a soft time budget is
// exceeded, and the cleanup phase that tears down the tenant's JGroup and
// virtual-thread container.
package termination

import (
	"syscall"
	"time"

	"github.com/armon/go-metrics"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-uuid"
	"github.com/hashicorp/nomad-tenant/featureflag"
	"github.com/hashicorp/nomad-tenant/runtimehost"
	"github.com/hashicorp/nomad-tenant/tenant"
	"golang.org/x/time/rate"
)

// Destroy tears down t: it blocks until every thread the tenant owns has
// exited (or is abandoned to a spawned watchdog), then runs cleanup.
// Destroy must be called with no tenant attached to the calling thread
// (the "root" caller invariant); Destroy does not check this itself, so
// callers are responsible for enforcing it at the API boundary.
//
// Returns true once the tenant has reached Dead. A false return with a
// nil error means a watchdog has taken over asynchronously; a false
// return with tenant.ErrShutdownTimeout means the soft STW budget was
// exceeded and stop_shutdown_when_timeout is set, so destroy gave up and
// the tenant remains in Stopping.
func Destroy(logger hclog.Logger, t *tenant.Tenant) (bool, error) {
	return run(logger, t, false)
}

func run(logger hclog.Logger, t *tenant.Tenant, asWatchdog bool) (bool, error) {
	cfg := t.Registry().Config()
	host := t.Host()

	if !asWatchdog {
		t.EnterStopping()
	}

	if !featureflag.ThreadStopEnabled() {
		// (T4) thread-stop disabled globally: destroy still succeeds but
		// performs only cleanup, abandoning any still-running threads.
		t.DestroyLock.Lock()
		t.EnterDead()
		cleanup(logger, t)
		t.DestroyLock.Unlock()
		return true, nil
	}

	t.DestroyLock.Lock()

	begin := time.Now()
	interval := cfg.KillThreadInterval()
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	var maxSTW, timeSTW time.Duration
	dumped := false
	softLimit, softLimitEnabled := cfg.ShutdownSTWSoftLimit()
	printDelay, printEnabled := cfg.PrintStacksOnTimeout()

	logger = logger.With("tenant_id", t.ID, "watchdog", asWatchdog)
	if !asWatchdog {
		raisePriority(callerOSTID(), callerPriorityBoost)
	}

	for {
		t.PurgeDead()
		if t.ThreadSetsEmpty() {
			break
		}

		forceful := time.Since(begin) > 10*interval
		spawned, virtual, carriers := t.Spawned(), t.Virtual(), t.Carriers()

		all := concatThreads(spawned, carriers, virtual)

		if !asWatchdog {
			for _, th := range all {
				raisePriority(th.OSThreadID(), victimPriorityBoost)
			}
		}

		if needsMarkWave(spawned, virtual, carriers) && limiter.Allow() {
			virtualOnly := len(spawned) == 0 && len(carriers) == 0 && len(virtual) > 0
			dur := host.PrepareForDestroy(all, virtualOnly, forceful)
			timeSTW += dur
			if dur > maxSTW {
				maxSTW = dur
			}
			metrics.IncrCounter([]string{"tenant", "destroy", "mark_wave"}, 1)
		}

		if forceful {
			for _, th := range concatThreads(spawned, carriers) {
				host.WakeUp(th)
			}
		}

		interruptWave(host, spawned, virtual, carriers, forceful)

		if printEnabled && !dumped && time.Since(begin) > printDelay {
			logger.Warn("tenant destroy exceeded print-stacks delay", "dump", host.DumpThreads(all))
			dumped = true
		}

		if softLimitEnabled && !asWatchdog {
			wallBudget := 16 * interval
			if timeSTW > softLimit || time.Since(begin) > wallBudget {
				if cfg.Tenant.StopShutdownWhenTimeout {
					t.DestroyLock.Unlock()
					metrics.IncrCounter([]string{"tenant", "destroy", "timeout"}, 1)
					return false, tenant.ErrShutdownTimeout
				}
				spawnWatchdog(logger, t)
				t.DestroyLock.Unlock()
				return false, nil
			}
		}

		time.Sleep(interval)
	}

	t.EnterDead()
	cleanup(logger, t)
	t.DestroyLock.Unlock()

	metrics.MeasureSince([]string{"tenant", "destroy", "stw"}, begin)
	metrics.SetGauge([]string{"tenant", "destroy", "max_stw_ms"}, float32(maxSTW.Milliseconds()))
	return true, nil
}

// concatThreads flattens any number of thread-collection snapshots into
// one slice.
func concatThreads(groups ...[]*runtimehost.Thread) []*runtimehost.Thread {
	n := 0
	for _, g := range groups {
		n += len(g)
	}
	out := make([]*runtimehost.Thread, 0, n)
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// needsMarkWave reports whether any live thread across the three
// collections has not yet been marked for tenant death.
func needsMarkWave(groups ...[]*runtimehost.Thread) bool {
	for _, g := range groups {
		for _, th := range g {
			if !th.HasTenantDeath() {
				return true
			}
		}
	}
	return false
}

// interruptWave applies the interrupt-order rule: while virtual threads
// remain, interrupt only those (carriers keep running to drain them);
// once virtuals are gone, interrupt carriers then platforms.
func interruptWave(host runtimehost.Host, spawned, virtual, carriers []*runtimehost.Thread, forceful bool) {
	if len(virtual) > 0 {
		for _, th := range virtual {
			if forceful || th.HasTenantDeath() {
				host.Interrupt(th)
			}
		}
		return
	}
	for _, th := range carriers {
		if forceful || th.HasTenantDeath() {
			host.Interrupt(th)
		}
	}
	for _, th := range spawned {
		if forceful || th.HasTenantDeath() {
			host.Interrupt(th)
		}
	}
}

// spawnWatchdog hands the remaining thread sets off to a daemon goroutine
// that re-runs the loop with escalation disabled, so the original caller
// is never blocked indefinitely.
func spawnWatchdog(logger hclog.Logger, t *tenant.Tenant) {
	watchdogID, _ := uuid.GenerateUUID()
	wlog := logger.Named("watchdog").With("watchdog_id", watchdogID)
	wlog.Warn("soft STW limit exceeded, handing off to watchdog", "tenant", t.ID)
	go func() {
		if _, err := run(wlog, t, true); err != nil {
			wlog.Error("watchdog destroy pass failed", "error", err)
		}
	}()
}

func callerOSTID() int {
	return syscall.Gettid()
}
