//go:build linux

package termination

import (
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/nomad-tenant/tenant"
)

// cleanup destroys the tenant's JGroup, drops exited threads from its
// thread collections, drops its parent linkage, and shuts down its default
// virtual-thread container. Threads still alive stay in the collections;
// this happens only when thread-stop is disabled and cleanup runs without
// waiting for them.
// Must run exactly once, with destroy_lock write-held, after the tenant
// has reached Dead.
func cleanup(logger hclog.Logger, t *tenant.Tenant) {
	if g := t.JGroup(); g != nil {
		g.Destroy()
	}
	if t.Container != nil {
		t.Container.Shutdown()
	}
	t.PurgeDead()
	t.Parent = nil
	logger.Info("tenant cleanup complete", "tenant", t.ID)
}
