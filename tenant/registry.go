//go:build linux

package tenant

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-set/v3"
	"github.com/hashicorp/go-uuid"
	"github.com/hashicorp/nomad-tenant/featureflag"
	"github.com/hashicorp/nomad-tenant/jgroup"
	"github.com/hashicorp/nomad-tenant/resourcelimit"
	"github.com/hashicorp/nomad-tenant/runtimehost"
	"github.com/hashicorp/nomad-tenant/vthread"
)

// Registry is the process-wide TenantId -> Tenant map, the tenant id
// allocator, and the owner of the process-wide jvmGroup. Exactly one
// Registry exists per process; it is initialized once at startup.
type Registry struct {
	logger   hclog.Logger
	config   Config
	host     runtimehost.Host
	jvmGroup *jgroup.JGroup // nil iff CPU throttling disabled
	mounts   *jgroup.MountTable

	predicates *predicates

	mu      sync.Mutex
	nextID  int64
	tenants map[int64]*Tenant
	ids     *set.Set[int64]
}

// NewRegistry constructs the process-wide registry. If CPU throttling is
// enabled, it discovers cgroup mount points and creates the process-wide
// jvmGroup; a failure there (mount discovery errors as returned by
// jgroup.Discover, directory creation failures as jgroup.ErrFatal) is
// returned and callers must abort process startup ("Initialization failures of the cgroup adapter during process
// start abort the process").
func NewRegistry(logger hclog.Logger, cfg Config, host runtimehost.Host) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r := &Registry{
		logger:     logger.Named("tenant-registry"),
		config:     cfg,
		host:       host,
		predicates: newPredicates(cfg.Tenant),
		tenants:    make(map[int64]*Tenant),
		ids:        set.New[int64](0),
	}

	if featureflag.CPUThrottleEnabled() {
		mounts, err := jgroup.Discover()
		if err != nil {
			return nil, err
		}
		layout := jgroup.Layout{RootGroup: cfg.JGroup.RootGroup, JDKGroup: cfg.JGroup.JDKGroup}
		jvmGroup := jgroup.NewJVMGroup(logger, mounts, layout)
		if err := jvmGroup.Create(); err != nil {
			return nil, err
		}
		if err := jvmGroup.Attach(); err != nil {
			logger.Warn("failed to attach process to jvmGroup", "error", err)
		}
		r.mounts = mounts
		r.jvmGroup = jvmGroup
	}

	return r, nil
}

// SetNewThreadPredicate installs (or replaces) the new-thread inheritance
// hook. Safe to call concurrently with in-flight inheritance checks:
// callers of the old and new value may interleave, per the "plain
// volatile reference" concurrency note.
func (r *Registry) SetNewThreadPredicate(p NewThreadPredicate)   { r.predicates.newThread = p }
func (r *Registry) SetNewPoolPredicate(p NewPoolPredicate)       { r.predicates.newPool = p }
func (r *Registry) SetPoolThreadPredicate(p PoolThreadPredicate) { r.predicates.poolThread = p }

// Create allocates a new tenant id, builds its JGroup (if CPU throttling
// is enabled) nested under parent's group (or the process jvmGroup for a
// top-level tenant), applies limits, and registers it.
func (r *Registry) Create(parent *Tenant, name string, limits []resourcelimit.ResourceLimit) (*Tenant, error) {
	if name == "" {
		return nil, &ErrBadArgument{Reason: "tenant name must not be empty"}
	}
	if !featureflag.MultiTenantEnabled() {
		return nil, ErrFeatureDisabled
	}

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.ids.Insert(id)
	r.mu.Unlock()

	correlationID, _ := uuid.GenerateUUID()

	t := &Tenant{
		ID:       id,
		Name:     name,
		Parent:   parent,
		registry: r,
		logger:   r.logger.With("tenant_id", id, "tenant_name", name, "correlation_id", correlationID),
		state:    StateStarting,
		spawned:  set.New[*runtimehost.Thread](0),
		virtual:  set.New[*runtimehost.Thread](0),
		carriers: set.New[*runtimehost.Thread](0),
	}

	if r.jvmGroup != nil {
		parentGroup := r.jvmGroup
		if parent != nil && parent.jgroup != nil {
			parentGroup = parent.jgroup
		}
		child := jgroup.NewChild(parentGroup, jgroup.TenantRelPath(id))
		if err := child.Create(); err != nil {
			r.mu.Lock()
			r.ids.Remove(id)
			r.mu.Unlock()
			return nil, err
		}
		if err := resourcelimit.SyncAll(child, limits); err != nil {
			r.logger.Warn("failed to sync resource limits", "tenant", id, "error", err)
		}
		t.jgroup = child
	}

	t.Container = vthread.NewContainer(r.logger, vthread.DefaultSchedulerConfig(0), vthread.Hooks{
		NewCarrier: func() *runtimehost.Thread {
			th := runtimehost.NewThread(runtimehost.KindCarrier, fmt.Sprintf("tenant-%d-carrier", id))
			th.SetAttachedTenant(t)
			return th
		},
		OnCarrierStart: t.registerCarrier,
		OnCarrierExit:  t.deregisterCarrier,
		OnVirtualStart: t.registerVirtual,
		OnVirtualExit:  t.deregisterVirtual,
	})

	r.mu.Lock()
	r.tenants[id] = t
	r.mu.Unlock()

	return t, nil
}

// SpawnThread creates a new platform thread and runs it as a goroutine,
// resolving whether it inherits creator's attached tenant through the
// installed inheritance predicates (newThreadInherits) before the thread
// body runs. A thread that does not inherit runs unattached, as the root
// tenant would.
func (r *Registry) SpawnThread(creator *runtimehost.Thread, name string, body func(self *runtimehost.Thread)) *runtimehost.Thread {
	th := runtimehost.NewThread(runtimehost.KindPlatform, name)
	inherited, ok := r.predicates.newThreadInherits(creator, th)
	go func() {
		if ok {
			if err := inherited.RunThread(th, func() { body(th) }); err != nil {
				r.logger.Warn("spawned thread rejected by inherited tenant", "tenant", inherited.ID, "error", err)
			}
			return
		}
		body(th)
		th.MarkExited()
	}()
	return th
}

// NewInheritingExecutor builds a bounded executor whose carrier threads are
// stamped with creator's attached tenant iff the installed inheritance
// predicates agree (newPoolInherits, then poolThreadInherits per carrier);
// otherwise the executor's carriers run unattached.
func (r *Registry) NewInheritingExecutor(creator *runtimehost.Thread, maxConcurrent int64) *vthread.BoundedExecutor {
	inherited, ok := r.predicates.newPoolInherits(creator)

	var hooks vthread.Hooks
	if ok {
		hooks.NewCarrier = func() *runtimehost.Thread {
			th := runtimehost.NewThread(runtimehost.KindCarrier, "inherited-carrier")
			if r.predicates.poolThreadInherits(th, inherited) {
				th.SetAttachedTenant(inherited)
			}
			return th
		}
	}

	container := vthread.NewContainer(r.logger, vthread.DefaultSchedulerConfig(0), hooks)
	return vthread.NewBoundedExecutor(container, r.host, maxConcurrent)
}

// Lookup returns the tenant with the given id, if it is still registered
// (i.e. not yet Stopping).
func (r *Registry) Lookup(id int64) (*Tenant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	return t, ok
}

// remove drops id from the registry; called once a tenant enters
// Stopping.
func (r *Registry) remove(id int64) {
	r.mu.Lock()
	delete(r.tenants, id)
	r.mu.Unlock()
}

// JVMGroup returns the process-wide jvmGroup, or nil if CPU throttling is
// disabled.
func (r *Registry) JVMGroup() *jgroup.JGroup { return r.jvmGroup }

// Host returns the runtime collaboration interface this registry's
// tenants were constructed against.
func (r *Registry) Host() runtimehost.Host { return r.host }

// Config returns the registry's effective configuration.
func (r *Registry) Config() Config { return r.config }
