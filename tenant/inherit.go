package tenant

import "github.com/hashicorp/nomad-tenant/runtimehost"

// NewThreadPredicate decides whether newThread, spawned by creator while
// attached to current, should inherit current. Installed once at init
// (plain pointer swap); callers must tolerate either value being in
// effect concurrently with a replacement.
type NewThreadPredicate func(creator, newThread *runtimehost.Thread, current *Tenant) bool

// NewPoolPredicate decides whether a newly-created pool/executor, created
// by creator while attached to current, should inherit current.
type NewPoolPredicate func(creator *runtimehost.Thread, current *Tenant) bool

// PoolThreadPredicate decides whether a worker thread newly spawned inside
// an already-inheriting pool should itself be stamped with poolInherited.
type PoolThreadPredicate func(newThread *runtimehost.Thread, current *Tenant, poolInherited *Tenant) bool

// predicates bundles the three pluggable hooks plus the two global
// inheritance toggles. The zero value behaves as "always inherit,
// globally enabled, per-thread override allowed" would NOT be correct
// (those two bools default false), so callers should always build this
// from a decoded Config via newPredicates.
type predicates struct {
	globalInherit   bool
	allowPerThread  bool
	newThread       NewThreadPredicate
	newPool         NewPoolPredicate
	poolThread      PoolThreadPredicate
}

func newPredicates(cfg TenantConfig) *predicates {
	return &predicates{
		globalInherit:  cfg.ThreadInheritance,
		allowPerThread: cfg.AllowPerThreadInheritance,
	}
}

// shouldInherit resolves the effective "should-inherit" flag for a thread
// about to spawn something: the per-thread override if one was set and
// per-thread overrides are allowed, else the global default.
func (p *predicates) shouldInherit(creator *runtimehost.Thread) bool {
	if p.allowPerThread {
		if v, ok := creator.InheritanceOverride(); ok {
			return v
		}
	}
	return p.globalInherit
}

// newThreadInherits applies the full rule for a freshly spawned platform
// thread: the creator's should-inherit flag must be set, the creator must
// itself be attached to a (non-root) tenant, and the installed predicate
// (if any) must agree.
func (p *predicates) newThreadInherits(creator, newThread *runtimehost.Thread) (*Tenant, bool) {
	if !p.shouldInherit(creator) {
		return nil, false
	}
	current, _ := creator.AttachedTenant().(*Tenant)
	if current == nil {
		return nil, false
	}
	if p.newThread != nil && !p.newThread(creator, newThread, current) {
		return nil, false
	}
	return current, true
}

// newPoolInherits applies the rule for a freshly created executor/pool.
func (p *predicates) newPoolInherits(creator *runtimehost.Thread) (*Tenant, bool) {
	if !p.shouldInherit(creator) {
		return nil, false
	}
	current, _ := creator.AttachedTenant().(*Tenant)
	if current == nil {
		return nil, false
	}
	if p.newPool != nil && !p.newPool(creator, current) {
		return nil, false
	}
	return current, true
}

// poolThreadInherits governs whether a worker thread spawned inside an
// already-tenant-owned pool is stamped with that pool's tenant. A
// tenant's own default carrier pool bypasses this (carriers are always
// unconditionally stamped, see vthread.Hooks.NewCarrier wiring in
// registry.go); this hook exists for executors layered on top where the
// stamping decision should remain pluggable.
func (p *predicates) poolThreadInherits(newThread *runtimehost.Thread, poolInherited *Tenant) bool {
	if poolInherited == nil {
		return false
	}
	if p.poolThread == nil {
		return true
	}
	return p.poolThread(newThread, poolInherited, poolInherited)
}
