package vthread

import (
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/nomad-tenant/runtimehost"
)

// Hooks lets the owning tenant observe a container's thread lifecycle
// events without vthread importing the tenant package.
type Hooks struct {
	// NewCarrier constructs a carrier thread handle stamped with the
	// owning tenant's identity before it starts running jobs.
	NewCarrier func() *runtimehost.Thread
	// OnCarrierStart/OnCarrierExit fire once per carrier goroutine
	// lifetime.
	OnCarrierStart func(t *runtimehost.Thread)
	OnCarrierExit  func(t *runtimehost.Thread)
	// OnVirtualStart/OnVirtualExit fire once per virtual-thread task.
	OnVirtualStart func(t *runtimehost.Thread)
	OnVirtualExit  func(t *runtimehost.Thread)
}

// Container is the VirtualThreadContainer: the registry of
// carrier and virtual threads belonging to one tenant (or, built with
// empty Hooks, to no tenant), plus the scheduler config
// and (lazily) the pool itself.
type Container struct {
	logger hclog.Logger
	config SchedulerConfig
	hooks  Hooks

	mu       sync.Mutex
	pool     *CarrierPool
	virtual  map[uint64]*runtimehost.Thread
	carriers map[uint64]*runtimehost.Thread
	deleted  bool
}

// NewContainer constructs a container. The carrier pool is not created
// until the first virtual thread is submitted (lazily creates a
// work-stealing pool").
func NewContainer(logger hclog.Logger, config SchedulerConfig, hooks Hooks) *Container {
	return &Container{
		logger:   logger.Named("vthread-container"),
		config:   config,
		hooks:    hooks,
		virtual:  make(map[uint64]*runtimehost.Thread),
		carriers: make(map[uint64]*runtimehost.Thread),
	}
}

func (c *Container) ensurePool() *CarrierPool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool == nil {
		newCarrier := c.hooks.NewCarrier
		if newCarrier == nil {
			newCarrier = func() *runtimehost.Thread { return runtimehost.NewThread(runtimehost.KindCarrier, "carrier") }
		}
		c.pool = NewCarrierPool(c.logger, c.config, newCarrier, c.onCarrierExit)
		if c.deleted {
			// Shut down before first use: Submit on it is rejected.
			c.pool.Shutdown()
		}
	}
	return c.pool
}

// SubmitVirtual runs body as a new virtual thread multiplexed onto this
// container's carrier pool. Returns the virtual thread handle immediately;
// body runs asynchronously.
func (c *Container) SubmitVirtual(body func()) *runtimehost.Thread {
	vt := runtimehost.NewThread(runtimehost.KindVirtual, "vthread")
	pool := c.ensurePool()

	c.mu.Lock()
	c.virtual[vt.ID()] = vt
	c.mu.Unlock()
	if c.hooks.OnVirtualStart != nil {
		c.hooks.OnVirtualStart(vt)
	}

	ok := pool.Submit(func(carrier *runtimehost.Thread) {
		c.mu.Lock()
		c.onCarrierStartLocked(carrier)
		c.mu.Unlock()

		defer func() {
			vt.MarkExited()
			if c.hooks.OnVirtualExit != nil {
				c.hooks.OnVirtualExit(vt)
			}
		}()
		body()
	})
	if !ok {
		vt.MarkExited()
		if c.hooks.OnVirtualExit != nil {
			c.hooks.OnVirtualExit(vt)
		}
	}
	return vt
}

func (c *Container) onCarrierStartLocked(carrier *runtimehost.Thread) {
	if _, seen := c.carriers[carrier.ID()]; seen {
		return
	}
	c.carriers[carrier.ID()] = carrier
	if c.hooks.OnCarrierStart != nil {
		c.hooks.OnCarrierStart(carrier)
	}
}

func (c *Container) onCarrierExit(carrier *runtimehost.Thread) {
	if c.hooks.OnCarrierExit != nil {
		c.hooks.OnCarrierExit(carrier)
	}
}

// ThreadCount returns the number of live (carrier + virtual) threads
// tracked by this container.
func (c *Container) ThreadCount() int {
	return len(c.Threads())
}

// Threads returns every live carrier and virtual thread, filtering out
// ones that have exited.
func (c *Container) Threads() []*runtimehost.Thread {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*runtimehost.Thread, 0, len(c.virtual)+len(c.carriers))
	for _, t := range c.carriers {
		if t.Alive() {
			out = append(out, t)
		}
	}
	for _, t := range c.virtual {
		if t.Alive() {
			out = append(out, t)
		}
	}
	return out
}

// Shutdown deregisters the container from the runtime: the carrier pool is
// closed and no further virtual threads may be submitted. Idempotent.
func (c *Container) Shutdown() {
	c.mu.Lock()
	if c.deleted {
		c.mu.Unlock()
		return
	}
	c.deleted = true
	pool := c.pool
	c.mu.Unlock()

	if pool != nil {
		pool.Shutdown()
	}
}
