package vthread

import (
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/nomad-tenant/runtimehost"
)

// job is a unit of work submitted to the carrier pool.
type job struct {
	run func(carrier *runtimehost.Thread)
}

// CarrierPool is a pool of OS threads ("carriers") dedicated to one
// tenant's virtual-thread container. Every carrier goroutine is created
// via newCarrier, which pre-stamps the tenant identity ("every
// carrier is created inside the container's tenant context so its
// thread-local tenant is pre-set").
//
// Workers share one job queue rather than maintaining per-worker steal
// deques: at the scale a single tenant's pool operates (Parallelism is
// clamped to the host's CPU count), a flat shared queue gives the same
// load-balancing behavior as work-stealing without the bookkeeping.
type CarrierPool struct {
	logger hclog.Logger
	config SchedulerConfig
	onNew  func() *runtimehost.Thread // constructs+stamps a new carrier handle
	onExit func(t *runtimehost.Thread)

	mu      sync.Mutex
	workers []*runtimehost.Thread
	count   int
	jobs    chan job
	closed  bool
}

// NewCarrierPool constructs a carrier pool and starts its first
// config.MinRunnable carriers. onNew
// constructs a tenant-stamped carrier thread handle; onExit is called
// when a carrier goroutine returns.
func NewCarrierPool(logger hclog.Logger, config SchedulerConfig, onNew func() *runtimehost.Thread, onExit func(*runtimehost.Thread)) *CarrierPool {
	p := &CarrierPool{
		logger: logger.Named("carrier-pool"),
		config: config,
		onNew:  onNew,
		onExit: onExit,
		jobs:   make(chan job, 1024),
	}
	for i := 0; i < config.MinRunnable; i++ {
		p.spawnWorkerLocked()
	}
	return p
}

// Submit runs fn on a carrier. After enqueueing, it grows the pool by one
// carrier (up to MaxPool) if the shared queue still has backlog, i.e. no
// idle carrier picked the job up. If the queue is full, Submit grows the
// pool when capacity remains and then blocks until the queue accepts the
// job.
func (p *CarrierPool) Submit(fn func(carrier *runtimehost.Thread)) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.mu.Unlock()

	select {
	case p.jobs <- job{run: fn}:
	default:
		// queue is saturated; grow once more synchronously rather than
		// reject outright.
		p.mu.Lock()
		if p.count < effectiveMax(p.config) {
			p.spawnWorkerLocked()
		}
		p.mu.Unlock()
		p.jobs <- job{run: fn}
	}

	p.mu.Lock()
	if len(p.jobs) > 0 && p.count < effectiveMax(p.config) {
		p.spawnWorkerLocked()
	}
	p.mu.Unlock()
	return true
}

func effectiveMax(c SchedulerConfig) int {
	if c.MaxPool > 0 {
		return c.MaxPool
	}
	return c.Parallelism
}

func (p *CarrierPool) spawnWorkerLocked() {
	carrier := p.onNew()
	p.workers = append(p.workers, carrier)
	p.count++
	go p.runWorker(carrier)
}

func (p *CarrierPool) runWorker(carrier *runtimehost.Thread) {
	carrier.BindCurrentThread()
	defer carrier.UnbindCurrentThread()
	defer func() {
		carrier.MarkExited()
		if p.onExit != nil {
			p.onExit(carrier)
		}
		p.mu.Lock()
		p.count--
		p.mu.Unlock()
	}()

	idle := time.NewTimer(p.config.KeepAlive)
	defer idle.Stop()

	for {
		select {
		case j, ok := <-p.jobs:
			if !ok {
				return
			}
			if !idle.Stop() {
				<-idle.C
			}
			j.run(carrier)
			idle.Reset(p.config.KeepAlive)
		case <-idle.C:
			p.mu.Lock()
			if p.count > p.config.MinRunnable {
				p.mu.Unlock()
				return
			}
			p.mu.Unlock()
			idle.Reset(p.config.KeepAlive)
		}
	}
}

// Shutdown closes the job queue; workers finish their current job, run
// any jobs already queued, and then exit. Shutdown does not wait for
// workers to finish.
func (p *CarrierPool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
}

// Workers returns a snapshot of every carrier thread ever spawned by this
// pool (alive or not); callers filter for liveness.
func (p *CarrierPool) Workers() []*runtimehost.Thread {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*runtimehost.Thread, len(p.workers))
	copy(out, p.workers)
	return out
}
