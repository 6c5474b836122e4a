package vthread

import (
	"context"
	"errors"
	"sync"

	"github.com/hashicorp/nomad-tenant/runtimehost"
	"golang.org/x/sync/semaphore"
)

// ExecutorState is the bounded executor's state machine:
// Running -> Shutdown -> Terminated.
type ExecutorState int32

const (
	ExecutorRunning ExecutorState = iota
	ExecutorShutdown
	ExecutorTerminated
)

// ErrRejected is returned by Execute once the executor has left the
// Running state.
var ErrRejected = errors.New("vthread: task rejected, executor is shutting down")

// RejectionPolicy decides what happens to a task submitted after shutdown.
// The default policy returns ErrRejected; callers may install another
// (e.g. run inline, or discard silently).
type RejectionPolicy func(task func()) error

func defaultRejectionPolicy(func()) error { return ErrRejected }

// BoundedExecutor runs at most N tasks concurrently as virtual threads on
// a Container, using a counting semaphore to bound concurrency.
type BoundedExecutor struct {
	container *Container
	sem       *semaphore.Weighted
	rejection RejectionPolicy
	host      runtimehost.Host

	mu       sync.Mutex
	state    ExecutorState
	inflight map[uint64]*runtimehost.Thread
	done     chan struct{}
	doneOnce sync.Once
}

// NewBoundedExecutor bounds concurrently-running tasks on container to at
// most maxConcurrent.
func NewBoundedExecutor(container *Container, host runtimehost.Host, maxConcurrent int64) *BoundedExecutor {
	return &BoundedExecutor{
		container: container,
		sem:       semaphore.NewWeighted(maxConcurrent),
		rejection: defaultRejectionPolicy,
		host:      host,
		inflight:  make(map[uint64]*runtimehost.Thread),
		done:      make(chan struct{}),
	}
}

// Container returns the virtual-thread container this executor submits
// work to.
func (e *BoundedExecutor) Container() *Container { return e.container }

// SetRejectionPolicy overrides the default rejection policy.
func (e *BoundedExecutor) SetRejectionPolicy(p RejectionPolicy) {
	e.mu.Lock()
	e.rejection = p
	e.mu.Unlock()
}

// State returns the executor's current lifecycle state.
func (e *BoundedExecutor) State() ExecutorState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Execute attempts to acquire a concurrency permit and, on success, spawns
// one virtual thread per task. Returns ErrRejected (or whatever the
// installed rejection policy returns) if the executor isn't Running.
func (e *BoundedExecutor) Execute(ctx context.Context, task func()) error {
	e.mu.Lock()
	if e.state != ExecutorRunning {
		policy := e.rejection
		e.mu.Unlock()
		return policy(task)
	}
	e.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	finished := make(chan struct{})
	vt := e.container.SubmitVirtual(func() {
		defer close(finished)
		defer e.sem.Release(1)
		task()
	})

	e.mu.Lock()
	e.inflight[vt.ID()] = vt
	e.mu.Unlock()

	go func() {
		<-finished
		e.mu.Lock()
		delete(e.inflight, vt.ID())
		empty := len(e.inflight) == 0 && e.state != ExecutorRunning
		e.mu.Unlock()
		if empty {
			e.terminate()
		}
	}()

	return nil
}

// Shutdown disallows new tasks but lets in-flight work drain.
func (e *BoundedExecutor) Shutdown() {
	e.mu.Lock()
	if e.state == ExecutorRunning {
		e.state = ExecutorShutdown
	}
	empty := len(e.inflight) == 0
	e.mu.Unlock()
	if empty {
		e.terminate()
	}
}

// ShutdownNow disallows new tasks and additionally interrupts every live
// in-flight thread via the executor's host.
func (e *BoundedExecutor) ShutdownNow() {
	e.mu.Lock()
	e.state = ExecutorShutdown
	live := make([]*runtimehost.Thread, 0, len(e.inflight))
	for _, t := range e.inflight {
		live = append(live, t)
	}
	e.mu.Unlock()

	for _, t := range live {
		e.host.Interrupt(t)
	}
}

func (e *BoundedExecutor) terminate() {
	e.mu.Lock()
	e.state = ExecutorTerminated
	e.mu.Unlock()
	e.doneOnce.Do(func() { close(e.done) })
}

// AwaitTermination blocks until every submitted task has finished and the
// executor reaches Terminated, or ctx is done. Returns true if
// termination completed before ctx expired.
func (e *BoundedExecutor) AwaitTermination(ctx context.Context) bool {
	select {
	case <-e.done:
		return true
	case <-ctx.Done():
		return false
	}
}
