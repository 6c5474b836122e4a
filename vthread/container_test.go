//go:build linux

package vthread

import (
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/nomad-tenant/runtimehost"
	"github.com/shoenig/test/must"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %s", timeout)
	}
}

func TestContainer_SubmitVirtual_RunsAndDeregisters(t *testing.T) {
	c := NewContainer(hclog.NewNullLogger(), testConfig(), Hooks{})
	defer c.Shutdown()

	var wg sync.WaitGroup
	wg.Add(1)
	vt := c.SubmitVirtual(func() {
		defer wg.Done()
	})
	must.NotNil(t, vt)
	wg.Wait()

	waitFor(t, 2*time.Second, func() bool {
		return c.ThreadCount() <= 1 // carrier may still be alive briefly
	})
}

func TestContainer_Hooks(t *testing.T) {
	var starts, exits int
	var mu sync.Mutex

	hooks := Hooks{
		OnVirtualStart: func(t *runtimehost.Thread) { mu.Lock(); starts++; mu.Unlock() },
		OnVirtualExit:  func(t *runtimehost.Thread) { mu.Lock(); exits++; mu.Unlock() },
	}
	c := NewContainer(hclog.NewNullLogger(), testConfig(), hooks)
	defer c.Shutdown()

	var wg sync.WaitGroup
	wg.Add(1)
	c.SubmitVirtual(func() { wg.Done() })
	wg.Wait()

	waitFor(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return starts == 1 && exits == 1
	})
}

func TestContainer_Shutdown_Idempotent(t *testing.T) {
	c := NewContainer(hclog.NewNullLogger(), testConfig(), Hooks{})
	c.Shutdown()
	c.Shutdown()
}
