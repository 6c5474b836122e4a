//go:build linux

package vthread

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/nomad-tenant/runtimehost"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// within returns a context that expires after d.
func within(t *testing.T, d time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}

func TestBoundedExecutor_RunsAndTerminates(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewContainer(hclog.NewNullLogger(), testConfig(), Hooks{})
	host := runtimehost.NewFakeHost()
	e := NewBoundedExecutor(c, host, 2)

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, e.Execute(context.Background(), func() {
			ran.Add(1)
		}))
	}

	e.Shutdown()
	require.True(t, e.AwaitTermination(within(t, 2*time.Second)))
	require.Equal(t, int32(5), ran.Load())
	require.Equal(t, ExecutorTerminated, e.State())

	c.Shutdown()
}

func TestBoundedExecutor_BoundsConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewContainer(hclog.NewNullLogger(), testConfig(), Hooks{})
	host := runtimehost.NewFakeHost()
	e := NewBoundedExecutor(c, host, 2)

	var inflight, maxInflight atomic.Int32
	release := make(chan struct{})

	// Execute blocks once both permits are held, so release the running
	// tasks from another goroutine as soon as the bound is reached.
	go func() {
		for inflight.Load() < 2 {
			time.Sleep(time.Millisecond)
		}
		close(release)
	}()

	for i := 0; i < 4; i++ {
		require.NoError(t, e.Execute(context.Background(), func() {
			n := inflight.Add(1)
			for {
				cur := maxInflight.Load()
				if n <= cur || maxInflight.CompareAndSwap(cur, n) {
					break
				}
			}
			<-release
			inflight.Add(-1)
		}))
	}

	e.Shutdown()
	require.True(t, e.AwaitTermination(within(t, 2*time.Second)))
	require.LessOrEqual(t, maxInflight.Load(), int32(2))

	c.Shutdown()
}

func TestBoundedExecutor_RejectsAfterShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewContainer(hclog.NewNullLogger(), testConfig(), Hooks{})
	host := runtimehost.NewFakeHost()
	e := NewBoundedExecutor(c, host, 1)

	e.Shutdown()
	require.True(t, e.AwaitTermination(within(t, 2*time.Second)))

	err := e.Execute(context.Background(), func() {
		t.Fatal("must not run")
	})
	require.ErrorIs(t, err, ErrRejected)

	c.Shutdown()
}

func TestBoundedExecutor_CustomRejectionPolicy(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewContainer(hclog.NewNullLogger(), testConfig(), Hooks{})
	host := runtimehost.NewFakeHost()
	e := NewBoundedExecutor(c, host, 1)
	e.Shutdown()
	require.True(t, e.AwaitTermination(within(t, 2*time.Second)))

	var ranInline atomic.Bool
	e.SetRejectionPolicy(func(task func()) error {
		task()
		ranInline.Store(true)
		return nil
	})

	require.NoError(t, e.Execute(context.Background(), func() {}))
	require.True(t, ranInline.Load())

	c.Shutdown()
}

func TestBoundedExecutor_ShutdownNowInterruptsInflight(t *testing.T) {
	var vt *runtimehost.Thread
	c := NewContainer(hclog.NewNullLogger(), testConfig(), Hooks{
		OnVirtualStart: func(t *runtimehost.Thread) { vt = t },
	})
	host := runtimehost.NewFakeHost()
	e := NewBoundedExecutor(c, host, 2)

	started := make(chan struct{})
	require.NoError(t, e.Execute(context.Background(), func() {
		close(started)
		<-vt.WakeChan()
	}))
	<-started

	e.ShutdownNow()
	require.True(t, e.AwaitTermination(within(t, 2*time.Second)))
	require.Contains(t, host.Interrupted, vt)

	c.Shutdown()
}
