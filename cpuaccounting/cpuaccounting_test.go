//go:build linux

package cpuaccounting

import (
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/nomad-tenant/featureflag"
	"github.com/hashicorp/nomad-tenant/runtimehost"
	"github.com/hashicorp/nomad-tenant/tenant"
	"github.com/shoenig/test/must"
)

func newTestTenant(t *testing.T) (*tenant.Tenant, *runtimehost.FakeHost) {
	t.Helper()
	host := runtimehost.NewFakeHost()
	r, err := tenant.NewRegistry(hclog.NewNullLogger(), tenant.DefaultConfig(), host)
	must.NoError(t, err)
	ten, err := r.Create(nil, "alpha", nil)
	must.NoError(t, err)
	return ten, host
}

func TestProcessCPUTime_FeatureDisabled(t *testing.T) {
	featureflag.Init(featureflag.Flags{MultiTenantEnabled: true, CPUAccountEnabled: false})
	ten, _ := newTestTenant(t)

	f, err := NewFacade(16, time.Second)
	must.NoError(t, err)

	_, err = f.ProcessCPUTime(ten)
	must.ErrorIs(t, err, ErrFeatureDisabled)
}

func TestProcessCPUTime_AggregatesLiveAndExited(t *testing.T) {
	featureflag.Init(featureflag.Flags{MultiTenantEnabled: true, CPUAccountEnabled: true})
	ten, host := newTestTenant(t)

	f, err := NewFacade(16, time.Second)
	must.NoError(t, err)

	exited := runtimehost.NewThread(runtimehost.KindPlatform, "exited")
	host.SetCPUTime(exited, 100)
	must.NoError(t, ten.RunThread(exited, func() {}))

	live := runtimehost.NewThread(runtimehost.KindPlatform, "live")
	host.SetCPUTime(live, 50)
	blockCh := make(chan struct{})
	ran := make(chan struct{})
	go func() {
		_ = ten.RunThread(live, func() {
			close(ran)
			<-blockCh
		})
	}()
	<-ran
	defer close(blockCh)

	total, err := f.ProcessCPUTime(ten)
	must.NoError(t, err)
	must.Eq(t, int64(150), total)
}

func TestProcessCPUTime_ConservativeWhenDestroyLocked(t *testing.T) {
	featureflag.Init(featureflag.Flags{MultiTenantEnabled: true, CPUAccountEnabled: true})
	ten, host := newTestTenant(t)

	exited := runtimehost.NewThread(runtimehost.KindPlatform, "exited")
	host.SetCPUTime(exited, 75)
	must.NoError(t, ten.RunThread(exited, func() {}))

	ten.DestroyLock.Lock()
	defer ten.DestroyLock.Unlock()

	f, err := NewFacade(16, time.Second)
	must.NoError(t, err)

	total, err := f.ProcessCPUTime(ten)
	must.NoError(t, err)
	must.Eq(t, int64(75), total)
}

func TestProcessCPUTime_CachesSampleWithinTTL(t *testing.T) {
	featureflag.Init(featureflag.Flags{MultiTenantEnabled: true, CPUAccountEnabled: true})
	ten, host := newTestTenant(t)

	f, err := NewFacade(16, time.Hour)
	must.NoError(t, err)

	live := runtimehost.NewThread(runtimehost.KindPlatform, "live")
	host.SetCPUTime(live, 10)
	blockCh := make(chan struct{})
	ran := make(chan struct{})
	go func() {
		_ = ten.RunThread(live, func() {
			close(ran)
			<-blockCh
		})
	}()
	<-ran
	defer close(blockCh)

	first, err := f.ProcessCPUTime(ten)
	must.NoError(t, err)
	must.Eq(t, int64(10), first)

	host.SetCPUTime(live, 999)
	second, err := f.ProcessCPUTime(ten)
	must.NoError(t, err)
	must.Eq(t, int64(10), second)
}
