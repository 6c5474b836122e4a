package resourcelimit

import (
	"testing"

	"github.com/hashicorp/nomad-tenant/client/lib/idset"
	"github.com/shoenig/test/must"
)

type fakeWriter struct {
	enabled map[string]bool
	values  map[string]string
}

func newFakeWriter(enabled ...string) *fakeWriter {
	m := make(map[string]bool)
	for _, c := range enabled {
		m[c] = true
	}
	return &fakeWriter{enabled: m, values: make(map[string]string)}
}

func (f *fakeWriter) SetValue(key, value string) error {
	f.values[key] = value
	return nil
}

func (f *fakeWriter) ControllerEnabled(controller string) bool {
	return f.enabled[controller]
}

func TestNewCpuCfs_Bounds(t *testing.T) {
	_, err := NewCpuCfs(999, 1000)
	var bad *ErrBadArgument
	must.ErrorAs(t, err, &bad)

	_, err = NewCpuCfs(1000, 500)
	must.ErrorAs(t, err, &bad)

	ok, err := NewCpuCfs(1000, 1000)
	must.NoError(t, err)
	must.Eq(t, int32(1000), ok.PeriodUS)

	ok, err = NewCpuCfs(1000, -1)
	must.NoError(t, err)
	must.Eq(t, int32(-1), ok.QuotaUS)
}

func TestNewCpusetCpus_Empty(t *testing.T) {
	_, err := NewCpusetCpus("")
	var bad *ErrBadArgument
	must.ErrorAs(t, err, &bad)

	ok, err := NewCpusetCpus("0-7,11")
	must.NoError(t, err)
	must.Eq(t, "0-7,11", ok.Cores.String())
}

func TestNewCpusetCpusFromCores(t *testing.T) {
	ok, err := NewCpusetCpusFromCores([]idset.CoreID{3, 1, 2})
	must.NoError(t, err)
	must.Eq(t, "1-3", ok.Cores.String())

	_, err = NewCpusetCpusFromCores(nil)
	var bad *ErrBadArgument
	must.ErrorAs(t, err, &bad)
}

func TestNewCpuShares_Negative(t *testing.T) {
	_, err := NewCpuShares(-1)
	var bad *ErrBadArgument
	must.ErrorAs(t, err, &bad)
}

func TestSync_SkipsDisabledController(t *testing.T) {
	w := newFakeWriter() // nothing enabled
	shares, err := NewCpuShares(512)
	must.NoError(t, err)

	must.NoError(t, shares.Sync(w))
	_, wrote := w.values["cpu.shares"]
	must.False(t, wrote)
}

func TestSync_WritesEnabledController(t *testing.T) {
	w := newFakeWriter("cpu", "cpuset")

	shares, _ := NewCpuShares(512)
	must.NoError(t, shares.Sync(w))
	must.Eq(t, "512", w.values["cpu.shares"])

	cfs, _ := NewCpuCfs(100_000, 50_000)
	must.NoError(t, cfs.Sync(w))
	must.Eq(t, "100000", w.values["cpu.cfs_period_us"])
	must.Eq(t, "50000", w.values["cpu.cfs_quota_us"])

	cpuset, _ := NewCpusetCpus("0-3")
	must.NoError(t, cpuset.Sync(w))
	must.Eq(t, "0-3", w.values["cpuset.cpus"])
}

func TestSyncAll(t *testing.T) {
	w := newFakeWriter("cpu", "cpuset")
	shares, _ := NewCpuShares(256)
	cpuset, _ := NewCpusetCpus("0-1")

	must.NoError(t, SyncAll(w, []ResourceLimit{shares, cpuset}))
	must.Eq(t, "256", w.values["cpu.shares"])
	must.Eq(t, "0-1", w.values["cpuset.cpus"])
}
