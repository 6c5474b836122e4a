package featureflag

import (
	"testing"

	"github.com/shoenig/test/must"
)

func TestInit_Current(t *testing.T) {
	Init(Flags{
		MultiTenantEnabled: true,
		CPUThrottleEnabled: true,
	})
	defer Init(Flags{})

	must.True(t, MultiTenantEnabled())
	must.True(t, CPUThrottleEnabled())
	must.False(t, CPUAccountEnabled())
	must.False(t, ThreadStopEnabled())
}

func TestCurrent_BeforeInit(t *testing.T) {
	// simulate an unstarted process: nothing is enabled.
	current.Store(nil)
	must.Eq(t, Flags{}, Current())
}
