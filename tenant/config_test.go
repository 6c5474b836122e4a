package tenant

import (
	"testing"

	"github.com/shoenig/test/must"
)

func TestDefaultConfig_Validates(t *testing.T) {
	must.NoError(t, DefaultConfig().Validate())
}

func TestDecodeConfig_OverlaysDefaults(t *testing.T) {
	cfg, err := DecodeConfig(map[string]any{
		"jgroup": map[string]any{"root_group": "/custom"},
		"tenant": map[string]any{"kill_thread_interval_ms": 50},
	})
	must.NoError(t, err)
	must.Eq(t, "/custom", cfg.JGroup.RootGroup)
	must.Eq(t, "ajdk_multi_tenant", cfg.JGroup.JDKGroup)
	must.Eq(t, int64(50), cfg.Tenant.KillThreadIntervalMs)
	must.True(t, cfg.Tenant.ThreadInheritance)
}

func TestValidate_RejectsNonPositiveInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tenant.KillThreadIntervalMs = 0
	err := cfg.Validate()
	var bad *ErrBadArgument
	must.ErrorAs(t, err, &bad)
}

func TestValidate_RejectsZeroSoftLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tenant.ShutdownSTWSoftLimitMs = 0
	err := cfg.Validate()
	var bad *ErrBadArgument
	must.ErrorAs(t, err, &bad)
}

func TestShutdownSTWSoftLimit_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	_, ok := cfg.ShutdownSTWSoftLimit()
	must.False(t, ok)
}
