package tenant

import (
	"time"

	"github.com/go-viper/mapstructure/v2"
)

// Config holds every recognized option for the tenant subsystem, decoded
// from a loosely-typed source (HCL/JSON-shaped map) via mapstructure. Zero
// value is not valid on its own; use DefaultConfig and layer overrides,
// then call Validate.
type Config struct {
	JGroup JGroupConfig `mapstructure:"jgroup"`
	Tenant TenantConfig `mapstructure:"tenant"`
}

// JGroupConfig configures the process-wide cgroup directory naming.
type JGroupConfig struct {
	RootGroup string `mapstructure:"root_group"`
	JDKGroup  string `mapstructure:"jdk_group"`
}

// TenantConfig configures inheritance defaults and the termination
// engine's timing knobs.
type TenantConfig struct {
	ThreadInheritance           bool  `mapstructure:"thread_inheritance"`
	AllowPerThreadInheritance   bool  `mapstructure:"allow_per_thread_inheritance"`
	DebugShutdown               bool  `mapstructure:"debug_shutdown"`
	KillThreadIntervalMs        int64 `mapstructure:"kill_thread_interval_ms"`
	StopShutdownWhenTimeout     bool  `mapstructure:"stop_shutdown_when_timeout"`
	ShutdownSTWSoftLimitMs      int64 `mapstructure:"shutdown_stw_soft_limit_ms"`
	PrintStacksOnTimeoutDelayMs int64 `mapstructure:"print_stacks_on_timeout_delay_ms"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		JGroup: JGroupConfig{
			RootGroup: "/",
			JDKGroup:  "ajdk_multi_tenant",
		},
		Tenant: TenantConfig{
			ThreadInheritance:           true,
			AllowPerThreadInheritance:   true,
			DebugShutdown:               false,
			KillThreadIntervalMs:        20,
			StopShutdownWhenTimeout:     false,
			ShutdownSTWSoftLimitMs:      -1,
			PrintStacksOnTimeoutDelayMs: -1,
		},
	}
}

// DecodeConfig decodes raw (a map[string]any sourced from HCL/JSON/etc.)
// into cfg, starting from DefaultConfig and overlaying whatever keys raw
// sets.
func DecodeConfig(raw map[string]any) (Config, error) {
	cfg := DefaultConfig()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           &cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      false,
	})
	if err != nil {
		return cfg, &ErrBadArgument{Reason: err.Error()}
	}
	if err := decoder.Decode(raw); err != nil {
		return cfg, &ErrBadArgument{Reason: err.Error()}
	}
	return cfg, nil
}

// Validate fails fast with BadArgument before any tenant is created, so
// misconfiguration never surfaces mid-lifecycle.
func (c Config) Validate() error {
	if c.Tenant.KillThreadIntervalMs <= 0 {
		return &ErrBadArgument{Reason: "tenant.kill_thread_interval_ms must be positive"}
	}
	if c.Tenant.ShutdownSTWSoftLimitMs == 0 || c.Tenant.ShutdownSTWSoftLimitMs < -1 {
		return &ErrBadArgument{Reason: "tenant.shutdown_stw_soft_limit_ms must be -1 or positive"}
	}
	if c.Tenant.PrintStacksOnTimeoutDelayMs == 0 || c.Tenant.PrintStacksOnTimeoutDelayMs < -1 {
		return &ErrBadArgument{Reason: "tenant.print_stacks_on_timeout_delay_ms must be -1 or positive"}
	}
	return nil
}

// KillThreadInterval is the minimum gap enforced between consecutive mark
// waves during destroy().
func (c Config) KillThreadInterval() time.Duration {
	return time.Duration(c.Tenant.KillThreadIntervalMs) * time.Millisecond
}

// ShutdownSTWSoftLimit returns the configured soft limit, or 0 with ok=false
// if disabled (<=0 means "none").
func (c Config) ShutdownSTWSoftLimit() (d time.Duration, ok bool) {
	if c.Tenant.ShutdownSTWSoftLimitMs <= 0 {
		return 0, false
	}
	return time.Duration(c.Tenant.ShutdownSTWSoftLimitMs) * time.Millisecond, true
}

// PrintStacksOnTimeout returns the configured delay, or 0 with ok=false if
// disabled.
func (c Config) PrintStacksOnTimeout() (d time.Duration, ok bool) {
	if c.Tenant.PrintStacksOnTimeoutDelayMs <= 0 {
		return 0, false
	}
	return time.Duration(c.Tenant.PrintStacksOnTimeoutDelayMs) * time.Millisecond, true
}
