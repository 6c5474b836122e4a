// Package resourcelimit defines the tenant resource policy: a small tagged
// union of typed, validated limits, each of which knows how to write itself
// into a cgroup controller file.
package resourcelimit

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/nomad-tenant/client/lib/idset"
)

// ErrBadArgument is returned when a limit is constructed with an
// out-of-range or malformed value.
type ErrBadArgument struct {
	Reason string
}

func (e *ErrBadArgument) Error() string {
	return fmt.Sprintf("bad argument: %s", e.Reason)
}

// Writer is the minimal cgroup surface a ResourceLimit needs in order to
// sync itself: write a controller key, and report whether that controller
// is enabled for the current process (so syncing a disabled controller's
// limit is silently skipped).
type Writer interface {
	SetValue(key, value string) error
	ControllerEnabled(controller string) bool
}

// ResourceLimit is the tagged-variant interface implemented by every concrete
// cgroup limit. Exactly one of
// the New* constructors below should be used; the zero value is not a valid
// limit.
type ResourceLimit interface {
	// Sync writes this limit's controller file(s) into w, iff the
	// relevant controller is enabled. A disabled controller is a no-op,
	// not an error.
	Sync(w Writer) error

	// Controller names the cgroup v1 controller this limit targets
	// ("cpu" or "cpuset").
	Controller() string
}

// CpuShares is the relative CPU weight limit (cpu.shares).
type CpuShares struct {
	Weight int32
}

// NewCpuShares validates and constructs a CpuShares limit. Weight must be
// non-negative.
func NewCpuShares(weight int32) (*CpuShares, error) {
	if weight < 0 {
		return nil, &ErrBadArgument{Reason: fmt.Sprintf("cpu shares weight must be >= 0, got %d", weight)}
	}
	return &CpuShares{Weight: weight}, nil
}

func (c *CpuShares) Controller() string { return "cpu" }

func (c *CpuShares) Sync(w Writer) error {
	if !w.ControllerEnabled(c.Controller()) {
		return nil
	}
	return w.SetValue("cpu.shares", strconv.FormatInt(int64(c.Weight), 10))
}

// CpuCfs is the completely-fair-scheduler period/quota limit
// (cpu.cfs_period_us, cpu.cfs_quota_us).
type CpuCfs struct {
	PeriodUS int32
	QuotaUS  int32 // -1 means unlimited
}

// NewCpuCfs validates and constructs a CpuCfs limit:
// 1_000 <= period <= 1_000_000, and quota >= 1_000 or quota == -1.
func NewCpuCfs(periodUS, quotaUS int32) (*CpuCfs, error) {
	if periodUS < 1_000 || periodUS > 1_000_000 {
		return nil, &ErrBadArgument{Reason: fmt.Sprintf("cpu cfs period_us must be in [1000, 1000000], got %d", periodUS)}
	}
	if quotaUS != -1 && quotaUS < 1_000 {
		return nil, &ErrBadArgument{Reason: fmt.Sprintf("cpu cfs quota_us must be >= 1000 or -1, got %d", quotaUS)}
	}
	return &CpuCfs{PeriodUS: periodUS, QuotaUS: quotaUS}, nil
}

func (c *CpuCfs) Controller() string { return "cpu" }

func (c *CpuCfs) Sync(w Writer) error {
	if !w.ControllerEnabled(c.Controller()) {
		return nil
	}
	if err := w.SetValue("cpu.cfs_period_us", strconv.FormatInt(int64(c.PeriodUS), 10)); err != nil {
		return err
	}
	return w.SetValue("cpu.cfs_quota_us", strconv.FormatInt(int64(c.QuotaUS), 10))
}

// CpusetCpus pins a tenant to a cpuset mask (cpuset.cpus), e.g. "0-7,11".
// The mask is held as a parsed core-id set rather than raw text so it can
// be built up programmatically (NewCpusetCpusFromCores) as well as parsed
// from cgroup list-format.
type CpusetCpus struct {
	Cores *idset.Set[idset.CoreID]
}

// NewCpusetCpus validates and constructs a CpusetCpus limit. mask must be
// non-empty cgroup list-format text ("0-7,11"); it is not further
// range-validated here since the valid core range is host-dependent.
func NewCpusetCpus(mask string) (*CpusetCpus, error) {
	cores := idset.Parse[idset.CoreID](mask)
	if cores.Empty() {
		return nil, &ErrBadArgument{Reason: fmt.Sprintf("cpuset mask parsed to no cores: %q", mask)}
	}
	return &CpusetCpus{Cores: cores}, nil
}

// NewCpusetCpusFromCores constructs a CpusetCpus limit directly from a set
// of core ids, bypassing text parsing.
func NewCpusetCpusFromCores(cores []idset.CoreID) (*CpusetCpus, error) {
	set := idset.From(cores)
	if set.Empty() {
		return nil, &ErrBadArgument{Reason: "cpuset core list must not be empty"}
	}
	return &CpusetCpus{Cores: set}, nil
}

func (c *CpusetCpus) Controller() string { return "cpuset" }

func (c *CpusetCpus) Sync(w Writer) error {
	if !w.ControllerEnabled(c.Controller()) {
		return nil
	}
	return w.SetValue("cpuset.cpus", c.Cores.String())
}

// SyncAll syncs every limit in order, returning the first error
// encountered. Order matters only in that cpuset and cpu controllers are
// independent files; there is no cross-limit ordering requirement.
func SyncAll(w Writer, limits []ResourceLimit) error {
	for _, l := range limits {
		if err := l.Sync(w); err != nil {
			return fmt.Errorf("sync %s limit: %w", l.Controller(), err)
		}
	}
	return nil
}
