package tenant

import "errors"

// ErrFeatureDisabled is returned by any API gated on a global flag that is
// off.
var ErrFeatureDisabled = errors.New("tenant: feature disabled")

// ErrBadArgument flags a malformed call: empty name, nil parent lookup
// miss, malformed limit, etc.
type ErrBadArgument struct {
	Reason string
}

func (e *ErrBadArgument) Error() string { return "tenant: bad argument: " + e.Reason }

// ErrCrossTenant is returned by run() when the calling thread is already
// attached to a different, non-root tenant.
var ErrCrossTenant = errors.New("tenant: cannot enter a different tenant from within one")

// ErrDeadTenant is returned by run()/runThread() once a tenant has reached
// Dead (or Stopping, for runThread).
var ErrDeadTenant = errors.New("tenant: tenant is stopping or dead")

// ErrAttachFailed wraps a cgroup tasks-file write failure during attach.
// The tenant remains usable; the caller decides how to react.
type ErrAttachFailed struct {
	Err error
}

func (e *ErrAttachFailed) Error() string { return "tenant: attach failed: " + e.Err.Error() }
func (e *ErrAttachFailed) Unwrap() error  { return e.Err }

// ErrShutdownTimeout is returned by destroy() when a soft STW limit is
// breached and stop_shutdown_on_timeout is set: destroy gives up instead
// of escalating to a watchdog, and the tenant remains in Stopping.
var ErrShutdownTimeout = errors.New("tenant: shutdown soft limit exceeded")
