//go:build linux

package termination

import "golang.org/x/sys/unix"

// raisePriority is a best-effort nice-value adjustment, approximating the
// original design's "raise this thread's scheduling priority" step.
// Failures (most commonly EPERM when not running as root / without
// CAP_SYS_NICE) are swallowed: priority elevation is an optimization, not
// a correctness requirement — threads get cancelled via the mark/wake/
// interrupt waves regardless of their nice value.
func raisePriority(osTID, niceDelta int) {
	if osTID == 0 {
		return
	}
	_ = unix.Setpriority(unix.PRIO_PROCESS, osTID, niceDelta)
}

const (
	callerPriorityBoost = -5
	victimPriorityBoost = -19
)
