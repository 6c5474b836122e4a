//go:build linux

package runtimehost

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"syscall"
)

// BindCurrentThread locks the calling goroutine to its OS thread and
// records that thread's id on t. Callers running a platform or carrier
// thread's body call this once at the top of that body; UnbindCurrentThread
// releases the lock on exit.
func (t *Thread) BindCurrentThread() {
	runtime.LockOSThread()
	t.setOSThreadID(syscall.Gettid())
}

// UnbindCurrentThread releases the OS thread lock taken by
// BindCurrentThread. It must run on the same goroutine.
func (t *Thread) UnbindCurrentThread() {
	runtime.UnlockOSThread()
	t.setOSThreadID(0)
}

// clockTicksPerSec is sysconf(_SC_CLK_TCK) on every Linux platform Go
// supports; it is effectively always 100.
const clockTicksPerSec = 100

// ThreadCPUTimeNS reads utime+stime for the given OS thread id from
// /proc/self/task/<tid>/stat and converts to nanoseconds. Returns 0, nil
// for a thread that has exited or never bound an OS thread (e.g. a
// virtual thread currently unmounted).
func (h *defaultHost) ThreadCPUTimeNS(t *Thread) (int64, error) {
	tid := t.OSThreadID()
	if tid == 0 {
		return 0, nil
	}

	path := fmt.Sprintf("/proc/self/task/%d/stat", tid)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	utime, stime, err := parseProcStatTimes(string(raw))
	if err != nil {
		return 0, err
	}

	ticks := utime + stime
	return ticks * (1_000_000_000 / clockTicksPerSec), nil
}

// parseProcStatTimes extracts fields 14 and 15 (utime, stime) from a
// /proc/<pid>/task/<tid>/stat line. The comm field (field 2) is
// parenthesized and may itself contain spaces or closing parens, so we
// locate it by the last ')' rather than splitting naively.
func parseProcStatTimes(line string) (utime, stime int64, err error) {
	closeParen := strings.LastIndexByte(line, ')')
	if closeParen < 0 {
		return 0, 0, fmt.Errorf("malformed /proc stat line")
	}
	rest := strings.Fields(line[closeParen+1:])
	// rest[0] is field 3 (state); utime is field 14 -> rest[11], stime
	// is field 15 -> rest[12].
	if len(rest) < 13 {
		return 0, 0, fmt.Errorf("malformed /proc stat line: too few fields")
	}
	utime, err = strconv.ParseInt(rest[11], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	stime, err = strconv.ParseInt(rest[12], 10, 64)
	if err != nil {
		return 0, 0, err
	}
	return utime, stime, nil
}
