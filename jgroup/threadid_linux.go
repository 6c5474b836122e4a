//go:build linux

package jgroup

import "syscall"

// currentThreadID returns the calling OS thread's id, as written into
// cgroup tasks files. Callers that need this to be stable across a
// critical section must have already called runtime.LockOSThread.
func currentThreadID() int {
	return syscall.Gettid()
}
