//go:build linux

package poller

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// pinToCPU locks the calling goroutine to its OS thread and best-effort
// pins that thread to cpu % NumCPU. Must be called from the goroutine
// about to become the reactor loop, since affinity is a thread property.
func pinToCPU(cpu int) {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu % runtime.NumCPU())
	_ = unix.SchedSetaffinity(0, &set)
}
