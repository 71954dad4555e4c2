//go:build !linux

package poller

// pinToCPU is a no-op on platforms without a portable affinity API in
// golang.org/x/sys/unix.
func pinToCPU(cpu int) {}
