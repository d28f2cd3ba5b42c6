//go:build linux

package workerpool

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// pinCurrentThread binds the calling OS thread to a single CPU core, chosen
// round-robin by workerID. Callers must have already called
// runtime.LockOSThread so the binding sticks to the goroutine that calls it.
func pinCurrentThread(workerID int) error {
	n := runtime.NumCPU()
	if n == 0 {
		return nil
	}

	var set unix.CPUSet
	set.Zero()
	set.Set(workerID % n)

	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("set affinity to cpu %d: %w", workerID%n, err)
	}
	return nil
}
