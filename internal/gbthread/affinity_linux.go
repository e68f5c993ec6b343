//go:build linux

package gbthread

import (
	"golang.org/x/sys/unix"
)

// setAffinity pins the calling OS thread to the hardware threads named by
// mask, where bit i selects hardware thread i. It must be called from the
// goroutine to be pinned, after runtime.LockOSThread.
func setAffinity(mask uint64) error {
	var set unix.CPUSet
	set.Zero()
	for i := 0; i < 64 && i < unix.CPU_SETSIZE; i++ {
		if mask&(1<<uint(i)) != 0 {
			set.Set(i)
		}
	}
	return unix.SchedSetaffinity(0, &set)
}

// hardwareAffinities returns one single-bit mask per hardware thread
// available to the process, as reported by the scheduler affinity of the
// calling thread.
func hardwareAffinities() []uint64 {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil
	}
	masks := make([]uint64, 0, set.Count())
	for i := 0; i < 64 && i < unix.CPU_SETSIZE; i++ {
		if set.IsSet(i) {
			masks = append(masks, uint64(1)<<uint(i))
		}
	}
	return masks
}
