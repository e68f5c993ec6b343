//go:build !linux

package gbthread

import "fmt"

// setAffinity is a no-op on platforms without a wired scheduler-affinity
// API; pinning requests are accepted but not applied.
func setAffinity(mask uint64) error {
	return fmt.Errorf("gbthread: affinity pinning not supported on this platform")
}

// hardwareAffinities returns nil on platforms without a wired
// scheduler-affinity API.
func hardwareAffinities() []uint64 {
	return nil
}
