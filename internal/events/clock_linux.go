//go:build linux

package events

import "golang.org/x/sys/unix"

// NanosSinceBoot reads CLOCK_BOOTTIME, the clock event timestamps use.
func NanosSinceBoot() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		return 0
	}
	return uint64(ts.Nano())
}
