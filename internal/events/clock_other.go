//go:build !linux

package events

import "time"

var processStart = time.Now()

// NanosSinceBoot approximates boot time with process uptime off Linux.
func NanosSinceBoot() uint64 {
	return uint64(time.Since(processStart))
}
