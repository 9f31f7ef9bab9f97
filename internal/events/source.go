package events

import "time"

// Source is a hardware notification queue.
type Source interface {
	// Poll waits up to timeout for an event. It returns false on timeout
	// and an error wrapping ErrInterrupted for a spurious wake.
	Poll(timeout time.Duration) (bool, error)

	// Dequeue returns the next pending event.
	Dequeue() (Event, error)

	// Close releases the source.
	Close() error
}
