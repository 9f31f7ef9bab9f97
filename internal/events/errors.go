package events

import "errors"

var (
	// ErrInterrupted marks a wait that was woken without a result (EINTR/EAGAIN).
	// The dispatcher retries it.
	ErrInterrupted = errors.New("events: wait interrupted")

	// ErrPollFailed wraps any other wait failure. It ends the dispatch loop.
	ErrPollFailed = errors.New("events: poll failed")

	// ErrShortEvent is returned when a raw event buffer is truncated.
	ErrShortEvent = errors.New("events: short event buffer")

	// ErrUnsupported is returned by V4L2Source on platforms without V4L2.
	ErrUnsupported = errors.New("events: v4l2 not supported on this platform")

	// ErrClosed is returned by a Source after Close.
	ErrClosed = errors.New("events: source closed")
)
