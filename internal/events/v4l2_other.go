//go:build !linux

package events

import "time"

// V4L2Source is unavailable off Linux.
type V4L2Source struct{}

// OpenV4L2 always fails with ErrUnsupported.
func OpenV4L2(path string) (*V4L2Source, error) {
	return nil, ErrUnsupported
}

func (s *V4L2Source) Poll(time.Duration) (bool, error) { return false, ErrUnsupported }
func (s *V4L2Source) Dequeue() (Event, error)          { return Event{}, ErrUnsupported }
func (s *V4L2Source) Close() error                     { return nil }
