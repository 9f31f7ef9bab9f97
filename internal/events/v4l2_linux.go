//go:build linux

package events

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl numbers for struct v4l2_event (136 bytes) and
// struct v4l2_event_subscription (32 bytes).
const (
	vidiocDQEvent         = 0x80885659
	vidiocSubscribeEvent  = 0x4020565a
	vidiocUnsubscribeEvnt = 0x4020565b
)

type v4l2EventSubscription struct {
	Type     uint32
	ID       uint32
	Flags    uint32
	Reserved [5]uint32
}

// V4L2Source reads request-manager events from a video device node.
type V4L2Source struct {
	mu     sync.Mutex
	fd     int
	path   string
	closed bool
}

// OpenV4L2 opens path non-blocking and subscribes to start-of-frame
// request-manager events.
func OpenV4L2(path string) (*V4L2Source, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	sub := v4l2EventSubscription{Type: uint32(TypeCamReqMgr), ID: IDSOFBootTS}
	if err := ioctl(fd, vidiocSubscribeEvent, unsafe.Pointer(&sub)); err != nil {
		unix.Close(fd) //nolint:errcheck // already failing
		return nil, fmt.Errorf("subscribing to %s: %w", path, err)
	}
	return &V4L2Source{fd: fd, path: path}, nil
}

// Poll waits for POLLPRI on the device.
func (s *V4L2Source) Poll(timeout time.Duration) (bool, error) {
	fd, err := s.handle()
	if err != nil {
		return false, err
	}

	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLPRI}}
	n, err := unix.Poll(fds, int(timeout/time.Millisecond))
	if err != nil {
		if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
			return false, fmt.Errorf("%w: %w", ErrInterrupted, err)
		}
		return false, err
	}
	return n > 0 && fds[0].Revents&unix.POLLPRI != 0, nil
}

// Dequeue pops one event with VIDIOC_DQEVENT.
func (s *V4L2Source) Dequeue() (Event, error) {
	fd, err := s.handle()
	if err != nil {
		return Event{}, err
	}

	var buf [rawEventSize]byte
	for {
		err = ioctl(fd, vidiocDQEvent, unsafe.Pointer(&buf[0]))
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		return Event{}, fmt.Errorf("VIDIOC_DQEVENT on %s: %w", s.path, err)
	}
	return ParseRawEvent(buf[:])
}

// Close unsubscribes and closes the device. Safe to call more than once.
func (s *V4L2Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	sub := v4l2EventSubscription{Type: uint32(TypeCamReqMgr), ID: IDSOFBootTS}
	_ = ioctl(s.fd, vidiocUnsubscribeEvnt, unsafe.Pointer(&sub)) //nolint:errcheck // closing anyway
	return unix.Close(s.fd)
}

func (s *V4L2Source) handle() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return -1, ErrClosed
	}
	return s.fd, nil
}

func ioctl(fd int, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
