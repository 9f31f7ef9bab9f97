// Package framebuf is the frame buffer store: a fixed ring of metadata
// slots and luma buffers shared by the event dispatcher (writer), the ISP
// (completion) and a camera's publisher loop (reader).
package framebuf

import (
	"sync"
	"time"
)

// Metadata describes one captured frame.
type Metadata struct {
	FrameID      uint64
	RequestID    uint64
	TimestampSOF uint64
	TimestampEOF uint64

	Gain               float64
	HighConversionGain bool
	IntegLines         int

	MeasuredGreyFraction float64
	TargetGreyFraction   float64

	// ProcessingTime is seconds from end-of-frame to acquisition.
	ProcessingTime float64
}

// Option configures a Store.
type Option func(*Store)

// WithClock sets the nanosecond clock used to stamp processing time.
func WithClock(now func() uint64) Option {
	return func(s *Store) { s.now = now }
}

// Store owns depth slots and depth luma buffers of width*height bytes.
// Nothing grows after New.
type Store struct {
	width  int
	height int

	mu     sync.Mutex
	slots  []Metadata
	images [][]byte

	ready chan int

	cur    Metadata
	curIdx int

	overruns uint64

	now func() uint64
}

// New allocates a store with depth slots.
func New(depth, width, height int, opts ...Option) *Store {
	s := &Store{
		width:  width,
		height: height,
		slots:  make([]Metadata, depth),
		images: make([][]byte, depth),
		ready:  make(chan int, depth),
		curIdx: -1,
		now:    func() uint64 { return uint64(time.Now().UnixNano()) },
	}
	for i := range s.images {
		s.images[i] = make([]byte, width*height)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Depth returns the number of slots.
func (s *Store) Depth() int { return len(s.slots) }

// Width returns the luma plane width in pixels.
func (s *Store) Width() int { return s.width }

// Height returns the luma plane height in pixels.
func (s *Store) Height() int { return s.height }

// WriteSlot overwrites the metadata of slot idx.
func (s *Store) WriteSlot(idx int, m Metadata) {
	s.mu.Lock()
	s.slots[idx] = m
	s.mu.Unlock()
}

// Slot returns a copy of slot idx.
func (s *Store) Slot(idx int) Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[idx]
}

// Buffer returns the luma buffer of slot idx for an in-place writer.
func (s *Store) Buffer(idx int) []byte {
	return s.images[idx]
}

// Complete marks buffer idx as filled and queues it for Acquire. A non-nil
// image is copied into the slot's buffer first. If the publisher has fallen
// a full ring behind, the completion is counted as an overrun and dropped.
func (s *Store) Complete(idx int, tsEOF uint64, image []byte) {
	s.mu.Lock()
	if image != nil {
		copy(s.images[idx], image)
	}
	s.slots[idx].TimestampEOF = tsEOF
	s.mu.Unlock()

	select {
	case s.ready <- idx:
	default:
		s.mu.Lock()
		s.overruns++
		s.mu.Unlock()
	}
}

// Acquire waits up to timeout for the next completed buffer and makes it
// current. It returns false on timeout.
func (s *Store) Acquire(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var idx int
	select {
	case idx = <-s.ready:
	case <-timer.C:
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = s.slots[idx]
	s.curIdx = idx
	if now := s.now(); now > s.cur.TimestampEOF && s.cur.TimestampEOF > 0 {
		s.cur.ProcessingTime = float64(now-s.cur.TimestampEOF) * 1e-9
	}
	return true
}

// Current returns the metadata of the last acquired buffer.
func (s *Store) Current() Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// CurrentImage returns the luma plane of the last acquired buffer, or nil
// before the first Acquire. The slice aliases the ring and stays valid
// until that slot is completed again.
func (s *Store) CurrentImage() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.curIdx < 0 {
		return nil
	}
	return s.images[s.curIdx]
}

// Overruns returns how many completions were dropped because the ready
// queue was full.
func (s *Store) Overruns() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overruns
}
