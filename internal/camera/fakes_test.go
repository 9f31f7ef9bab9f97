package camera

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/camerad/internal/framebuf"
	"github.com/nerrad567/camerad/internal/sensor"
)

// ===== Test doubles =====

type enqueueCall struct {
	start        uint64
	count        int
	autoDispatch bool
}

type mockRequests struct {
	mu       sync.Mutex
	clears   int
	enqueues []enqueueCall
	log      []string
}

func (m *mockRequests) ClearRequestQueue() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	m.log = append(m.log, "clear")
}

func (m *mockRequests) EnqueueRequests(start uint64, count int, autoDispatch bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueues = append(m.enqueues, enqueueCall{start, count, autoDispatch})
	m.log = append(m.log, fmt.Sprintf("enqueue(%d,%d,%t)", start, count, autoDispatch))
}

func (m *mockRequests) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears = 0
	m.enqueues = nil
	m.log = nil
}

func (m *mockRequests) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.log...)
}

type mockStore struct {
	mu     sync.Mutex
	depth  int
	slots  map[int]framebuf.Metadata
	writes int

	// frames is served by Acquire in order; a nil entry is a miss.
	frames []*framebuf.Metadata
	image  []byte
	cur    framebuf.Metadata
	exit   interface{ Set() }

	overruns uint64
}

func newMockStore(depth int) *mockStore {
	return &mockStore{depth: depth, slots: make(map[int]framebuf.Metadata)}
}

func (s *mockStore) Depth() int { return s.depth }

func (s *mockStore) WriteSlot(idx int, m framebuf.Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[idx] = m
	s.writes++
}

func (s *mockStore) Acquire(time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		if s.exit != nil {
			s.exit.Set()
		}
		return false
	}
	f := s.frames[0]
	s.frames = s.frames[1:]
	if f == nil {
		return false
	}
	s.cur = *f
	return true
}

func (s *mockStore) Current() framebuf.Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

func (s *mockStore) CurrentImage() []byte { return s.image }

func (s *mockStore) Overruns() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overruns
}

func (s *mockStore) slot(idx int) framebuf.Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[idx]
}

type registerCall struct {
	camera   int
	op       Opcode
	dataWord bool
	writes   []sensor.RegWrite
}

type mockRegisters struct {
	mu    sync.Mutex
	calls []registerCall
	err   error
}

func (m *mockRegisters) WriteRegisters(_ context.Context, camera int, op Opcode, dataWord bool, writes []sensor.RegWrite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, registerCall{camera, op, dataWord, writes})
	return m.err
}

type mapOverrides map[string]string

func (m mapOverrides) Get(key string) string { return m[key] }

type mockPublisher struct {
	mu     sync.Mutex
	frames []*FrameRecord
	thumbs []*Thumbnail
}

func (p *mockPublisher) PublishFrame(_ context.Context, rec *FrameRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, rec)
	return nil
}

func (p *mockPublisher) PublishThumbnail(_ context.Context, th *Thumbnail) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.thumbs = append(p.thumbs, th)
	return nil
}

type mockLosses struct {
	mu     sync.Mutex
	events []LossEvent
}

func (m *mockLosses) FrameLoss(ev LossEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

type testExit struct {
	mu  sync.Mutex
	set bool
}

func (e *testExit) Set() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.set = true
}

func (e *testExit) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.set
}

// scoreSensor wraps a real calibration with a synthetic score function and
// records every candidate it is asked to score.
type scoreSensor struct {
	cal    *sensor.Calibration
	score  func(desired float64, t, g int, gain float64, cur int) float64
	scored []candidate
}

type candidate struct {
	t, g  int
	score float64
}

func (s *scoreSensor) Model() string { return "synthetic" }

func (s *scoreSensor) Calibration() *sensor.Calibration { return s.cal }

func (s *scoreSensor) Registers(t, g int, dc bool) []sensor.RegWrite {
	return []sensor.RegWrite{{Addr: 1, Data: uint16(t)}, {Addr: 2, Data: uint16(g)}}
}

func (s *scoreSensor) Score(desired float64, t, g int, gain float64, cur int) float64 {
	v := s.score(desired, t, g, gain, cur)
	s.scored = append(s.scored, candidate{t: t, g: g, score: v})
	return v
}

// ===== Helpers =====

type rig struct {
	ctrl      *Controller
	requests  *mockRequests
	store     *mockStore
	registers *mockRegisters
	publisher *mockPublisher
	losses    *mockLosses
	sleeps    []time.Duration
}

func testSensor(t *testing.T, model string) sensor.Sensor {
	t.Helper()
	cals, err := sensor.DefaultCalibrations()
	if err != nil {
		t.Fatalf("DefaultCalibrations() error = %v", err)
	}
	s, err := cals.New(model)
	if err != nil {
		t.Fatalf("New(%q) error = %v", model, err)
	}
	return s
}

// newRig builds an enabled road camera with depth 4. mutate may adjust the
// options before construction.
func newRig(t *testing.T, s sensor.Sensor, mutate func(*Options)) *rig {
	t.Helper()
	r := &rig{
		requests:  &mockRequests{},
		store:     newMockStore(4),
		registers: &mockRegisters{},
		publisher: &mockPublisher{},
		losses:    &mockLosses{},
	}
	opts := Options{
		Index:         1,
		Role:          RoleRoad,
		Sensor:        s,
		FocalLengthMM: 8.0,
		Width:         1928,
		Height:        1208,
		Enabled:       true,
		SessionHandle: 0x101,
		Buffers:       r.store,
		Requests:      r.requests,
		Registers:     r.registers,
		Publisher:     r.publisher,
		Losses:        r.losses,
		Now:           func() uint64 { return 0 },
		Sleep:         func(_ context.Context, d time.Duration) { r.sleeps = append(r.sleeps, d) },
	}
	if mutate != nil {
		mutate(&opts)
	}
	ctrl, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	r.ctrl = ctrl
	return r
}

func (s *mockStore) lastRequest() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last uint64
	for _, m := range s.slots {
		last = max(last, m.RequestID)
	}
	return last
}
