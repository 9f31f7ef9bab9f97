package events

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// ===== Fakes =====

type step struct {
	ready bool
	err   error
	event Event
	deqEr error
}

// scriptSource replays steps and raises exit once they run out.
type scriptSource struct {
	mu    sync.Mutex
	steps []step
	cur   step
	exit  *flag
	polls int
}

func (s *scriptSource) Poll(time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++
	if len(s.steps) == 0 {
		s.exit.Set()
		return false, nil
	}
	s.cur, s.steps = s.steps[0], s.steps[1:]
	return s.cur.ready, s.cur.err
}

func (s *scriptSource) Dequeue() (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.event, s.cur.deqEr
}

func (s *scriptSource) Close() error { return nil }

type flag struct{ v atomic.Bool }

func (f *flag) IsSet() bool { return f.v.Load() }
func (f *flag) Set()        { f.v.Store(true) }

type recordingHandler struct {
	mu      sync.Mutex
	session int32
	got     []Event
}

func (h *recordingHandler) SessionHandle() int32 { return h.session }
func (h *recordingHandler) HandleEvent(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.got = append(h.got, ev)
}

func (h *recordingHandler) events() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Event(nil), h.got...)
}

func ready(session int32, frame, req uint64) step {
	return step{ready: true, event: Event{Type: TypeCamReqMgr, SessionHandle: session, FrameID: frame, RequestID: req}}
}

// ===== Dispatcher =====

func TestDispatcher_RoutesBySession(t *testing.T) {
	exit := &flag{}
	road := &recordingHandler{session: 0x101}
	wide := &recordingHandler{session: 0x100}
	src := &scriptSource{exit: exit, steps: []step{
		ready(0x101, 1, 1),
		ready(0x100, 1, 1),
		ready(0x101, 2, 2),
		ready(0x999, 2, 2),
	}}

	d := NewDispatcher(DispatcherOptions{Source: src, Handlers: []Handler{road, wide}, Exit: exit})
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := len(road.events()); got != 2 {
		t.Errorf("road events = %d, want 2", got)
	}
	if got := len(wide.events()); got != 1 {
		t.Errorf("wide events = %d, want 1", got)
	}
}

func TestDispatcher_RetriesInterrupted(t *testing.T) {
	exit := &flag{}
	h := &recordingHandler{session: 1}
	src := &scriptSource{exit: exit, steps: []step{
		{err: ErrInterrupted},
		{},
		{err: ErrInterrupted},
		ready(1, 5, 1),
	}}

	d := NewDispatcher(DispatcherOptions{Source: src, Handlers: []Handler{h}, Exit: exit})
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := len(h.events()); got != 1 {
		t.Errorf("events = %d, want 1", got)
	}
}

func TestDispatcher_FatalPollError(t *testing.T) {
	exit := &flag{}
	boom := errors.New("bad file descriptor")
	src := &scriptSource{exit: exit, steps: []step{{err: boom}, ready(1, 1, 1)}}

	d := NewDispatcher(DispatcherOptions{Source: src, Exit: exit})
	err := d.Run(context.Background())
	if !errors.Is(err, ErrPollFailed) || !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want ErrPollFailed wrapping cause", err)
	}
	if !exit.IsSet() {
		t.Error("exit flag not raised on fatal poll error")
	}
}

func TestDispatcher_IgnoresUnknownTypeAndDequeueErrors(t *testing.T) {
	exit := &flag{}
	h := &recordingHandler{session: 1}
	src := &scriptSource{exit: exit, steps: []step{
		{ready: true, event: Event{Type: 0x1234, SessionHandle: 1}},
		{ready: true, deqEr: errors.New("EINVAL")},
		ready(1, 1, 1),
	}}

	d := NewDispatcher(DispatcherOptions{Source: src, Handlers: []Handler{h}, Exit: exit})
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := len(h.events()); got != 1 {
		t.Errorf("events = %d, want 1", got)
	}
}

func TestDispatcher_DebugFramesExitAfterLimit(t *testing.T) {
	exit := &flag{}
	h := &recordingHandler{session: 1}
	var steps []step
	for f := uint64(19); f <= 25; f++ {
		steps = append(steps, ready(1, f, f))
	}
	src := &scriptSource{exit: exit, steps: steps}
	var out bytes.Buffer

	d := NewDispatcher(DispatcherOptions{Source: src, Handlers: []Handler{h}, Exit: exit, DebugFrames: true, DebugOut: &out})
	if err := d.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Frame 21 raises exit but is still routed.
	if got := len(h.events()); got != 3 {
		t.Errorf("events = %d, want 3", got)
	}
	if !strings.Contains(out.String(), "frame_id 21") {
		t.Errorf("debug output missing frame 21: %q", out.String())
	}
}

func TestDispatcher_StopsOnCancel(t *testing.T) {
	exit := &flag{}
	src := &scriptSource{exit: exit, steps: []step{{}, {}, {}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDispatcher(DispatcherOptions{Source: src, Exit: exit})
	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !exit.IsSet() {
		t.Error("exit flag not raised on cancel")
	}
	if src.polls != 0 {
		t.Errorf("polls = %d, want 0", src.polls)
	}
}

// ===== Raw event codec =====

func TestParseRawEvent(t *testing.T) {
	want := Event{
		Type:          TypeCamReqMgr,
		SessionHandle: 0x101,
		LinkHandle:    0x201,
		FrameID:       4242,
		RequestID:     17,
		Timestamp:     123_456_789,
		SOFStatus:     1,
	}

	buf := EncodeRawEvent(want)
	if len(buf) != 136 {
		t.Fatalf("encoded length = %d, want 136", len(buf))
	}
	// session_hdl sits at the start of the data union.
	if buf[8] != 0x01 || buf[9] != 0x01 {
		t.Errorf("session bytes = %x %x", buf[8], buf[9])
	}

	got, err := ParseRawEvent(buf)
	if err != nil {
		t.Fatalf("ParseRawEvent() error = %v", err)
	}
	if got != want {
		t.Errorf("ParseRawEvent() = %+v, want %+v", got, want)
	}
}

func TestParseRawEvent_Short(t *testing.T) {
	if _, err := ParseRawEvent(make([]byte, 20)); !errors.Is(err, ErrShortEvent) {
		t.Errorf("error = %v, want ErrShortEvent", err)
	}
}

func TestEventString(t *testing.T) {
	ev := Event{SessionHandle: 0x101, LinkHandle: 0x201, FrameID: 3, RequestID: 2, Timestamp: 1_500_000}
	got := ev.String()
	if !strings.Contains(got, "frame_id 3") || !strings.Contains(got, "timestamp 1.50 ms") {
		t.Errorf("String() = %q", got)
	}
}
