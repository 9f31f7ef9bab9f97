package hwsim

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/camerad/internal/camera"
	"github.com/nerrad567/camerad/internal/events"
	"github.com/nerrad567/camerad/internal/framebuf"
	"github.com/nerrad567/camerad/internal/sensor"
)

const (
	defaultFrameRate = 20.0
	defaultSceneLuma = 0.5
	// stallFrames is longer than the synchronizer's stall threshold.
	stallFrames = 12
	// evReference is the exposure value at which a frame reads SceneLuma.
	evReference = 1000.0
)

// Options configures a Rig.
type Options struct {
	// FrameRate is the sensor frame rate in Hz.
	FrameRate float64
	// SceneLuma is the grey fraction a frame reads at an exposure value of 1000.
	SceneLuma float64

	SkipEvery  int
	DropEvery  int
	StallAfter int

	// Now returns nanoseconds on the event timestamp clock.
	Now func() uint64
}

// Rig is the simulated hardware shared by all cameras.
type Rig struct {
	interval  time.Duration
	sceneLuma float64
	skipEvery int
	dropEvery int
	stallAft  int
	now       func() uint64

	mu          sync.Mutex
	cams        []*Camera
	pending     []events.Event
	completions []completion
	nextTick    time.Time
	closed      bool
	done        chan struct{}
}

type completion struct {
	cam *Camera
	idx int
}

// New creates a rig with no cameras.
func New(opts Options) *Rig {
	if opts.FrameRate <= 0 {
		opts.FrameRate = defaultFrameRate
	}
	if opts.SceneLuma <= 0 {
		opts.SceneLuma = defaultSceneLuma
	}
	if opts.Now == nil {
		start := time.Now()
		opts.Now = func() uint64 { return uint64(time.Since(start)) }
	}
	return &Rig{
		interval:  time.Duration(float64(time.Second) / opts.FrameRate),
		sceneLuma: opts.SceneLuma,
		skipEvery: opts.SkipEvery,
		dropEvery: opts.DropEvery,
		stallAft:  opts.StallAfter,
		now:       opts.Now,
		done:      make(chan struct{}),
	}
}

// CameraOptions describes one simulated sensor session.
type CameraOptions struct {
	Index         int
	SessionHandle int32
	LinkHandle    int32
	Store         *framebuf.Store
}

// AddCamera attaches a session to the rig.
func (r *Rig) AddCamera(opts CameraOptions) *Camera {
	c := &Camera{
		rig:     r,
		index:   opts.Index,
		session: opts.SessionHandle,
		link:    opts.LinkHandle,
		store:   opts.Store,
	}
	r.mu.Lock()
	r.cams = append(r.cams, c)
	r.mu.Unlock()
	return c
}

// Camera returns the session for a camera index, or nil.
func (r *Rig) Camera(index int) *Camera {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.cams {
		if c.index == index {
			return c
		}
	}
	return nil
}

// Poll completes buffers whose events were handled, then waits for the
// next frame tick.
func (r *Rig) Poll(timeout time.Duration) (bool, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false, events.ErrClosed
	}
	if len(r.pending) > 0 {
		r.mu.Unlock()
		return true, nil
	}
	r.flushLocked()
	if r.nextTick.IsZero() {
		r.nextTick = time.Now().Add(r.interval)
	}
	wait := time.Until(r.nextTick)
	r.mu.Unlock()

	if wait > timeout {
		r.wait(timeout)
		return false, nil
	}
	if wait > 0 && !r.wait(wait) {
		return false, events.ErrClosed
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false, events.ErrClosed
	}
	r.nextTick = r.nextTick.Add(r.interval)
	if behind := time.Since(r.nextTick); behind > r.interval {
		r.nextTick = time.Now().Add(r.interval)
	}
	r.stepLocked()
	return len(r.pending) > 0, nil
}

// wait sleeps for d and reports false if the rig was closed meanwhile.
func (r *Rig) wait(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-r.done:
		return false
	}
}

// Dequeue returns the next event of the current tick.
func (r *Rig) Dequeue() (events.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return events.Event{}, events.ErrClosed
	}
	r.flushLocked()
	if len(r.pending) == 0 {
		return events.Event{}, fmt.Errorf("hwsim: no pending event")
	}

	ev := r.pending[0]
	r.pending = r.pending[1:]
	if ev.RequestID != 0 {
		if c := r.cameraForSession(ev.SessionHandle); c != nil && c.store != nil {
			idx := int((ev.RequestID - 1) % uint64(c.store.Depth()))
			r.completions = append(r.completions, completion{cam: c, idx: idx})
		}
	}
	return ev, nil
}

// Close stops the rig. Blocked Polls return ErrClosed.
func (r *Rig) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.done)
	}
	return nil
}

// WriteRegisters records a register batch for the camera index. A byte-wide
// bus refuses the whole batch if any value needs 16 bits.
func (r *Rig) WriteRegisters(_ context.Context, cameraIdx int, op camera.Opcode, dataWord bool, writes []sensor.RegWrite) error {
	c := r.Camera(cameraIdx)
	if c == nil {
		return fmt.Errorf("hwsim: no camera %d", cameraIdx)
	}
	if !dataWord {
		for _, w := range writes {
			if w.Data > 0xFF {
				return fmt.Errorf("hwsim: register 0x%04x: data 0x%04x does not fit a byte", w.Addr, w.Data)
			}
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regBatches++
	c.lastOp = op
	c.lastDataWord = dataWord
	c.lastRegs = append(c.lastRegs[:0], writes...)
	return nil
}

// stepLocked emits one frame event per camera.
func (r *Rig) stepLocked() {
	ts := r.now()
	for _, c := range r.cams {
		r.pending = append(r.pending, c.nextEvent(ts))
	}
}

// flushLocked completes the buffers of ready events already handed out.
func (r *Rig) flushLocked() {
	for _, done := range r.completions {
		done.cam.render(done.idx, r.sceneLuma)
		done.cam.store.Complete(done.idx, r.now(), nil)
	}
	r.completions = r.completions[:0]
}

func (r *Rig) cameraForSession(session int32) *Camera {
	for _, c := range r.cams {
		if c.session == session {
			return c
		}
	}
	return nil
}

// Camera is one simulated sensor session and its request queue.
type Camera struct {
	rig     *Rig
	index   int
	session int32
	link    int32
	store   *framebuf.Store

	mu         sync.Mutex
	queue      []uint64
	lastServed uint64
	frameID    uint64
	frames     int
	served     int
	stallLeft  int
	hasStalled bool
	probe      func() float64

	regBatches   uint64
	lastOp       camera.Opcode
	lastDataWord bool
	lastRegs     []sensor.RegWrite
}

// SetExposureProbe sets the function the scene reads the applied exposure
// value from.
func (c *Camera) SetExposureProbe(fn func() float64) {
	c.mu.Lock()
	c.probe = fn
	c.mu.Unlock()
}

// ClearRequestQueue drops every request not yet bound to a frame.
func (c *Camera) ClearRequestQueue() {
	c.mu.Lock()
	c.queue = c.queue[:0]
	c.mu.Unlock()
}

// EnqueueRequests queues request ids start..start+count-1. Ids already
// served or already queued are ignored.
func (c *Camera) EnqueueRequests(start uint64, count int, _ bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := start; id < start+uint64(max(count, 0)); id++ {
		if id <= c.lastServed || c.queuedLocked(id) {
			continue
		}
		c.queue = append(c.queue, id)
	}
	sort.Slice(c.queue, func(i, j int) bool { return c.queue[i] < c.queue[j] })
}

func (c *Camera) queuedLocked(id uint64) bool {
	for _, q := range c.queue {
		if q == id {
			return true
		}
	}
	return false
}

func (c *Camera) popLocked() (uint64, bool) {
	if len(c.queue) == 0 {
		return 0, false
	}
	id := c.queue[0]
	c.queue = c.queue[1:]
	return id, true
}

// nextEvent advances the hardware frame counter and binds the oldest
// queued request, applying any configured fault.
func (c *Camera) nextEvent(ts uint64) events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.rig

	c.frameID++
	c.frames++
	if r.skipEvery > 0 && c.frames%r.skipEvery == 0 {
		c.frameID++
	}
	ev := events.Event{
		Type:          events.TypeCamReqMgr,
		SessionHandle: c.session,
		LinkHandle:    c.link,
		FrameID:       c.frameID,
		Timestamp:     ts,
	}

	if c.stallLeft > 0 {
		c.stallLeft--
		return ev
	}
	if r.stallAft > 0 && !c.hasStalled && c.frames >= r.stallAft {
		c.hasStalled = true
		c.stallLeft = stallFrames - 1
		return ev
	}

	id, ok := c.popLocked()
	if !ok {
		return ev
	}
	c.served++
	if r.dropEvery > 0 && c.served%r.dropEvery == 0 {
		if next, ok := c.popLocked(); ok {
			id = next
		}
	}
	c.lastServed = id
	ev.RequestID = id
	return ev
}

// render paints buffer idx with a textured flat field whose level follows
// the applied exposure.
func (c *Camera) render(idx int, sceneLuma float64) {
	c.mu.Lock()
	probe := c.probe
	c.mu.Unlock()

	ev := evReference
	if probe != nil {
		ev = probe()
	}
	level := sceneLuma * ev / evReference * 256

	buf := c.store.Buffer(idx)
	w := c.store.Width()
	if w == 0 || len(buf) < w {
		return
	}
	row := buf[:w]
	for x := range row {
		v := level + float64((x/16)%5-2)
		row[x] = uint8(min(max(v, 0), 255))
	}
	for off := w; off+w <= len(buf); off += w {
		copy(buf[off:off+w], row)
	}
}

// CameraStats describes a simulated session.
type CameraStats struct {
	FrameID        uint64
	LastServed     uint64
	Queued         int
	RegisterWrites uint64
	LastOpcode     camera.Opcode
	LastDataWord   bool
	LastRegisters  []sensor.RegWrite
}

// Stats returns a snapshot of the session.
func (c *Camera) Stats() CameraStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CameraStats{
		FrameID:        c.frameID,
		LastServed:     c.lastServed,
		Queued:         len(c.queue),
		RegisterWrites: c.regBatches,
		LastOpcode:     c.lastOp,
		LastDataWord:   c.lastDataWord,
		LastRegisters:  append([]sensor.RegWrite(nil), c.lastRegs...),
	}
}
