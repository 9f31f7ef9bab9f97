package hwsim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/camerad/internal/camera"
	"github.com/nerrad567/camerad/internal/events"
	"github.com/nerrad567/camerad/internal/framebuf"
	"github.com/nerrad567/camerad/internal/sensor"
)

func newTestRig(opts Options) (*Rig, *Camera, *framebuf.Store) {
	r := New(opts)
	store := framebuf.New(4, 32, 8)
	c := r.AddCamera(CameraOptions{Index: 1, SessionHandle: 0x101, LinkHandle: 0x201, Store: store})
	return r, c, store
}

// drain steps the rig n frames and returns the camera's events.
func drain(r *Rig, n int) []events.Event {
	var out []events.Event
	for i := 0; i < n; i++ {
		r.mu.Lock()
		r.stepLocked()
		out = append(out, r.pending...)
		r.pending = r.pending[:0]
		r.mu.Unlock()
	}
	return out
}

// ===== Request queue =====

func TestCamera_RequestQueue(t *testing.T) {
	r, c, _ := newTestRig(Options{})
	c.EnqueueRequests(1, 4, false)

	evs := drain(r, 2)
	if evs[0].RequestID != 1 || evs[1].RequestID != 2 {
		t.Fatalf("served %d, %d; want 1, 2", evs[0].RequestID, evs[1].RequestID)
	}

	// Already served and already queued ids are ignored.
	c.EnqueueRequests(1, 4, false)
	if got := c.Stats().Queued; got != 2 {
		t.Errorf("Queued = %d, want 2", got)
	}

	c.ClearRequestQueue()
	evs = drain(r, 1)
	if evs[0].RequestID != 0 {
		t.Errorf("RequestID = %d after clear, want 0", evs[0].RequestID)
	}
	if evs[0].FrameID != 3 {
		t.Errorf("FrameID = %d, want 3", evs[0].FrameID)
	}
}

func TestCamera_EventIdentity(t *testing.T) {
	r, c, _ := newTestRig(Options{})
	c.EnqueueRequests(1, 1, false)

	ev := drain(r, 1)[0]
	if ev.Type != events.TypeCamReqMgr || ev.SessionHandle != 0x101 || ev.LinkHandle != 0x201 {
		t.Errorf("event = %+v", ev)
	}
}

// ===== Fault injection =====

func TestCamera_SkipEvery(t *testing.T) {
	r, c, _ := newTestRig(Options{SkipEvery: 4})
	c.EnqueueRequests(1, 10, false)

	var frames []uint64
	for _, ev := range drain(r, 6) {
		frames = append(frames, ev.FrameID)
	}
	want := []uint64{1, 2, 3, 5, 6, 7}
	for i := range want {
		if frames[i] != want[i] {
			t.Fatalf("frames = %v, want %v", frames, want)
		}
	}
}

func TestCamera_DropEvery(t *testing.T) {
	r, c, _ := newTestRig(Options{DropEvery: 3})
	c.EnqueueRequests(1, 10, false)

	var reqs []uint64
	for _, ev := range drain(r, 4) {
		reqs = append(reqs, ev.RequestID)
	}
	want := []uint64{1, 2, 4, 5}
	for i := range want {
		if reqs[i] != want[i] {
			t.Fatalf("requests = %v, want %v", reqs, want)
		}
	}
}

func TestCamera_StallAfter(t *testing.T) {
	r, c, _ := newTestRig(Options{StallAfter: 3})
	c.EnqueueRequests(1, 20, false)

	evs := drain(r, 2+stallFrames+1)
	for i, ev := range evs {
		stalled := i >= 2 && i < 2+stallFrames
		if stalled && ev.RequestID != 0 {
			t.Errorf("frame %d: RequestID = %d during stall", ev.FrameID, ev.RequestID)
		}
		if !stalled && ev.RequestID == 0 {
			t.Errorf("frame %d: no request outside stall", ev.FrameID)
		}
	}
	if last := evs[len(evs)-1]; last.RequestID != 3 {
		t.Errorf("first request after stall = %d, want 3", last.RequestID)
	}
}

// ===== Source and completion =====

func TestRig_PollDequeueCompletes(t *testing.T) {
	r, c, store := newTestRig(Options{FrameRate: 500, SceneLuma: 0.5})
	defer r.Close()
	c.SetExposureProbe(func() float64 { return 500 })
	c.EnqueueRequests(1, 4, false)

	ready, err := r.Poll(time.Second)
	if err != nil || !ready {
		t.Fatalf("Poll() = (%t, %v), want ready", ready, err)
	}
	ev, err := r.Dequeue()
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if ev.RequestID != 1 {
		t.Fatalf("RequestID = %d, want 1", ev.RequestID)
	}
	store.WriteSlot(0, framebuf.Metadata{RequestID: 1})

	// The next poll completes the buffer of the handled event.
	if _, err := r.Poll(time.Second); err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if !store.Acquire(time.Second) {
		t.Fatal("buffer not completed")
	}
	if got := store.Current().RequestID; got != 1 {
		t.Errorf("completed RequestID = %d, want 1", got)
	}
	// EV 500 at scene 0.5 reads a quarter of full scale.
	img := store.CurrentImage()
	if img[0] < 60 || img[0] > 68 {
		t.Errorf("luma = %d, want about 64", img[0])
	}
}

func TestRig_PollTimeout(t *testing.T) {
	r, _, _ := newTestRig(Options{FrameRate: 1})
	defer r.Close()

	ready, err := r.Poll(10 * time.Millisecond)
	if err != nil || ready {
		t.Errorf("Poll() = (%t, %v), want timeout", ready, err)
	}
}

func TestRig_Close(t *testing.T) {
	r, _, _ := newTestRig(Options{FrameRate: 1})

	done := make(chan error, 1)
	go func() {
		_, err := r.Poll(5 * time.Second)
		done <- err
	}()
	time.Sleep(20 * time.Millisecond)
	r.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Poll did not return after Close")
	}
	if _, err := r.Poll(time.Millisecond); !errors.Is(err, events.ErrClosed) {
		t.Errorf("Poll() after Close error = %v, want ErrClosed", err)
	}
}

func TestRig_WriteRegisters(t *testing.T) {
	r, c, _ := newTestRig(Options{})
	writes := []sensor.RegWrite{{Addr: 0x3012, Data: 100}}

	if err := r.WriteRegisters(context.Background(), 1, camera.OpSensorConfig, false, writes); err != nil {
		t.Fatalf("WriteRegisters() error = %v", err)
	}
	st := c.Stats()
	if st.RegisterWrites != 1 || st.LastOpcode != camera.OpSensorConfig || st.LastDataWord || st.LastRegisters[0] != writes[0] {
		t.Errorf("stats = %+v", st)
	}
	if err := r.WriteRegisters(context.Background(), 7, camera.OpSensorConfig, false, writes); err == nil {
		t.Error("unknown camera: expected error")
	}

	wide := []sensor.RegWrite{{Addr: 0x3366, Data: 0xFF55}}
	if err := r.WriteRegisters(context.Background(), 1, camera.OpSensorConfig, false, wide); err == nil {
		t.Error("16-bit data on a byte bus: expected error")
	}
	if err := r.WriteRegisters(context.Background(), 1, camera.OpSensorConfig, true, wide); err != nil {
		t.Fatalf("WriteRegisters(dataWord) error = %v", err)
	}
	if st := c.Stats(); st.RegisterWrites != 2 || !st.LastDataWord {
		t.Errorf("stats after word batch = %+v", st)
	}
}
