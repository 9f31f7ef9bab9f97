package camera

import (
	"time"

	"github.com/nerrad567/camerad/internal/events"
	"github.com/nerrad567/camerad/internal/framebuf"
)

// stallFrames is how many frames may pass without a ready request before
// the request pipeline is rebuilt.
const stallFrames = 10

// HandleEvent runs the frame/request synchronizer for one notification.
//
// A notification with a zero request id is a frame the request manager
// had nothing bound to; after more than stallFrames of those the queue is
// cleared and a full window is re-requested. A ready notification fills
// the metadata slot for its request, re-requests the window after a
// skipped frame, backfills dropped request ids, and queues the request
// that keeps the ring full. Both checks run from the very first ready
// notification against ids starting at zero, so a stream that comes up
// mid-count realigns its queue at once.
func (c *Controller) HandleEvent(ev events.Event) {
	if !c.enabled {
		return
	}
	if c.link != 0 && ev.LinkHandle != c.link {
		c.logger.Warn("event link mismatch", "link", ev.LinkHandle, "want", c.link, "frame_id", ev.FrameID)
		return
	}

	depth := c.buffers.Depth()

	c.syncMu.Lock()
	defer c.syncMu.Unlock()
	st := &c.seq

	if ev.RequestID == 0 {
		if ev.FrameID > st.frameIDLast+stallFrames {
			c.logger.Warn("camera stalled, re-requesting buffers",
				"frame_id", ev.FrameID, "frame_id_last", st.frameIDLast, "request_id_last", st.requestIDLast)
			c.requests.ClearRequestQueue()
			c.requests.EnqueueRequests(st.requestIDLast+1, depth, false)
			st.frameIDLast = ev.FrameID
			st.skipped = true
			c.recordLoss(LossStall, ev.FrameID, st.requestIDLast, depth)
		}
		return
	}

	if ev.RequestID == 1 && !st.offsetLatched {
		st.idxOffset = ev.FrameID
		st.offsetLatched = true
	}
	bufIdx := int((ev.RequestID - 1) % uint64(depth))

	switch {
	case ev.FrameID > st.frameIDLast+1 && !st.skipped:
		c.logger.Warn("frame skipped, re-requesting buffers",
			"frame_id", ev.FrameID, "frame_id_last", st.frameIDLast, "request_id", ev.RequestID)
		c.requests.ClearRequestQueue()
		c.requests.EnqueueRequests(ev.RequestID+1, depth-1, false)
		st.skipped = true
		c.recordLoss(LossSkip, ev.FrameID, ev.RequestID, depth-1)
	case ev.FrameID == st.frameIDLast+1:
		st.skipped = false
	}

	if ev.RequestID > st.requestIDLast+1 {
		missing := int(ev.RequestID - (st.requestIDLast + 1))
		c.logger.Warn("requests dropped, backfilling",
			"request_id", ev.RequestID, "request_id_last", st.requestIDLast, "missing", missing)
		c.requests.EnqueueRequests(st.requestIDLast+2, missing, false)
		c.recordLoss(LossDrop, ev.FrameID, ev.RequestID, missing)
	}

	// Out-of-order ready events never move the last ids backwards.
	st.frameIDLast = max(st.frameIDLast, ev.FrameID)
	st.requestIDLast = max(st.requestIDLast, ev.RequestID)

	frameID := ev.FrameID
	if frameID >= st.idxOffset {
		frameID -= st.idxOffset
	}

	c.expMu.Lock()
	meta := framebuf.Metadata{
		FrameID:              frameID,
		RequestID:            ev.RequestID,
		TimestampSOF:         ev.Timestamp,
		Gain:                 c.exp.analogGainFrac * c.cal.Blend(c.exp.dcGainWeight),
		HighConversionGain:   c.exp.dcGainEnabled,
		IntegLines:           c.exp.exposureTime,
		MeasuredGreyFraction: c.exp.measuredGrey,
		TargetGreyFraction:   c.exp.targetGrey,
	}
	c.expMu.Unlock()

	c.buffers.WriteSlot(bufIdx, meta)
	c.requests.EnqueueRequests(ev.RequestID+uint64(depth), 1, true)
}

func (c *Controller) recordLoss(kind LossKind, frameID, requestID uint64, reissued int) {
	c.lossCounts[lossIndex(kind)].Add(1)
	if c.losses == nil {
		return
	}
	c.losses.FrameLoss(LossEvent{
		Camera:    c.index,
		Stream:    c.stream,
		Kind:      kind,
		FrameID:   frameID,
		RequestID: requestID,
		Reissued:  reissued,
		Time:      time.Now().UTC(),
	})
}
