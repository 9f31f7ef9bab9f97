package events

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Type identifies the kind of a driver event.
type Type uint32

// TypeCamReqMgr is the request-manager event class (V4L_EVENT_CAM_REQ_MGR_EVENT).
const TypeCamReqMgr Type = 0x08000000

// Request-manager event ids, used when subscribing.
const (
	IDSOF       uint32 = 0
	IDError     uint32 = 1
	IDSOFBootTS uint32 = 2
)

// Event is one request-manager notification. RequestID is zero while the
// frame is not yet bound to an application request.
type Event struct {
	Type          Type
	SessionHandle int32
	LinkHandle    int32
	FrameID       uint64
	RequestID     uint64
	// Timestamp is the start-of-frame time in nanoseconds since boot.
	Timestamp uint64
	SOFStatus uint32
}

// String renders the event the way debug frame output prints it.
func (e Event) String() string {
	return fmt.Sprintf("sess_hdl 0x%6X, link_hdl 0x%6X, frame_id %d, req_id %d, timestamp %.2f ms, sof_status %d",
		e.SessionHandle, e.LinkHandle, e.FrameID, e.RequestID,
		float64(e.Timestamp)/float64(time.Millisecond), e.SOFStatus)
}

// Raw v4l2_event layout on 64-bit kernels.
const (
	rawEventSize    = 136
	rawDataOffset   = 8
	rawMessageBytes = 40
)

// ParseRawEvent decodes a struct v4l2_event carrying a cam_req_mgr_message
// in its data union. Only the frame-message variant is decoded.
func ParseRawEvent(buf []byte) (Event, error) {
	if len(buf) < rawDataOffset+rawMessageBytes {
		return Event{}, fmt.Errorf("%w: %d bytes", ErrShortEvent, len(buf))
	}
	le := binary.LittleEndian
	msg := buf[rawDataOffset:]
	return Event{
		Type:          Type(le.Uint32(buf[0:4])),
		SessionHandle: int32(le.Uint32(msg[0:4])),
		RequestID:     le.Uint64(msg[8:16]),
		FrameID:       le.Uint64(msg[16:24]),
		Timestamp:     le.Uint64(msg[24:32]),
		LinkHandle:    int32(le.Uint32(msg[32:36])),
		SOFStatus:     le.Uint32(msg[36:40]),
	}, nil
}

// EncodeRawEvent is the inverse of ParseRawEvent. The simulation rig and
// tests use it to produce driver-shaped buffers.
func EncodeRawEvent(e Event) []byte {
	buf := make([]byte, rawEventSize)
	le := binary.LittleEndian
	le.PutUint32(buf[0:4], uint32(e.Type))
	msg := buf[rawDataOffset:]
	le.PutUint32(msg[0:4], uint32(e.SessionHandle))
	le.PutUint64(msg[8:16], e.RequestID)
	le.PutUint64(msg[16:24], e.FrameID)
	le.PutUint64(msg[24:32], e.Timestamp)
	le.PutUint32(msg[32:36], uint32(e.LinkHandle))
	le.PutUint32(msg[36:40], e.SOFStatus)
	return buf
}
