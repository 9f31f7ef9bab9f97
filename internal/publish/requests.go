package publish

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nerrad567/camerad/internal/infrastructure/mqtt"
)

// Request actions sent on camerad/command/requests/<camera>.
const (
	RequestActionClear   = "clear"
	RequestActionEnqueue = "enqueue"
)

// ErrBadCompletion is returned for an ISP completion that cannot be applied.
var ErrBadCompletion = errors.New("publish: invalid isp completion")

// RequestCommand is the payload sent on camerad/command/requests/<camera>.
type RequestCommand struct {
	Action       string `json:"action"`
	Camera       int    `json:"camera"`
	Start        uint64 `json:"start,omitempty"`
	Count        int    `json:"count,omitempty"`
	AutoDispatch bool   `json:"auto_dispatch,omitempty"`
}

// MQTTRequestManager is the camera.RequestManager for a request manager
// reached over MQTT. Publish failures are logged; the synchronizer's stall
// recovery re-requests the window if commands are lost.
type MQTTRequestManager struct {
	client MQTTPublisher
	camera int
	logger Logger
}

// NewMQTTRequestManager creates a request manager for one camera.
func NewMQTTRequestManager(client MQTTPublisher, cameraIdx int, logger Logger) *MQTTRequestManager {
	return &MQTTRequestManager{client: client, camera: cameraIdx, logger: orNoop(logger)}
}

// ClearRequestQueue implements camera.RequestManager.
func (m *MQTTRequestManager) ClearRequestQueue() {
	m.send(RequestCommand{Action: RequestActionClear, Camera: m.camera})
}

// EnqueueRequests implements camera.RequestManager.
func (m *MQTTRequestManager) EnqueueRequests(start uint64, count int, autoDispatch bool) {
	m.send(RequestCommand{
		Action:       RequestActionEnqueue,
		Camera:       m.camera,
		Start:        start,
		Count:        count,
		AutoDispatch: autoDispatch,
	})
}

func (m *MQTTRequestManager) send(cmd RequestCommand) {
	payload, err := json.Marshal(cmd)
	if err == nil {
		err = m.client.Publish(mqtt.Topics{}.RequestCommand(m.camera), payload, 1, false)
	}
	if err != nil {
		m.logger.Warn("forwarding buffer request failed", "camera", m.camera, "action", cmd.Action, "error", err)
	}
}

// ISPCompletion is the payload received on camerad/isp/complete/<camera>.
// Image, when present, replaces the buffer's luma plane.
type ISPCompletion struct {
	BufIdx       int    `json:"buf_idx"`
	TimestampEOF uint64 `json:"timestamp_eof"`
	Image        []byte `json:"image,omitempty"`
}

// Completer is the frame store side that receives finished buffers.
type Completer interface {
	Depth() int
	Complete(idx int, tsEOF uint64, image []byte)
}

// SubscribeCompletions feeds ISP completions for one camera into store.
func SubscribeCompletions(sub Subscriber, cameraIdx int, store Completer) error {
	return sub.Subscribe(mqtt.Topics{}.ISPComplete(cameraIdx), 1, func(_ string, payload []byte) error {
		return applyCompletion(store, payload)
	})
}

func applyCompletion(store Completer, payload []byte) error {
	var c ISPCompletion
	if err := json.Unmarshal(payload, &c); err != nil {
		return fmt.Errorf("%w: %w", ErrBadCompletion, err)
	}
	if c.BufIdx < 0 || c.BufIdx >= store.Depth() {
		return fmt.Errorf("%w: buffer %d outside ring of %d", ErrBadCompletion, c.BufIdx, store.Depth())
	}
	store.Complete(c.BufIdx, c.TimestampEOF, c.Image)
	return nil
}
