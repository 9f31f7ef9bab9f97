package camera

import (
	"context"
	"time"

	"github.com/nerrad567/camerad/internal/framebuf"
	"github.com/nerrad567/camerad/internal/sensor"
)

// Role is the camera's position on the vehicle.
type Role string

const (
	RoleRoad     Role = "road"
	RoleWideRoad Role = "wide_road"
	RoleDriver   Role = "driver"
)

// StreamName is the name records for this role are published under.
func (r Role) StreamName() string {
	switch r {
	case RoleRoad:
		return "roadCameraState"
	case RoleWideRoad:
		return "wideRoadCameraState"
	case RoleDriver:
		return "driverCameraState"
	}
	return string(r)
}

// Opcode tags a register write batch.
type Opcode string

// OpSensorConfig marks a batch as a sensor configuration update.
const OpSensorConfig Opcode = "sensor_config"

// Debug override keys looked up in the OverrideStore.
const (
	KeyExposureGain = "CameraDebugExpGain"
	KeyExposureTime = "CameraDebugExpTime"
)

// RequestManager schedules buffer capture requests on the camera's link.
type RequestManager interface {
	// ClearRequestQueue drops every request not yet bound to a frame.
	ClearRequestQueue()

	// EnqueueRequests queues count requests with ids start, start+1, ...
	EnqueueRequests(start uint64, count int, autoDispatch bool)
}

// RegisterTransport delivers sensor register writes. dataWord selects
// 16-bit register data on the bus; otherwise every Data fits a byte.
type RegisterTransport interface {
	WriteRegisters(ctx context.Context, camera int, op Opcode, dataWord bool, writes []sensor.RegWrite) error
}

// OverrideStore is a string-keyed debug parameter lookup. A missing key
// reads as "".
type OverrideStore interface {
	Get(key string) string
}

// Publisher is the outgoing transport for frame records and thumbnails.
type Publisher interface {
	PublishFrame(ctx context.Context, rec *FrameRecord) error
	PublishThumbnail(ctx context.Context, th *Thumbnail) error
}

// FrameStore is the frame buffer ring as the controller uses it.
type FrameStore interface {
	Depth() int
	WriteSlot(idx int, m framebuf.Metadata)
	Acquire(timeout time.Duration) bool
	Current() framebuf.Metadata
	CurrentImage() []byte

	// Overruns counts completions lost because the publisher fell behind.
	Overruns() uint64
}

// ExitSignal is polled once per publisher loop iteration.
type ExitSignal interface {
	IsSet() bool
}

// LossKind names a frame-loss condition.
type LossKind string

const (
	LossStall LossKind = "stall"
	LossSkip  LossKind = "skip"
	LossDrop  LossKind = "drop"
)

// LossEvent describes one detected loss and the recovery issued for it.
type LossEvent struct {
	Camera    int       `json:"camera"`
	Stream    string    `json:"stream"`
	Kind      LossKind  `json:"kind"`
	FrameID   uint64    `json:"frame_id"`
	RequestID uint64    `json:"request_id"`
	Reissued  int       `json:"reissued"` // buffer requests queued to recover
	Time      time.Time `json:"time"`
}

// LossObserver is told about every loss. It is called on the dispatch
// goroutine and must not block.
type LossObserver interface {
	FrameLoss(ev LossEvent)
}

// Logger is the logging interface used by the controller.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// FrameRecord is the per-frame state message.
type FrameRecord struct {
	Camera int    `json:"camera"`
	Stream string `json:"stream"`
	Sensor string `json:"sensor"`

	FrameID      uint64 `json:"frame_id"`
	RequestID    uint64 `json:"request_id"`
	TimestampSOF uint64 `json:"timestamp_sof"`
	TimestampEOF uint64 `json:"timestamp_eof"`

	IntegLines         int     `json:"integ_lines"`
	Gain               float64 `json:"gain"`
	HighConversionGain bool    `json:"high_conversion_gain"`

	MeasuredGreyFraction float64 `json:"measured_grey_fraction"`
	TargetGreyFraction   float64 `json:"target_grey_fraction"`

	ProcessingTime     float64 `json:"processing_time"`
	ExposureValPercent float64 `json:"exposure_val_percent"`

	// Image is the raw luma plane, attached on decimated road frames only.
	Image  []byte `json:"-"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// Thumbnail is a downscaled JPEG of a road frame.
type Thumbnail struct {
	Camera       int    `json:"camera"`
	Stream       string `json:"stream"`
	FrameID      uint64 `json:"frame_id"`
	TimestampEOF uint64 `json:"timestamp_eof"`
	JPEG         []byte `json:"jpeg"`
}
