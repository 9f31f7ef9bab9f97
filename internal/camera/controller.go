package camera

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/camerad/internal/sensor"
	"github.com/nerrad567/camerad/internal/stats"
)

const (
	defaultExposureGuard    = 60 * time.Millisecond
	defaultAcquireTimeout   = 50 * time.Millisecond
	defaultLowGainGuardTime = 20
	defaultFrameDecimation  = 100
	defaultThumbnailScale   = 4

	initialExposureTime = 5
	initialTargetGrey   = 0.3
)

// Options configures a Controller.
type Options struct {
	Index         int
	Role          Role
	Sensor        sensor.Sensor
	FocalLengthMM float64
	Width         int
	Height        int
	Enabled       bool

	// SessionHandle routes events to this controller. A non-zero LinkHandle
	// is checked against every event.
	SessionHandle int32
	LinkHandle    int32

	// LowGainGuardTime is the exposure time above which the search will not
	// step down to a gain index below the recommended one.
	LowGainGuardTime int

	// ExposureGuard is the minimum delay from start-of-frame to a register write.
	ExposureGuard   time.Duration
	AcquireTimeout  time.Duration
	FrameDecimation int
	ThumbnailScale  int

	// ExposureFromParams enables the debug override lookup.
	ExposureFromParams bool
	LogRawFrames       bool

	Buffers   FrameStore
	Requests  RequestManager
	Registers RegisterTransport
	Overrides OverrideStore
	Publisher Publisher
	Losses    LossObserver
	Logger    Logger

	// Now returns nanoseconds on the same clock as event timestamps.
	Now func() uint64
	// Sleep blocks for d or until ctx is done.
	Sleep func(ctx context.Context, d time.Duration)
}

// exposureState is guarded by Controller.expMu.
type exposureState struct {
	exposureTime   int
	gainIdx        int
	dcGainEnabled  bool
	dcGainWeight   int
	analogGainFrac float64
	measuredGrey   float64
	targetGrey     float64
	// curEV is indexed by frame id mod 3.
	curEV [3]float64
}

// syncState is guarded by Controller.syncMu.
type syncState struct {
	frameIDLast   uint64
	requestIDLast uint64
	idxOffset     uint64
	offsetLatched bool
	skipped       bool
}

// Controller is one camera's control loop.
//
// Thread Safety: HandleEvent is called from the dispatch goroutine and Run
// from the camera's own goroutine. Status and CurrentEV are safe from any
// goroutine.
type Controller struct {
	index   int
	role    Role
	stream  string
	sensor  sensor.Sensor
	cal     *sensor.Calibration
	enabled bool
	session int32
	link    int32
	width   int
	height  int
	flPix   float64
	rect    stats.Rect

	lowGainGuard   int
	exposureGuard  time.Duration
	acquireTimeout time.Duration
	decimation     int
	thumbScale     int
	fromParams     bool
	logRaw         bool

	buffers   FrameStore
	requests  RequestManager
	registers RegisterTransport
	overrides OverrideStore
	publisher Publisher
	losses    LossObserver
	logger    Logger
	now       func() uint64
	sleep     func(ctx context.Context, d time.Duration)

	expMu sync.Mutex
	exp   exposureState

	syncMu sync.Mutex
	seq    syncState

	published  atomic.Uint64
	lossCounts [3]atomic.Uint64

	// lastBadOverride is touched only by the publisher loop.
	lastBadOverride string
}

// New builds a controller in its initial exposure state.
//
// Returns:
//   - *Controller: Ready controller
//   - error: ErrInvalidOptions if the sensor, geometry or, for an enabled
//     camera, the buffer store or request manager is missing
func New(opts Options) (*Controller, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}

	cal := opts.Sensor.Calibration()
	c := &Controller{
		index:          opts.Index,
		role:           opts.Role,
		stream:         opts.Role.StreamName(),
		sensor:         opts.Sensor,
		cal:            cal,
		enabled:        opts.Enabled,
		session:        opts.SessionHandle,
		link:           opts.LinkHandle,
		width:          opts.Width,
		height:         opts.Height,
		flPix:          opts.FocalLengthMM / cal.PixelSizeMM,
		lowGainGuard:   opts.LowGainGuardTime,
		exposureGuard:  opts.ExposureGuard,
		acquireTimeout: opts.AcquireTimeout,
		decimation:     opts.FrameDecimation,
		thumbScale:     opts.ThumbnailScale,
		fromParams:     opts.ExposureFromParams,
		logRaw:         opts.LogRawFrames,
		buffers:        opts.Buffers,
		requests:       opts.Requests,
		registers:      opts.Registers,
		overrides:      opts.Overrides,
		publisher:      opts.Publisher,
		losses:         opts.Losses,
		logger:         opts.Logger,
		now:            opts.Now,
		sleep:          opts.Sleep,
	}
	c.applyDefaults()
	c.rect = aeRect(c.role, c.flPix, c.width, c.height)

	weight := cal.DCGainMinWeight
	gainIdx := cal.GainRecIdx
	expTime := cal.ClampTime(initialExposureTime)
	ev := cal.Blend(weight) * cal.Gains[gainIdx] * float64(expTime)
	c.exp = exposureState{
		exposureTime:   expTime,
		gainIdx:        gainIdx,
		dcGainWeight:   weight,
		analogGainFrac: cal.Gains[gainIdx],
		targetGrey:     initialTargetGrey,
		curEV:          [3]float64{ev, ev, ev},
	}
	return c, nil
}

func validateOptions(opts Options) error {
	switch {
	case opts.Sensor == nil:
		return fmt.Errorf("%w: camera %d has no sensor", ErrInvalidOptions, opts.Index)
	case opts.Width <= 0 || opts.Height <= 0:
		return fmt.Errorf("%w: camera %d frame size %dx%d", ErrInvalidOptions, opts.Index, opts.Width, opts.Height)
	case opts.FocalLengthMM <= 0:
		return fmt.Errorf("%w: camera %d focal length %.3f", ErrInvalidOptions, opts.Index, opts.FocalLengthMM)
	case opts.Enabled && opts.Buffers == nil:
		return fmt.Errorf("%w: camera %d has no frame store", ErrInvalidOptions, opts.Index)
	case opts.Enabled && opts.Requests == nil:
		return fmt.Errorf("%w: camera %d has no request manager", ErrInvalidOptions, opts.Index)
	}
	return nil
}

func (c *Controller) applyDefaults() {
	if c.lowGainGuard <= 0 {
		c.lowGainGuard = defaultLowGainGuardTime
	}
	if c.exposureGuard <= 0 {
		c.exposureGuard = defaultExposureGuard
	}
	if c.acquireTimeout <= 0 {
		c.acquireTimeout = defaultAcquireTimeout
	}
	if c.decimation <= 0 {
		c.decimation = defaultFrameDecimation
	}
	if c.thumbScale <= 0 {
		c.thumbScale = defaultThumbnailScale
	}
	if c.logger == nil {
		c.logger = noopLogger{}
	}
	if c.now == nil {
		start := time.Now()
		c.now = func() uint64 { return uint64(time.Since(start)) }
	}
	if c.sleep == nil {
		c.sleep = sleepContext
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Index returns the camera number.
func (c *Controller) Index() int { return c.index }

// Role returns the camera role.
func (c *Controller) Role() Role { return c.role }

// Stream returns the published stream name.
func (c *Controller) Stream() string { return c.stream }

// Enabled reports whether the camera is active.
func (c *Controller) Enabled() bool { return c.enabled }

// SessionHandle returns the request-manager session this controller serves.
func (c *Controller) SessionHandle() int32 { return c.session }

// AERect returns the auto-exposure region.
func (c *Controller) AERect() stats.Rect { return c.rect }

// Prime queues the first full window of buffer requests.
func (c *Controller) Prime() {
	if !c.enabled {
		return
	}
	c.requests.EnqueueRequests(1, c.buffers.Depth(), false)
}

// CurrentEV returns the committed exposure value: exposure time times the
// effective gain.
func (c *Controller) CurrentEV() float64 {
	c.expMu.Lock()
	defer c.expMu.Unlock()
	return float64(c.exp.exposureTime) * c.exp.analogGainFrac * c.cal.Blend(c.exp.dcGainWeight)
}

// ExposureStatus is a snapshot of the exposure state.
type ExposureStatus struct {
	ExposureTime         int        `json:"exposure_time"`
	GainIdx              int        `json:"gain_idx"`
	AnalogGainFrac       float64    `json:"analog_gain_frac"`
	HighConversionGain   bool       `json:"high_conversion_gain"`
	DCGainWeight         int        `json:"dc_gain_weight"`
	MeasuredGreyFraction float64    `json:"measured_grey_fraction"`
	TargetGreyFraction   float64    `json:"target_grey_fraction"`
	EVHistory            [3]float64 `json:"ev_history"`
}

// SyncStatus is a snapshot of the request bookkeeping.
type SyncStatus struct {
	FrameIDLast   uint64 `json:"frame_id_last"`
	RequestIDLast uint64 `json:"request_id_last"`
	IdxOffset     uint64 `json:"idx_offset"`
	Skipped       bool   `json:"skipped"`
}

// Status is a point-in-time view of a controller.
type Status struct {
	Index           int            `json:"index"`
	Role            Role           `json:"role"`
	Stream          string         `json:"stream"`
	Sensor          string         `json:"sensor"`
	Enabled         bool           `json:"enabled"`
	SessionHandle   int32          `json:"session_handle"`
	AERect          stats.Rect     `json:"ae_rect"`
	Exposure        ExposureStatus `json:"exposure"`
	Sync            SyncStatus     `json:"sync"`
	FramesPublished uint64         `json:"frames_published"`
	Stalls          uint64         `json:"stalls"`
	Skips           uint64         `json:"skips"`
	Drops           uint64         `json:"drops"`
	BufferOverruns  uint64         `json:"buffer_overruns"`
}

// Status returns a snapshot. Each lock is taken separately.
func (c *Controller) Status() Status {
	c.expMu.Lock()
	exp := ExposureStatus{
		ExposureTime:         c.exp.exposureTime,
		GainIdx:              c.exp.gainIdx,
		AnalogGainFrac:       c.exp.analogGainFrac,
		HighConversionGain:   c.exp.dcGainEnabled,
		DCGainWeight:         c.exp.dcGainWeight,
		MeasuredGreyFraction: c.exp.measuredGrey,
		TargetGreyFraction:   c.exp.targetGrey,
		EVHistory:            c.exp.curEV,
	}
	c.expMu.Unlock()

	c.syncMu.Lock()
	syn := SyncStatus{
		FrameIDLast:   c.seq.frameIDLast,
		RequestIDLast: c.seq.requestIDLast,
		IdxOffset:     c.seq.idxOffset,
		Skipped:       c.seq.skipped,
	}
	c.syncMu.Unlock()

	var overruns uint64
	if c.buffers != nil {
		overruns = c.buffers.Overruns()
	}

	return Status{
		Index:           c.index,
		Role:            c.role,
		Stream:          c.stream,
		Sensor:          c.sensor.Model(),
		Enabled:         c.enabled,
		SessionHandle:   c.session,
		AERect:          c.rect,
		Exposure:        exp,
		Sync:            syn,
		FramesPublished: c.published.Load(),
		Stalls:          c.lossCounts[lossIndex(LossStall)].Load(),
		Skips:           c.lossCounts[lossIndex(LossSkip)].Load(),
		Drops:           c.lossCounts[lossIndex(LossDrop)].Load(),
		BufferOverruns:  overruns,
	}
}

func lossIndex(k LossKind) int {
	switch k {
	case LossStall:
		return 0
	case LossSkip:
		return 1
	default:
		return 2
	}
}
