package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementFrame = "camera_frame"
	MeasurementLoss  = "camera_frame_loss"
)

// FrameTelemetry is one processed frame's exposure state.
type FrameTelemetry struct {
	Camera            int
	Stream            string
	Sensor            string
	FrameID           uint64
	RequestID         uint64
	IntegrationLines  int
	Gain              float64
	HighConversion    bool
	MeasuredGreyFrac  float64
	TargetGreyFrac    float64
	ExposureValPct    float64
	ProcessingTimeSec float64
	Timestamp         time.Time
}

// WriteFrameTelemetry records one frame's exposure state, tagged by camera
// and stream. The write is non-blocking.
func (c *Client) WriteFrameTelemetry(s FrameTelemetry) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		MeasurementFrame,
		map[string]string{
			"camera": strconv.Itoa(s.Camera),
			"stream": s.Stream,
			"sensor": s.Sensor,
		},
		map[string]interface{}{
			"frame_id":           s.FrameID,
			"request_id":         s.RequestID,
			"integration_lines":  s.IntegrationLines,
			"gain":               s.Gain,
			"high_conversion":    s.HighConversion,
			"measured_grey_frac": s.MeasuredGreyFrac,
			"target_grey_frac":   s.TargetGreyFrac,
			"exposure_val_pct":   s.ExposureValPct,
			"processing_time_s":  s.ProcessingTimeSec,
		},
		s.Timestamp,
	)
	c.writer.WritePoint(point)
}

// WriteFrameLoss records a stall, skip or drop recovery and the number of
// requests re-issued for it.
func (c *Client) WriteFrameLoss(camera int, kind string, frameID, requestID uint64, reissued int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		MeasurementLoss,
		map[string]string{
			"camera": strconv.Itoa(camera),
			"kind":   kind,
		},
		map[string]interface{}{
			"frame_id":   frameID,
			"request_id": requestID,
			"reissued":   reissued,
		},
		time.Now(),
	)
	c.writer.WritePoint(point)
}
