package camera

import (
	"context"

	"github.com/nerrad567/camerad/internal/framebuf"
	"github.com/nerrad567/camerad/internal/stats"
)

// Phases within the decimation period for the road camera side channels.
const (
	thumbnailPhase = 3
	rawFramePhase  = 5
)

// Run is the publisher loop. It returns when exit is raised or ctx is done.
// A disabled camera returns immediately.
func (c *Controller) Run(ctx context.Context, exit ExitSignal) error {
	if !c.enabled {
		return nil
	}
	c.logger.Info("publisher loop started", "ae_rect", c.rect)
	defer c.logger.Info("publisher loop stopped", "frames", c.published.Load())

	// The counter advances on misses too so side channels keep a fixed cadence.
	for cnt := 0; !exit.IsSet() && ctx.Err() == nil; cnt++ {
		if !c.buffers.Acquire(c.acquireTimeout) {
			continue
		}
		c.processFrame(ctx, cnt)
	}
	return nil
}

func (c *Controller) processFrame(ctx context.Context, cnt int) {
	frame := c.buffers.Current()
	img := c.buffers.CurrentImage()
	rec := c.record(frame)

	if c.logRaw && c.role == RoleRoad && cnt%c.decimation == rawFramePhase {
		rec.Image = append([]byte(nil), img...)
		rec.Width, rec.Height = c.width, c.height
	}

	ySkip := 2
	if c.role == RoleDriver {
		ySkip = 4
	}
	grey := stats.GreyFraction(img, c.width, c.rect, 2, ySkip)
	if err := c.UpdateExposure(ctx, grey, frame); err != nil {
		c.logger.Warn("sensor register write failed", "frame_id", frame.FrameID, "error", err)
	}

	if c.publisher != nil {
		if err := c.publisher.PublishFrame(ctx, rec); err != nil {
			c.logger.Warn("publishing frame failed", "frame_id", frame.FrameID, "error", err)
		}
	}
	c.published.Add(1)

	if c.role == RoleRoad && cnt%c.decimation == thumbnailPhase {
		c.publishThumbnail(ctx, frame, img)
	}
}

func (c *Controller) record(frame framebuf.Metadata) *FrameRecord {
	c.expMu.Lock()
	evPct := c.cal.EVPercent(c.exp.curEV[frame.FrameID%3])
	c.expMu.Unlock()

	return &FrameRecord{
		Camera:               c.index,
		Stream:               c.stream,
		Sensor:               c.sensor.Model(),
		FrameID:              frame.FrameID,
		RequestID:            frame.RequestID,
		TimestampSOF:         frame.TimestampSOF,
		TimestampEOF:         frame.TimestampEOF,
		IntegLines:           frame.IntegLines,
		Gain:                 frame.Gain,
		HighConversionGain:   frame.HighConversionGain,
		MeasuredGreyFraction: frame.MeasuredGreyFraction,
		TargetGreyFraction:   frame.TargetGreyFraction,
		ProcessingTime:       frame.ProcessingTime,
		ExposureValPercent:   evPct,
	}
}

func (c *Controller) publishThumbnail(ctx context.Context, frame framebuf.Metadata, img []byte) {
	if c.publisher == nil {
		return
	}
	jpg, err := stats.Thumbnail(img, c.width, c.height, c.thumbScale, 0)
	if err != nil {
		c.logger.Warn("thumbnail encoding failed", "frame_id", frame.FrameID, "error", err)
		return
	}
	th := &Thumbnail{
		Camera:       c.index,
		Stream:       c.stream,
		FrameID:      frame.FrameID,
		TimestampEOF: frame.TimestampEOF,
		JPEG:         jpg,
	}
	if err := c.publisher.PublishThumbnail(ctx, th); err != nil {
		c.logger.Warn("publishing thumbnail failed", "frame_id", frame.FrameID, "error", err)
	}
}
