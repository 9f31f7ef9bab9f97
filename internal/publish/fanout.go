package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/camerad/internal/camera"
	"github.com/nerrad567/camerad/internal/infrastructure/influxdb"
	"github.com/nerrad567/camerad/internal/infrastructure/mqtt"
)

// FanoutOptions configures a Fanout. Every sink is optional.
type FanoutOptions struct {
	MQTT      MQTTPublisher
	Hub       Broadcaster
	Telemetry TelemetryWriter
	RawFrames *RawFrameWriter
	Logger    Logger
	Now       func() time.Time
}

// Fanout is the camera.Publisher that sends each record to every
// configured sink.
type Fanout struct {
	mqtt      MQTTPublisher
	hub       Broadcaster
	telemetry TelemetryWriter
	raw       *RawFrameWriter
	logger    Logger
	now       func() time.Time
}

// NewFanout creates a publisher over the given sinks.
func NewFanout(opts FanoutOptions) *Fanout {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Fanout{
		mqtt:      opts.MQTT,
		hub:       opts.Hub,
		telemetry: opts.Telemetry,
		raw:       opts.RawFrames,
		logger:    orNoop(opts.Logger),
		now:       opts.Now,
	}
}

// PublishFrame sends rec to MQTT on camerad/state/<stream>, to WebSocket
// subscribers of camera.frame and to InfluxDB. A record carrying an image
// is also written to the raw frame directory.
//
// Returns the joined errors of the MQTT publish and raw frame write; a
// disconnected broker is not an error.
func (f *Fanout) PublishFrame(_ context.Context, rec *camera.FrameRecord) error {
	var errs []error

	if f.mqtt != nil && f.mqtt.IsConnected() {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshalling frame record: %w", err)
		}
		if err := f.mqtt.Publish(mqtt.Topics{}.CameraState(rec.Stream), payload, 0, false); err != nil {
			errs = append(errs, fmt.Errorf("publishing frame record: %w", err))
		}
	}

	if f.hub != nil {
		f.hub.Broadcast(ChannelFrame, rec)
	}

	if f.telemetry != nil {
		f.telemetry.WriteFrameTelemetry(influxdb.FrameTelemetry{
			Camera:            rec.Camera,
			Stream:            rec.Stream,
			Sensor:            rec.Sensor,
			FrameID:           rec.FrameID,
			RequestID:         rec.RequestID,
			IntegrationLines:  rec.IntegLines,
			Gain:              rec.Gain,
			HighConversion:    rec.HighConversionGain,
			MeasuredGreyFrac:  rec.MeasuredGreyFraction,
			TargetGreyFrac:    rec.TargetGreyFraction,
			ExposureValPct:    rec.ExposureValPercent,
			ProcessingTimeSec: rec.ProcessingTime,
			Timestamp:         f.now(),
		})
	}

	if rec.Image != nil && f.raw != nil {
		path, err := f.raw.Write(rec)
		if err != nil {
			errs = append(errs, err)
		} else {
			f.logger.Debug("raw frame written", "stream", rec.Stream, "frame_id", rec.FrameID, "path", path)
		}
	}

	return errors.Join(errs...)
}

// PublishThumbnail sends th to MQTT on camerad/thumbnail/<stream> and to
// WebSocket subscribers of camera.thumbnail.
func (f *Fanout) PublishThumbnail(_ context.Context, th *camera.Thumbnail) error {
	if f.hub != nil {
		f.hub.Broadcast(ChannelThumbnail, th)
	}
	if f.mqtt == nil || !f.mqtt.IsConnected() {
		return nil
	}

	payload, err := json.Marshal(th)
	if err != nil {
		return fmt.Errorf("marshalling thumbnail: %w", err)
	}
	if err := f.mqtt.Publish(mqtt.Topics{}.CameraThumbnail(th.Stream), payload, 0, false); err != nil {
		return fmt.Errorf("publishing thumbnail: %w", err)
	}
	return nil
}
