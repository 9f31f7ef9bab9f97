package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/camerad/internal/camera"
	"github.com/nerrad567/camerad/internal/infrastructure/mqtt"
)

const defaultStatusInterval = 10 * time.Second

// Stream states reported by the StatusReporter.
const (
	StreamDisabled  = "disabled"
	StreamStreaming = "streaming"
	StreamIdle      = "idle"
)

// StatusSource is one camera's status provider.
type StatusSource interface {
	Status() camera.Status
}

// CameraReport is the retained message on camerad/status/<stream>.
type CameraReport struct {
	State     string        `json:"state"`
	Timestamp time.Time     `json:"timestamp"`
	Status    camera.Status `json:"status"`
}

// StatusReporterOptions configures a StatusReporter.
type StatusReporterOptions struct {
	Sources []StatusSource
	MQTT    MQTTPublisher
	Hub     Broadcaster
	Logger  Logger

	// Interval is how often every camera is reported. Default: 10 seconds.
	Interval time.Duration
}

// StatusReporter periodically publishes each camera's status as a
// retained MQTT message and to WebSocket subscribers of camera.status.
//
// A camera is "idle" when it published no frame since the previous report.
type StatusReporter struct {
	sources  []StatusSource
	mqtt     MQTTPublisher
	hub      Broadcaster
	logger   Logger
	interval time.Duration

	// lastFrames is touched only by the report loop.
	lastFrames map[int]uint64

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewStatusReporter creates a reporter. Call Start to begin reporting.
func NewStatusReporter(opts StatusReporterOptions) *StatusReporter {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultStatusInterval
	}
	return &StatusReporter{
		sources:    opts.Sources,
		mqtt:       opts.MQTT,
		hub:        opts.Hub,
		logger:     orNoop(opts.Logger),
		interval:   interval,
		lastFrames: make(map[int]uint64),
		done:       make(chan struct{}),
	}
}

// Start begins periodic reporting. It stops on Stop or when ctx is done.
func (r *StatusReporter) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.reportLoop(ctx)
}

// Stop waits for the report loop to finish. Safe to call multiple times.
func (r *StatusReporter) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}

func (r *StatusReporter) reportLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.ReportNow()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-ticker.C:
			r.ReportNow()
		}
	}
}

// ReportNow publishes every camera's status immediately and returns the reports.
// It must not be called concurrently with itself.
func (r *StatusReporter) ReportNow() []CameraReport {
	now := time.Now().UTC()
	reports := make([]CameraReport, 0, len(r.sources))
	for _, src := range r.sources {
		st := src.Status()
		rep := CameraReport{State: r.state(st), Timestamp: now, Status: st}
		reports = append(reports, rep)

		if err := r.publish(rep); err != nil {
			r.logger.Warn("publishing camera status failed", "stream", st.Stream, "error", err)
		}
		if r.hub != nil {
			r.hub.Broadcast(ChannelStatus, rep)
		}
	}
	return reports
}

func (r *StatusReporter) state(st camera.Status) string {
	if !st.Enabled {
		return StreamDisabled
	}
	last, seen := r.lastFrames[st.Index]
	r.lastFrames[st.Index] = st.FramesPublished
	if seen && st.FramesPublished == last {
		return StreamIdle
	}
	if !seen && st.FramesPublished == 0 {
		return StreamIdle
	}
	return StreamStreaming
}

func (r *StatusReporter) publish(rep CameraReport) error {
	if r.mqtt == nil || !r.mqtt.IsConnected() {
		return nil
	}
	payload, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshalling camera status: %w", err)
	}
	return r.mqtt.Publish(mqtt.Topics{}.CameraStatus(rep.Status.Stream), payload, 1, true)
}
