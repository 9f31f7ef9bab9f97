package publish

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/camerad/internal/camera"
	"github.com/nerrad567/camerad/internal/infrastructure/mqtt"
)

const (
	defaultLossQueueSize = 256
	lossWriteTimeout     = 2 * time.Second
)

// LossRepository persists frame-loss events.
type LossRepository interface {
	Insert(ctx context.Context, ev camera.LossEvent) error
	// Recent returns up to limit events for a camera, newest first.
	Recent(ctx context.Context, cameraIdx, limit int) ([]camera.LossEvent, error)
}

// SQLiteLossRepository implements LossRepository on frame_loss_events.
type SQLiteLossRepository struct {
	db *sql.DB
}

// NewSQLiteLossRepository creates a repository on an open, migrated database.
func NewSQLiteLossRepository(db *sql.DB) *SQLiteLossRepository {
	return &SQLiteLossRepository{db: db}
}

// Insert stores one event. The stream is not stored; it follows from the camera.
func (r *SQLiteLossRepository) Insert(ctx context.Context, ev camera.LossEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO frame_loss_events (camera, kind, frame_id, request_id, count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.Camera, string(ev.Kind), int64(ev.FrameID), int64(ev.RequestID), ev.Reissued,
		ev.Time.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting frame loss: %w", err)
	}
	return nil
}

// Recent returns the newest events for a camera.
func (r *SQLiteLossRepository) Recent(ctx context.Context, cameraIdx, limit int) ([]camera.LossEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT camera, kind, frame_id, request_id, count, created_at
		FROM frame_loss_events
		WHERE camera = ?
		ORDER BY id DESC
		LIMIT ?`, cameraIdx, limit)
	if err != nil {
		return nil, fmt.Errorf("querying frame losses: %w", err)
	}
	defer rows.Close()

	var out []camera.LossEvent
	for rows.Next() {
		var ev camera.LossEvent
		var kind, created string
		var frameID, requestID int64
		if err := rows.Scan(&ev.Camera, &kind, &frameID, &requestID, &ev.Reissued, &created); err != nil {
			return nil, fmt.Errorf("scanning frame loss: %w", err)
		}
		ev.Kind = camera.LossKind(kind)
		ev.FrameID = uint64(frameID)
		ev.RequestID = uint64(requestID)
		ev.Time, _ = time.Parse(time.RFC3339Nano, created) //nolint:errcheck // Format is ours
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating frame losses: %w", err)
	}
	return out, nil
}

// LossRecorderOptions configures a LossRecorder. Every sink is optional.
type LossRecorderOptions struct {
	Repo      LossRepository
	MQTT      MQTTPublisher
	Hub       Broadcaster
	Telemetry TelemetryWriter
	Logger    Logger

	// QueueSize bounds events waiting for the worker. Default: 256.
	QueueSize int
}

// LossRecorder is the camera.LossObserver that records frame-loss events
// to SQLite, InfluxDB, MQTT and WebSocket clients from a worker goroutine.
//
// FrameLoss never blocks; when the queue is full the event is counted in
// Dropped and discarded.
type LossRecorder struct {
	repo      LossRepository
	mqtt      MQTTPublisher
	hub       Broadcaster
	telemetry TelemetryWriter
	logger    Logger

	queue   chan camera.LossEvent
	dropped atomic.Uint64

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewLossRecorder creates a recorder. Call Start to begin recording.
func NewLossRecorder(opts LossRecorderOptions) *LossRecorder {
	size := opts.QueueSize
	if size <= 0 {
		size = defaultLossQueueSize
	}
	return &LossRecorder{
		repo:      opts.Repo,
		mqtt:      opts.MQTT,
		hub:       opts.Hub,
		telemetry: opts.Telemetry,
		logger:    orNoop(opts.Logger),
		queue:     make(chan camera.LossEvent, size),
		done:      make(chan struct{}),
	}
}

// FrameLoss queues ev for recording.
func (r *LossRecorder) FrameLoss(ev camera.LossEvent) {
	select {
	case r.queue <- ev:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns how many events were discarded on a full queue.
func (r *LossRecorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Start launches the worker. It stops on Stop or when ctx is done.
func (r *LossRecorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.run(ctx)
}

// Stop records the events already queued and waits for the worker.
func (r *LossRecorder) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
	})
}

func (r *LossRecorder) run(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case ev := <-r.queue:
			r.record(ctx, ev)
		case <-r.done:
			for {
				select {
				case ev := <-r.queue:
					r.record(context.WithoutCancel(ctx), ev)
				default:
					return
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func (r *LossRecorder) record(ctx context.Context, ev camera.LossEvent) {
	if r.repo != nil {
		wctx, cancel := context.WithTimeout(ctx, lossWriteTimeout)
		if err := r.repo.Insert(wctx, ev); err != nil {
			r.logger.Warn("storing frame loss failed", "camera", ev.Camera, "error", err)
		}
		cancel()
	}

	if r.telemetry != nil {
		r.telemetry.WriteFrameLoss(ev.Camera, string(ev.Kind), ev.FrameID, ev.RequestID, ev.Reissued)
	}

	if r.mqtt != nil && r.mqtt.IsConnected() {
		payload, err := json.Marshal(ev)
		if err == nil {
			err = r.mqtt.Publish(mqtt.Topics{}.CameraLoss(ev.Camera), payload, 1, false)
		}
		if err != nil {
			r.logger.Warn("publishing frame loss failed", "camera", ev.Camera, "error", err)
		}
	}

	if r.hub != nil {
		r.hub.Broadcast(ChannelLoss, ev)
	}
}
