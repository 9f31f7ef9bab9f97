package publish

import (
	"github.com/nerrad567/camerad/internal/infrastructure/influxdb"
	"github.com/nerrad567/camerad/internal/infrastructure/mqtt"
)

// WebSocket channels broadcast on.
const (
	ChannelFrame     = "camera.frame"
	ChannelThumbnail = "camera.thumbnail"
	ChannelLoss      = "camera.loss"
	ChannelStatus    = "camera.status"
)

// MQTTPublisher is the publishing side of the MQTT client.
type MQTTPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// Subscriber is the subscribing side of the MQTT client.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Broadcaster fans a payload out to WebSocket clients of a channel.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// TelemetryWriter is the time-series sink.
type TelemetryWriter interface {
	WriteFrameTelemetry(s influxdb.FrameTelemetry)
	WriteFrameLoss(camera int, kind string, frameID, requestID uint64, reissued int)
}

// Logger is the logging interface used by this package.
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

func orNoop(l Logger) Logger {
	if l == nil {
		return noopLogger{}
	}
	return l
}
