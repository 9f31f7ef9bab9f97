package mqtt

import "errors"

// Sentinel errors for MQTT operations; check with errors.Is.
//
// Publish and subscribe failures are wrapped with the broker's reason. The
// frame path treats all of them as best-effort and only counts them.
var (
	ErrNotConnected      = errors.New("mqtt: client not connected")
	ErrConnectionFailed  = errors.New("mqtt: connection failed")
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS is returned for a QoS other than 0, 1 or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level")

	// ErrInvalidTopic is returned for an empty topic or one containing
	// wildcards where a concrete topic is required.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")
)
