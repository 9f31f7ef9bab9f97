package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every camerad topic.
const TopicPrefix = "camerad"

// Topics provides builders for camerad MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.CameraState("roadCameraState")  // camerad/state/roadCameraState
//	topics.SensorCommand(2)                // camerad/command/sensor/2
type Topics struct{}

// SystemStatus returns the retained online/offline topic.
//
// Example: camerad/system/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// CameraState returns the per-frame record topic for a publish stream.
//
// Example: camerad/state/wideRoadCameraState
func (Topics) CameraState(stream string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, stream)
}

// CameraThumbnail returns the thumbnail topic for a publish stream.
//
// Example: camerad/thumbnail/roadCameraState
func (Topics) CameraThumbnail(stream string) string {
	return fmt.Sprintf("%s/thumbnail/%s", TopicPrefix, stream)
}

// CameraStatus returns the retained periodic status topic for a publish stream.
//
// Example: camerad/status/driverCameraState
func (Topics) CameraStatus(stream string) string {
	return fmt.Sprintf("%s/status/%s", TopicPrefix, stream)
}

// CameraLoss returns the frame-loss event topic for a camera.
//
// Example: camerad/event/loss/0
func (Topics) CameraLoss(camera int) string {
	return fmt.Sprintf("%s/event/loss/%d", TopicPrefix, camera)
}

// SensorCommand returns the register-write command topic for a camera.
//
// Example: camerad/command/sensor/1
func (Topics) SensorCommand(camera int) string {
	return fmt.Sprintf("%s/command/sensor/%d", TopicPrefix, camera)
}

// RequestCommand returns the topic buffer requests are forwarded on when
// the request manager runs outside camerad.
//
// Example: camerad/command/requests/0
func (Topics) RequestCommand(camera int) string {
	return fmt.Sprintf("%s/command/requests/%d", TopicPrefix, camera)
}

// ISPComplete returns the topic the ISP reports finished buffers on.
//
// Example: camerad/isp/complete/2
func (Topics) ISPComplete(camera int) string {
	return fmt.Sprintf("%s/isp/complete/%d", TopicPrefix, camera)
}

// Param returns the topic carrying a debug-override parameter.
//
// Example: camerad/config/params/CameraDebugExpGain
func (Topics) Param(key string) string {
	return fmt.Sprintf("%s/config/params/%s", TopicPrefix, key)
}

// AllParams returns a pattern matching every parameter topic.
//
// Pattern: camerad/config/params/+
func (Topics) AllParams() string {
	return TopicPrefix + "/config/params/+"
}

// ParamKey extracts the parameter key from a topic built by Param.
func (t Topics) ParamKey(topic string) (string, bool) {
	key, ok := strings.CutPrefix(topic, TopicPrefix+"/config/params/")
	if !ok || key == "" || strings.Contains(key, "/") {
		return "", false
	}
	return key, true
}

// AllTopics returns a pattern matching all camerad topics.
//
// Pattern: camerad/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}
