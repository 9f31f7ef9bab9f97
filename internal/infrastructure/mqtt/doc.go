// Package mqtt provides MQTT client connectivity for camerad.
//
// camerad uses the broker as its outbound bus: per-frame records, thumbnails,
// frame-loss events and sensor register commands are published under
// camerad/, and debug-override parameters are received on
// camerad/config/params/+. A retained camerad/system/status topic with a
// Last Will reports whether the daemon is alive.
//
// Usage:
//
//	client, err := mqtt.Connect(cfg.MQTT, cfg.Device.ID)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topic := mqtt.Topics{}.CameraState("roadCameraState")
//	err = client.PublishDefault(topic, payload)
package mqtt
