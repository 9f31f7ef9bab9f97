// Package camerad assembles the camera daemon.
//
// A Daemon owns one camera.Controller per configured sensor, the single
// event dispatcher feeding them, and the supporting services around the
// control loops:
//
//   - the debug-override parameter store (SQLite, refreshed over MQTT)
//   - the frame fan-out to MQTT, InfluxDB, WebSocket clients and raw PNG files
//   - the frame-loss recorder and the periodic camera status reporter
//   - the HTTP API
//
// With source "sim" the hardware is the in-process hwsim rig. With source
// "v4l2" events come from the video device and buffer requests and ISP
// completions travel over MQTT.
//
// Usage:
//
//	d, err := camerad.New(ctx, camerad.Options{Config: cfg, Logger: log, DB: db, MQTT: client})
//	if err != nil {
//	    return err
//	}
//	return d.Run(ctx)
package camerad
