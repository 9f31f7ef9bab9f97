// Package influxdb records camerad exposure telemetry in InfluxDB.
//
// Each processed frame becomes a camera_frame point (gain, integration
// lines, grey fractions, exposure percentage) and each stall, skip or drop
// recovery becomes a camera_frame_loss point. The writer is the
// non-blocking batched WriteAPI of influxdb-client-go v2.
//
// Usage:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//	client.WriteFrameLoss(0, "skip", 120, 118, 3)
package influxdb
