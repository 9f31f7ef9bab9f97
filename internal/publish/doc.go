// Package publish carries camerad's output off the control loop: frame
// records and thumbnails to MQTT, WebSocket clients and InfluxDB, sensor
// register batches to the bus, frame-loss events to SQLite, and decimated
// raw frames to disk.
//
// It also provides the MQTT adapters used when the request manager and
// ISP run outside camerad: MQTTRequestManager forwards buffer requests and
// SubscribeCompletions feeds finished buffers into a frame store.
//
// Every type here is safe for concurrent use. Nothing on the frame path
// blocks on a slow consumer: WebSocket sends are dropped for full clients
// and loss events are queued to a worker.
package publish
