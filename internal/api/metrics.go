package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	WebSocket     WSMetrics       `json:"websocket"`
	MQTT          ConnMetrics     `json:"mqtt"`
	InfluxDB      ConnMetrics     `json:"influxdb"`
	Cameras       CameraMetrics   `json:"cameras"`
	Database      DatabaseMetrics `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int    `json:"connected_clients"`
	DroppedMessages  uint64 `json:"dropped_messages"`
}

// ConnMetrics reports an external connection.
type ConnMetrics struct {
	Configured bool `json:"configured"`
	Connected  bool `json:"connected"`
}

// CameraMetrics totals the control loops.
type CameraMetrics struct {
	Total           int    `json:"total"`
	Enabled         int    `json:"enabled"`
	FramesPublished uint64 `json:"frames_published"`
	Stalls          uint64 `json:"stalls"`
	Skips           uint64 `json:"skips"`
	Drops           uint64 `json:"drops"`
	BufferOverruns  uint64 `json:"buffer_overruns"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns runtime, connection and camera totals.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		MQTT:     connMetrics(s.mqtt),
		InfluxDB: connMetrics(s.influx),
	}
	if s.hub != nil {
		metrics.WebSocket.ConnectedClients = s.hub.ClientCount()
		metrics.WebSocket.DroppedMessages = s.hub.Dropped()
	}

	for _, c := range s.cameras {
		st := c.Status()
		metrics.Cameras.Total++
		if st.Enabled {
			metrics.Cameras.Enabled++
		}
		metrics.Cameras.FramesPublished += st.FramesPublished
		metrics.Cameras.Stalls += st.Stalls
		metrics.Cameras.Skips += st.Skips
		metrics.Cameras.Drops += st.Drops
		metrics.Cameras.BufferOverruns += st.BufferOverruns
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}

func connMetrics(c ConnectionStatus) ConnMetrics {
	if c == nil {
		return ConnMetrics{}
	}
	return ConnMetrics{Configured: true, Connected: c.IsConnected()}
}
