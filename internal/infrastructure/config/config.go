package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Event source kinds.
const (
	SourceSim  = "sim"
	SourceV4L2 = "v4l2"
)

// Camera roles.
const (
	RoleRoad     = "road"
	RoleWideRoad = "wide_road"
	RoleDriver   = "driver"
)

// Sensor models with register maps and scoring functions.
var knownSensors = map[string]bool{
	"ar0231":  true,
	"ox03c10": true,
	"os04c10": true,
}

// Config is the root configuration structure for camerad.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	API        APIConfig        `yaml:"api"`
	WebSocket  WebSocketConfig  `yaml:"websocket"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Camerad    CameradConfig    `yaml:"camerad"`
	Cameras    []CameraConfig   `yaml:"cameras"`
	Simulation SimulationConfig `yaml:"simulation"`
}

// DeviceConfig identifies the vehicle unit running the daemon.
type DeviceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	TLS      APITLSConfig     `yaml:"tls"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITLSConfig contains HTTPS settings.
type APITLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// CameradConfig contains the frame pipeline and exposure loop settings.
type CameradConfig struct {
	// Source selects the hardware notification source: "sim" or "v4l2".
	Source string `yaml:"source"`

	// VideoDevice is the request-manager video node polled for events.
	// Default: "/dev/video0"
	VideoDevice string `yaml:"video_device"`

	// BufferDepth is the number of frame buffers in flight per camera.
	// Default: 4
	BufferDepth int `yaml:"buffer_depth"`

	// PollTimeoutMS bounds each wait on the notification source so the
	// dispatch loop observes shutdown promptly.
	// Default: 1000
	PollTimeoutMS int `yaml:"poll_timeout_ms"`

	// AcquireTimeoutMS bounds each wait for a completed buffer.
	// Default: 50
	AcquireTimeoutMS int `yaml:"acquire_timeout_ms"`

	// ExposureGuardMS is the minimum delay after start-of-frame before
	// register writes are issued.
	// Default: 60
	ExposureGuardMS int `yaml:"exposure_guard_ms"`

	// LowGainGuardTime is the exposure time above which the search refuses
	// to step below the recommended gain index.
	// Default: 20
	LowGainGuardTime int `yaml:"low_gain_guard_time"`

	// FrameDecimation is the period of the raw-frame and thumbnail side channels.
	// Default: 100
	FrameDecimation int `yaml:"frame_decimation"`

	// CalibrationFile replaces the built-in sensor calibration tables.
	CalibrationFile string `yaml:"calibration_file,omitempty"`

	// ExposureFromParams enables the debug gain/exposure-time override.
	ExposureFromParams bool `yaml:"exposure_from_params"`

	// LogRawFrames attaches raw road-camera frames to decimated records.
	LogRawFrames bool `yaml:"log_raw_frames"`

	// RawFrameDir receives the raw frames as PNG files.
	// Default: "./data/raw"
	RawFrameDir string `yaml:"raw_frame_dir"`

	// StatusInterval is the period in seconds of the retained camera status.
	// Default: 10
	StatusInterval int `yaml:"status_interval"`

	// DebugFrames prints every event and stops after the first 20 frames.
	DebugFrames bool `yaml:"debug_frames"`
}

// CameraConfig describes one physical image sensor.
type CameraConfig struct {
	Index         int     `yaml:"index"`
	Role          string  `yaml:"role"`
	Sensor        string  `yaml:"sensor"`
	FocalLengthMM float64 `yaml:"focal_length_mm"`
	Width         int     `yaml:"width"`
	Height        int     `yaml:"height"`
	Enabled       bool    `yaml:"enabled"`

	// SessionHandle and LinkHandle identify the camera's request-manager
	// session. The V4L2 source learns them from the driver; the simulator
	// uses these values.
	SessionHandle int32 `yaml:"session_handle"`
	LinkHandle    int32 `yaml:"link_handle"`
}

// SimulationConfig configures the simulated sensor rig.
type SimulationConfig struct {
	FrameRateHz float64 `yaml:"frame_rate_hz"`
	SceneLuma   float64 `yaml:"scene_luma"`
	SkipEvery   int     `yaml:"skip_every"`
	DropEvery   int     `yaml:"drop_every"`
	StallAfter  int     `yaml:"stall_after"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: CAMERAD_SECTION_KEY
// For example: CAMERAD_DATABASE_PATH, CAMERAD_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ID:   "device-001",
			Name: "camerad",
		},
		Database: DatabaseConfig{
			Path:        "./data/camerad.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "camerad",
			},
			QoS: 0,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/v1/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Camerad: CameradConfig{
			Source:           SourceSim,
			VideoDevice:      "/dev/video0",
			BufferDepth:      4,
			PollTimeoutMS:    1000,
			AcquireTimeoutMS: 50,
			ExposureGuardMS:  60,
			LowGainGuardTime: 20,
			FrameDecimation:  100,
			RawFrameDir:      "./data/raw",
			StatusInterval:   10,
		},
		Cameras: []CameraConfig{
			{Index: 1, Role: RoleRoad, Sensor: "ox03c10", FocalLengthMM: 8.0, Width: 1928, Height: 1208, Enabled: true, SessionHandle: 0x101, LinkHandle: 0x201},
			{Index: 0, Role: RoleWideRoad, Sensor: "ox03c10", FocalLengthMM: 1.71, Width: 1928, Height: 1208, Enabled: true, SessionHandle: 0x100, LinkHandle: 0x200},
			{Index: 2, Role: RoleDriver, Sensor: "ox03c10", FocalLengthMM: 1.71, Width: 1928, Height: 1208, Enabled: true, SessionHandle: 0x102, LinkHandle: 0x202},
		},
		Simulation: SimulationConfig{
			FrameRateHz: 20,
			SceneLuma:   0.5,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: CAMERAD_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("CAMERAD_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("CAMERAD_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("CAMERAD_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CAMERAD_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("CAMERAD_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// InfluxDB
	if v := os.Getenv("CAMERAD_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Pipeline
	if v := os.Getenv("CAMERAD_SOURCE"); v != "" {
		cfg.Camerad.Source = v
	}
	if v := os.Getenv("CAMERAD_RAW_FRAME_DIR"); v != "" {
		cfg.Camerad.RawFrameDir = v
	}
	if v, ok := envBool("CAMERAD_LOG_RAW_FRAMES"); ok {
		cfg.Camerad.LogRawFrames = v
	}
	if v, ok := envBool("CAMERAD_EXPOSURE_FROM_PARAMS"); ok {
		cfg.Camerad.ExposureFromParams = v
	}
}

// envBool reads a boolean environment variable. Unset or unparsable values
// report ok=false and leave the config untouched.
func envBool(key string) (value bool, ok bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.TLS.Enabled && (c.API.TLS.CertFile == "" || c.API.TLS.KeyFile == "") {
		errs = append(errs, "api.tls requires cert_file and key_file")
	}

	switch c.Camerad.Source {
	case SourceSim, SourceV4L2:
	default:
		errs = append(errs, fmt.Sprintf("camerad.source %q must be %q or %q", c.Camerad.Source, SourceSim, SourceV4L2))
	}

	// Fewer than two buffers leaves no room for the forward re-enqueue.
	if c.Camerad.BufferDepth < 2 {
		errs = append(errs, "camerad.buffer_depth must be at least 2")
	}
	if c.Camerad.PollTimeoutMS <= 0 {
		errs = append(errs, "camerad.poll_timeout_ms must be positive")
	}
	if c.Camerad.AcquireTimeoutMS <= 0 {
		errs = append(errs, "camerad.acquire_timeout_ms must be positive")
	}
	if c.Camerad.FrameDecimation <= 0 {
		errs = append(errs, "camerad.frame_decimation must be positive")
	}
	if c.Camerad.LogRawFrames && c.Camerad.RawFrameDir == "" {
		errs = append(errs, "camerad.raw_frame_dir is required when log_raw_frames is set")
	}
	if c.Camerad.StatusInterval <= 0 {
		errs = append(errs, "camerad.status_interval must be positive")
	}

	errs = append(errs, c.validateCameras()...)

	if c.Camerad.Source == SourceSim && c.Simulation.FrameRateHz <= 0 {
		errs = append(errs, "simulation.frame_rate_hz must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateCameras checks the camera list and returns one message per problem.
func (c *Config) validateCameras() []string {
	var errs []string

	enabled := 0
	seenIndex := make(map[int]bool)
	seenSession := make(map[int32]bool)
	for i, cam := range c.Cameras {
		prefix := fmt.Sprintf("cameras[%d]", i)
		if cam.Index < 0 {
			errs = append(errs, prefix+".index must not be negative")
		}
		if seenIndex[cam.Index] {
			errs = append(errs, fmt.Sprintf("%s.index %d is duplicated", prefix, cam.Index))
		}
		seenIndex[cam.Index] = true

		switch cam.Role {
		case RoleRoad, RoleWideRoad, RoleDriver:
		default:
			errs = append(errs, fmt.Sprintf("%s.role %q is unknown", prefix, cam.Role))
		}
		if !knownSensors[cam.Sensor] {
			errs = append(errs, fmt.Sprintf("%s.sensor %q is unknown", prefix, cam.Sensor))
		}
		if cam.FocalLengthMM <= 0 {
			errs = append(errs, prefix+".focal_length_mm must be positive")
		}
		if cam.Width <= 0 || cam.Height <= 0 {
			errs = append(errs, prefix+" width and height must be positive")
		}
		if cam.Enabled {
			enabled++
			if seenSession[cam.SessionHandle] {
				errs = append(errs, fmt.Sprintf("%s.session_handle %#x is duplicated", prefix, cam.SessionHandle))
			}
			seenSession[cam.SessionHandle] = true
		}
	}
	if enabled == 0 {
		errs = append(errs, "at least one camera must be enabled")
	}

	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// PollTimeout returns the dispatch loop wait bound as a Duration.
func (c *CameradConfig) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutMS) * time.Millisecond
}

// AcquireTimeout returns the buffer acquisition wait bound as a Duration.
func (c *CameradConfig) AcquireTimeout() time.Duration {
	return time.Duration(c.AcquireTimeoutMS) * time.Millisecond
}

// StatusPeriod returns the camera status interval as a Duration.
func (c *CameradConfig) StatusPeriod() time.Duration {
	return time.Duration(c.StatusInterval) * time.Second
}

// ExposureGuard returns the register-write guard after start-of-frame.
func (c *CameradConfig) ExposureGuard() time.Duration {
	return time.Duration(c.ExposureGuardMS) * time.Millisecond
}
