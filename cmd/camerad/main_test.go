package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeConfig writes a config file and points CAMERAD_CONFIG at it.
func writeConfig(t *testing.T, content string) {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "test-config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("CAMERAD_CONFIG", configPath)
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("CAMERAD_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails when database path is empty.
func TestRun_MissingDatabasePath(t *testing.T) {
	writeConfig(t, `
device:
  id: test-unit

database:
  path: ""

logging:
  level: error
  format: text
  output: stdout
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// TestRun_InvalidSource verifies validation rejects an unknown event source.
func TestRun_InvalidSource(t *testing.T) {
	writeConfig(t, `
camerad:
  source: usb
logging:
  level: error
  format: text
  output: stdout
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with unknown source")
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("CAMERAD_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("CAMERAD_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

// TestRun_SimulationWithoutBroker starts the simulated daemon with no MQTT
// broker listening and checks it runs until the context ends.
func TestRun_SimulationWithoutBroker(t *testing.T) {
	if testing.Short() {
		t.Skip("waits for the MQTT connect timeout")
	}

	dbPath := filepath.Join(t.TempDir(), "test.db")
	writeConfig(t, `
device:
  id: test-unit

database:
  path: "`+dbPath+`"
  wal_mode: true
  busy_timeout: 5

mqtt:
  broker:
    host: "127.0.0.1"
    port: 19999
    client_id: "camerad-test"
  reconnect:
    initial_delay: 1
    max_delay: 5

api:
  enabled: false

logging:
  level: error
  format: text
  output: stdout

camerad:
  source: sim
  poll_timeout_ms: 50

cameras:
  - index: 1
    role: road
    sensor: ox03c10
    focal_length_mm: 8.0
    width: 192
    height: 120
    enabled: true
    session_handle: 0x101
    link_handle: 0x201

simulation:
  frame_rate_hz: 20
`)

	ctx, cancel := context.WithTimeout(context.Background(), 14*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}
}
