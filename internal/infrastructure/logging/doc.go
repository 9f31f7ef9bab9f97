// Package logging provides structured logging for camerad.
//
// It wraps log/slog with JSON or text output, level filtering and the
// default fields service and version. Per-camera loggers add camera and
// stream attributes so loss events from different sensors can be told apart.
//
// Configuration in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	camLog := logger.ForCamera(0, "roadCameraState")
//	camLog.Error("skipped frame", "frame_id", 42)
package logging
