// Package logging provides structured logging for the sensor collector.
//
// It wraps log/slog so every component logs through one handler with the
// same default fields (service, version).
//
// Configuration lives in the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("message stored", "sensor_id", id)
//
// Never log broker passwords or service tokens.
package logging
