// Package logging provides structured logging for the Felshare bridge.
//
// It wraps log/slog so every component logs with the same handler,
// level filter and default fields (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	hubLog := logger.Component("hub")
//	hubLog.Info("connected", "device_id", id)
//
// Never log cloud passwords or session tokens.
package logging
