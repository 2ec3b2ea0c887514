// Package logging provides structured logging for the Carlos services.
//
// It wraps Go's standard log/slog package so that every component logs
// through the same handler with the same default fields (service,
// version). Output format and level are driven by config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("starting server", "port", 8080)
//
// Never log secrets, tokens or passwords.
package logging
