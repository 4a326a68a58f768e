// Package logging provides structured logging using uber/zap.
//
// This package offers production-ready logging with two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Subsystems obtain child loggers via Named, so log lines carry the
// component that emitted them ("server", "registry", "session").
//
// Example Usage:
//
//	logger := logging.NewDefault()
//	logger.Info("Gate starting", zap.String("port", "9222"))
//	logger.Named("registry").Warn("No session for page", zap.String("page", id))
package logging
