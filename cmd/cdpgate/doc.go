// Package main is the entry point for the CDPGate bridge daemon.
//
// The gate exposes an in-process UI runtime to Chrome DevTools:
//
//	DevTools frontend → HTTP discovery (/json/*) → WebSocket per page → UI host loop
//
// The daemon provides:
//   - DevTools discovery endpoints (/json/version, /json/list)
//   - One WebSocket session per registered page
//   - Request/response correlation with throttled outbound batching
//   - Prometheus metrics and health endpoints
//
// Configuration:
//   - Defaults (port 9222, localhost)
//   - Environment variables (PORT, HOST, FLUSH_INTERVAL, ...)
//   - Optional YAML or TOML file (-config), overriding the environment
//   - CLI flags (-port, -host), overriding everything
//
// Usage:
//
//	# Default: bind 127.0.0.1:9222 with demo pages
//	./cdpgate
//
//	# Custom config, no demo pages
//	./cdpgate -config gate.yaml -demo=false
//
//	# Open pages from a manifest instead of the demo set
//	./cdpgate -pages pages.yaml
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
