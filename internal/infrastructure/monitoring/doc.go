/*
Package monitoring provides Prometheus metrics for the gate.

# Overview

Tracks the two traffic directions separately: inbound frames from DevTools
clients (received, forwarded, dropped) and outbound batches flushed per page
(sent, batch size). Correlation health is visible through the pending-request
gauge and the per-outcome response counter.

# Usage

	metrics := monitoring.NewMetrics()
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	metrics.IncConnections()
	metrics.RecordFrameSent(len(batch))
	metrics.RecordFrameDropped(monitoring.DropNoSession)

Label cardinality stays bounded: drop reasons and response outcomes are fixed
constants, and HTTP paths are the matched route patterns, never raw URLs.
*/
package monitoring
