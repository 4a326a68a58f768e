package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons recorded on cdpgate_frames_dropped_total.
const (
	DropNoSession    = "no_session"
	DropNoConnection = "no_connection"
	DropMalformed    = "malformed"
	DropUIBusy       = "ui_busy"
	DropWriteError   = "write_error"
)

// Response outcomes recorded on cdpgate_responses_total.
const (
	ResponseMatched   = "matched"
	ResponseUnknownID = "unknown_id"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Page and connection metrics
	PagesActive       prometheus.Gauge
	PagesTotal        prometheus.Counter
	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  prometheus.Counter

	// Frame metrics
	FramesReceived prometheus.Counter
	FramesSent     prometheus.Counter
	FramesDropped  *prometheus.CounterVec
	BatchSize      prometheus.Histogram

	// Correlation metrics
	PendingRequests   prometheus.Gauge
	Responses         *prometheus.CounterVec
	CommandsForwarded prometheus.Counter
	DisconnectNotices prometheus.Counter
}

// NewMetrics creates a metrics collector registered on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates a metrics collector registered on reg. Tests pass a
// fresh registry so repeated construction does not collide.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	start := time.Now()

	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	m := &Metrics{
		gatherer: gatherer,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdpgate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cdpgate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		PagesActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "cdpgate_pages_active",
				Help: "Number of registered debuggable pages",
			},
		),
		PagesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cdpgate_pages_total",
				Help: "Total number of pages registered",
			},
		),
		ConnectionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "cdpgate_connections_active",
				Help: "Number of attached DevTools connections",
			},
		),
		ConnectionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cdpgate_connections_total",
				Help: "Total number of DevTools connections accepted",
			},
		),

		FramesReceived: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cdpgate_frames_received_total",
				Help: "Total number of inbound WebSocket text frames",
			},
		),
		FramesSent: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cdpgate_frames_sent_total",
				Help: "Total number of outbound WebSocket frames (one per flush)",
			},
		),
		FramesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdpgate_frames_dropped_total",
				Help: "Total number of frames dropped, by reason",
			},
			[]string{"reason"},
		),
		BatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "cdpgate_batch_size_payloads",
				Help:    "Payloads coalesced into one outbound frame",
				Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55},
			},
		),

		PendingRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "cdpgate_pending_requests",
				Help: "Outbound requests awaiting a correlated response",
			},
		),
		Responses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cdpgate_responses_total",
				Help: "Total number of correlated responses, by outcome",
			},
			[]string{"outcome"},
		),
		CommandsForwarded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cdpgate_commands_forwarded_total",
				Help: "Total number of inbound commands handed to the UI bridge",
			},
		),
		DisconnectNotices: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cdpgate_disconnect_notices_total",
				Help: "Total number of synthesized disconnect notices delivered",
			},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "cdpgate_uptime_seconds",
			Help: "Gate uptime in seconds",
		},
		func() float64 { return time.Since(start).Seconds() },
	)

	return m
}

// Handler returns an HTTP handler exposing the collector in the Prometheus
// text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordFrameSent records one outbound frame carrying n coalesced payloads.
func (m *Metrics) RecordFrameSent(n int) {
	m.FramesSent.Inc()
	m.BatchSize.Observe(float64(n))
}

// RecordFrameDropped records a dropped frame with the given reason.
func (m *Metrics) RecordFrameDropped(reason string) {
	m.FramesDropped.WithLabelValues(reason).Inc()
}

// RecordResponse records a correlated response outcome.
func (m *Metrics) RecordResponse(outcome string) {
	m.Responses.WithLabelValues(outcome).Inc()
}

// IncPages increments page counters when a page registers.
func (m *Metrics) IncPages() {
	m.PagesActive.Inc()
	m.PagesTotal.Inc()
}

// DecPages decrements the active page gauge.
func (m *Metrics) DecPages() {
	m.PagesActive.Dec()
}

// IncConnections increments connection counters when a socket attaches.
func (m *Metrics) IncConnections() {
	m.ConnectionsActive.Inc()
	m.ConnectionsTotal.Inc()
}

// DecConnections decrements the active connection gauge.
func (m *Metrics) DecConnections() {
	m.ConnectionsActive.Dec()
}
