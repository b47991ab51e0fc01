package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the Message Director's process-wide Prometheus
// metrics: routing throughput, control-message traffic, participant
// count, and the two external connections (the upstream parent MD and
// the NATS event log) that can independently fail without affecting
// local routing.
type Metrics struct {
	ServiceStatus     *prometheus.GaugeVec
	HealthCheckStatus *prometheus.GaugeVec

	DatagramsRouted    *prometheus.CounterVec
	ControlMessages    *prometheus.CounterVec
	RoutingErrors      *prometheus.CounterVec
	RoutingDuration    prometheus.Histogram
	ParticipantsActive prometheus.Gauge

	UpstreamConnected prometheus.Gauge
	UpstreamLost      prometheus.Counter

	EventLogConnected  prometheus.Gauge
	EventLogReconnects prometheus.Counter
	EventsPublished    prometheus.Counter
}

// NewMetrics creates the Metrics instance registered by NewMetricsRegistry.
func NewMetrics() *Metrics {
	return &Metrics{
		ServiceStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "astronmd",
				Subsystem: "service",
				Name:      "status",
				Help:      "Subsystem lifecycle status (0=stopped, 1=starting, 2=running, 3=stopping, 4=failed)",
			},
			[]string{"subsystem"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "astronmd",
				Subsystem: "health",
				Name:      "status",
				Help:      "Subsystem health check status (0=unhealthy, 1=healthy)",
			},
			[]string{"subsystem"},
		),

		DatagramsRouted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "astronmd",
				Subsystem: "routing",
				Name:      "datagrams_total",
				Help:      "Total datagrams routed, by origin",
			},
			[]string{"origin"}, // "local" or "upstream"
		),

		ControlMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "astronmd",
				Subsystem: "control",
				Name:      "messages_total",
				Help:      "Total control messages handled, by type",
			},
			[]string{"type"},
		),

		RoutingErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "astronmd",
				Subsystem: "routing",
				Name:      "errors_total",
				Help:      "Total routing failures, by operation",
			},
			[]string{"operation"},
		),

		RoutingDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "astronmd",
				Subsystem: "routing",
				Name:      "deliver_duration_seconds",
				Help:      "Time spent delivering one datagram to its subscribers",
				Buckets:   prometheus.DefBuckets,
			},
		),

		ParticipantsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "astronmd",
				Subsystem: "participants",
				Name:      "active",
				Help:      "Number of live participants",
			},
		),

		UpstreamConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "astronmd",
				Subsystem: "upstream",
				Name:      "connected",
				Help:      "Upstream parent MD connection status (0=disconnected, 1=connected)",
			},
		),

		UpstreamLost: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "astronmd",
				Subsystem: "upstream",
				Name:      "lost_total",
				Help:      "Total times the upstream connection was lost after being established",
			},
		),

		EventLogConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "astronmd",
				Subsystem: "eventlog",
				Name:      "connected",
				Help:      "NATS event log connection status (0=disconnected, 1=connected)",
			},
		),

		EventLogReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "astronmd",
				Subsystem: "eventlog",
				Name:      "reconnects_total",
				Help:      "Total NATS reconnections for the event log sender",
			},
		),

		EventsPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "astronmd",
				Subsystem: "eventlog",
				Name:      "published_total",
				Help:      "Total LOG_MESSAGE envelopes published to the event log",
			},
		),
	}
}

// RecordServiceStatus updates a subsystem's lifecycle status gauge.
func (m *Metrics) RecordServiceStatus(subsystem string, status int) {
	m.ServiceStatus.WithLabelValues(subsystem).Set(float64(status))
}

// RecordHealthStatus updates a subsystem's health check gauge.
func (m *Metrics) RecordHealthStatus(subsystem string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	m.HealthCheckStatus.WithLabelValues(subsystem).Set(value)
}

// RecordDatagramRouted increments the routed-datagram counter for origin
// ("local" or "upstream").
func (m *Metrics) RecordDatagramRouted(origin string) {
	m.DatagramsRouted.WithLabelValues(origin).Inc()
}

// RecordControlMessage increments the control-message counter for a
// decoded message type name.
func (m *Metrics) RecordControlMessage(msgType string) {
	m.ControlMessages.WithLabelValues(msgType).Inc()
}

// RecordRoutingError increments the routing-error counter for operation.
func (m *Metrics) RecordRoutingError(operation string) {
	m.RoutingErrors.WithLabelValues(operation).Inc()
}

// RecordRoutingDuration observes how long one Deliver call took.
func (m *Metrics) RecordRoutingDuration(d time.Duration) {
	m.RoutingDuration.Observe(d.Seconds())
}

// SetParticipantsActive sets the current live-participant gauge.
func (m *Metrics) SetParticipantsActive(n int) {
	m.ParticipantsActive.Set(float64(n))
}

// RecordUpstreamStatus updates the upstream connection gauge.
func (m *Metrics) RecordUpstreamStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	m.UpstreamConnected.Set(value)
}

// RecordUpstreamLost increments the upstream-lost counter.
func (m *Metrics) RecordUpstreamLost() {
	m.UpstreamLost.Inc()
}

// RecordEventLogStatus updates the event log connection gauge.
func (m *Metrics) RecordEventLogStatus(connected bool) {
	value := 0.0
	if connected {
		value = 1.0
	}
	m.EventLogConnected.Set(value)
}

// RecordEventLogReconnect increments the event log reconnect counter.
func (m *Metrics) RecordEventLogReconnect() {
	m.EventLogReconnects.Inc()
}

// RecordEventPublished increments the published-events counter.
func (m *Metrics) RecordEventPublished() {
	m.EventsPublished.Inc()
}
