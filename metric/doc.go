// Package metric provides Prometheus-based metrics collection and an HTTP
// server for the Message Director's own observability surface.
//
// The package offers a centralized metrics registry managing both core
// routing metrics (service status, datagrams routed, control messages,
// upstream/eventlog connectivity) and, if a caller needs one, additional
// service-specific metrics. It includes an HTTP server exposing metrics in
// Prometheus format for monitoring system integration.
//
// # Architecture
//
// The package follows a three-layer design:
//
//  1. Core Metrics: routing-level metrics automatically registered (Metrics type)
//  2. Service Registry: extensible registration for additional metrics (MetricsRegistrar interface)
//  3. HTTP Server: metrics endpoint with health checks (Server type)
//
// This architecture separates infrastructure concerns (core metrics) from
// caller-specific concerns (service-specific metrics) while providing a
// unified metrics endpoint for monitoring systems.
//
// # Basic Usage
//
// Setting up metrics collection and HTTP server:
//
//	registry := metric.NewMetricsRegistry()
//	securityCfg := security.Config{}
//	server := metric.NewServer(9090, "/metrics", registry, securityCfg)
//
//	go func() {
//	    if err := server.Start(); err != nil && err != http.ErrServerClosed {
//	        log.Printf("metrics server error: %v", err)
//	    }
//	}()
//
//	// Record core routing metrics
//	coreMetrics := registry.CoreMetrics()
//	coreMetrics.RecordServiceStatus("routing", 2)
//	coreMetrics.RecordDatagramRouted("local")
//	coreMetrics.RecordUpstreamStatus(true)
//
// The metrics server exposes Prometheus-formatted metrics at
// http://localhost:9090/metrics and a health check at
// http://localhost:9090/health.
//
// # Core Metrics
//
// The package automatically registers core routing metrics tracking:
//
//   - Service lifecycle: service_status (0=stopped, 1=starting, 2=running, 3=stopping)
//   - Routing throughput: routing_datagrams_total, control_messages_total
//   - Routing failures: routing_errors_total, routing_deliver_duration_seconds
//   - Participant load: participants_active
//   - Upstream MD link: upstream_connected, upstream_lost_total
//   - Event log forwarding: eventlog_connected, eventlog_reconnects_total, eventlog_published_total
//
// Access core metrics through the registry:
//
//	coreMetrics := registry.CoreMetrics()
//
//	// Service lifecycle tracking
//	coreMetrics.RecordServiceStatus("routing", 2) // 2 = running
//
//	// Routing metrics
//	coreMetrics.RecordDatagramRouted("local")
//	coreMetrics.RecordControlMessage("add_channel")
//	coreMetrics.RecordRoutingError("deliver")
//	coreMetrics.RecordRoutingDuration(150 * time.Microsecond)
//
//	// Participant gauge
//	coreMetrics.SetParticipantsActive(42)
//
//	// Upstream link and event log connectivity
//	coreMetrics.RecordUpstreamStatus(true)
//	coreMetrics.RecordEventLogStatus(true)
//
// # Service-Specific Metrics
//
// Callers can register custom metrics through the registry:
//
//	// Register a counter
//	requestCounter := prometheus.NewCounter(prometheus.CounterOpts{
//	    Name: "api_requests_total",
//	    Help: "Total number of API requests",
//	})
//	err := registry.RegisterCounter("api-service", "api_requests_total", requestCounter)
//
//	// Register a gauge
//	activeConnections := prometheus.NewGauge(prometheus.GaugeOpts{
//	    Name: "active_connections",
//	    Help: "Number of active client connections",
//	})
//	err = registry.RegisterGauge("listener-service", "active_connections", activeConnections)
//
//	// Register a histogram
//	queryDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
//	    Name:    "query_duration_seconds",
//	    Help:    "Time spent executing queries",
//	    Buckets: prometheus.DefBuckets,
//	})
//	err = registry.RegisterHistogram("database-service", "query_duration_seconds", queryDuration)
//
// # Vector Metrics with Labels
//
// Register metrics with labels for multi-dimensional data:
//
//	// Counter with labels
//	httpRequestsVec := prometheus.NewCounterVec(
//	    prometheus.CounterOpts{
//	        Name: "http_requests_total",
//	        Help: "Total HTTP requests by status and method",
//	    },
//	    []string{"status", "method"},
//	)
//	err := registry.RegisterCounterVec("admin-service", "http_requests_total", httpRequestsVec)
//
//	// Use the metric with specific label values
//	httpRequestsVec.WithLabelValues("200", "GET").Inc()
//	httpRequestsVec.WithLabelValues("404", "POST").Inc()
//
// # HTTP Server
//
// The metrics server provides three endpoints:
//
//   - GET / - HTML page with links to metrics and health endpoints
//   - GET /metrics - Prometheus-formatted metrics (default path, configurable)
//   - GET /health - plain-text health check response
//
// Server configuration:
//
//	// Default configuration (port 9090, path /metrics)
//	securityCfg := security.Config{}
//	server := metric.NewServer(0, "", registry, securityCfg)
//
//	// Custom configuration
//	server := metric.NewServer(8080, "/prometheus", registry, securityCfg)
//
//	// Start server (blocking)
//	if err := server.Start(); err != nil {
//	    log.Fatalf("failed to start metrics server: %v", err)
//	}
//
//	// Stop server (in another goroutine)
//	if err := server.Stop(); err != nil {
//	    log.Printf("error stopping server: %v", err)
//	}
//
// The health endpoint answers HTTP 200 with the plain-text body "OK".
//
// # Prometheus Integration
//
// The package uses the official Prometheus Go client library and exposes
// metrics in OpenMetrics format. Configure Prometheus to scrape the endpoint:
//
//	# prometheus.yml
//	scrape_configs:
//	  - job_name: 'astron-md'
//	    static_configs:
//	      - targets: ['localhost:9090']
//	    metrics_path: '/metrics'
//	    scrape_interval: 15s
//
// All core metrics use the namespace "astronmd" and appropriate subsystems:
//   - astronmd_service_status{subsystem="..."}
//   - astronmd_routing_datagrams_total{origin="..."}
//   - astronmd_upstream_connected
//
// Service-specific metrics use the metric name as provided during registration.
//
// # MetricsRegistrar Interface
//
// Callers implement the MetricsRegistrar interface for dependency injection:
//
//	type MyComponent struct {
//	    metrics metric.MetricsRegistrar
//	}
//
//	func NewMyComponent(metrics metric.MetricsRegistrar) *MyComponent {
//	    counter := prometheus.NewCounter(prometheus.CounterOpts{
//	        Name: "operations_total",
//	        Help: "Total operations",
//	    })
//	    metrics.RegisterCounter("my-component", "operations_total", counter)
//
//	    return &MyComponent{metrics: metrics}
//	}
//
// This enables testing with mock registrars and provides loose coupling.
//
// # Thread Safety
//
// All registry operations are thread-safe:
//   - Registration methods use mutex protection
//   - Metric recording is lock-free (Prometheus guarantee)
//   - CoreMetrics() returns a thread-safe shared instance
//   - PrometheusRegistry() is safe for concurrent access
//
// # Error Handling
//
// Registration methods return errors for:
//
//   - Duplicate registration: attempting to register same metric name twice
//   - Prometheus conflicts: internal Prometheus registration failures
//   - Validation errors: nil metrics or invalid parameters
//
// Example error handling:
//
//	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test"})
//	err := registry.RegisterCounter("service", "test", counter)
//	if err != nil {
//	    if strings.Contains(err.Error(), "already registered") {
//	        log.Printf("metric already registered, skipping")
//	    } else {
//	        log.Fatalf("failed to register metric: %v", err)
//	    }
//	}
//
// The Server.Start() method returns errors for:
//
//   - Server already running
//   - Nil registry
//   - HTTP server failures (port in use, permission denied)
//
// # Architecture Integration
//
// The daemon passes its registry to the routing engine
// (routing.Options.MetricsRegistry), whose worker pool registers its
// queue and throughput metrics through it. No subsystem calls the core
// metrics' Record* helpers; the core metrics are registered but are not
// updated by the daemon.
//
// Data flow:
//
//	Subsystem -> MetricsRegistry -> Prometheus Registry -> HTTP Server -> Prometheus
package metric
