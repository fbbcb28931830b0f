package prometheus

import (
	"strconv"
	"time"

	"account-ledger/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector implements MetricsCollector and HTTPRecorder for Prometheus.
// It is itself a prometheus.Collector, so it can be passed to MustRegister.
type PrometheusCollector struct {
	namespace string

	// Ledger core
	applies        *prometheus.CounterVec
	applyLatency   *prometheus.HistogramVec
	accountsOpened *prometheus.CounterVec
	storeOps       *prometheus.CounterVec
	storeErrors    *prometheus.CounterVec
	storeLatency   *prometheus.HistogramVec

	// Circuit breaker
	circuitOpens *prometheus.CounterVec
	circuitState *prometheus.GaugeVec

	// Event dispatch
	queueDepth     *prometheus.GaugeVec
	droppedEvents  *prometheus.CounterVec
	publishes      *prometheus.CounterVec
	publishLatency *prometheus.HistogramVec

	// HTTP
	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
}

// NewPrometheusCollector creates a new Prometheus metrics collector.
func NewPrometheusCollector(namespace string) *PrometheusCollector {
	latencyBuckets := prometheus.ExponentialBuckets(0.0001, 2, 15) // 0.1ms to ~3s

	return &PrometheusCollector{
		namespace: namespace,
		applies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "applies_total",
				Help:      "Total number of apply calls by outcome (applied, rejected, failed)",
			},
			[]string{"outcome"},
		),
		applyLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "apply_duration_seconds",
				Help:      "Apply latency including lock wait",
				Buckets:   latencyBuckets,
			},
			[]string{"outcome"},
		),
		accountsOpened: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "accounts_opened_total",
				Help:      "Total number of accounts created, explicitly or by a first transaction",
			},
			[]string{"implicit"},
		),
		storeOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Total number of store calls per store and operation",
			},
			[]string{"store", "operation"},
		),
		storeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_errors_total",
				Help:      "Total number of failed store calls per store and operation",
			},
			[]string{"store", "operation"},
		),
		storeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_duration_seconds",
				Help:      "Store call latency",
				Buckets:   latencyBuckets,
			},
			[]string{"store", "operation"},
		),
		circuitOpens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_opens_total",
				Help:      "Total number of circuit breaker opens per sink",
			},
			[]string{"sink"},
		),
		circuitState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_state",
				Help:      "Current circuit breaker state per sink (0=closed, 1=open, 2=half-open)",
			},
			[]string{"sink"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "event_queue_depth",
				Help:      "Current event dispatcher queue depth per sink",
			},
			[]string{"sink"},
		),
		droppedEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_dropped_total",
				Help:      "Total number of events dropped on backpressure per sink",
			},
			[]string{"sink"},
		),
		publishes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_published_total",
				Help:      "Total number of publish attempts per sink and status",
			},
			[]string{"sink", "status"},
		),
		publishLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "event_publish_duration_seconds",
				Help:      "Event publish latency",
				Buckets:   latencyBuckets,
			},
			[]string{"sink"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latencies in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
	}
}

func (pc *PrometheusCollector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		pc.applies,
		pc.applyLatency,
		pc.accountsOpened,
		pc.storeOps,
		pc.storeErrors,
		pc.storeLatency,
		pc.circuitOpens,
		pc.circuitState,
		pc.queueDepth,
		pc.droppedEvents,
		pc.publishes,
		pc.publishLatency,
		pc.httpRequests,
		pc.httpLatency,
	}
}

// Register registers all metrics with the given Prometheus registry.
func (pc *PrometheusCollector) Register(registry prometheus.Registerer) error {
	for _, collector := range pc.collectors() {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

// Describe implements prometheus.Collector.
func (pc *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range pc.collectors() {
		collector.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (pc *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range pc.collectors() {
		collector.Collect(ch)
	}
}

// RecordApply records one pass through the ledger core.
func (pc *PrometheusCollector) RecordApply(outcome string, duration time.Duration) {
	pc.applies.WithLabelValues(outcome).Inc()
	pc.applyLatency.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordAccountOpened records a newly created account.
func (pc *PrometheusCollector) RecordAccountOpened(implicit bool) {
	pc.accountsOpened.WithLabelValues(strconv.FormatBool(implicit)).Inc()
}

// RecordStoreOp records a store call.
func (pc *PrometheusCollector) RecordStoreOp(store, op string, success bool, duration time.Duration) {
	pc.storeOps.WithLabelValues(store, op).Inc()
	if !success {
		pc.storeErrors.WithLabelValues(store, op).Inc()
	}
	pc.storeLatency.WithLabelValues(store, op).Observe(duration.Seconds())
}

// RecordCircuitState records the current circuit breaker state.
func (pc *PrometheusCollector) RecordCircuitState(sink string, state metrics.CircuitState) {
	pc.circuitState.WithLabelValues(sink).Set(float64(state))
	if state == metrics.CircuitOpen {
		pc.circuitOpens.WithLabelValues(sink).Inc()
	}
}

// RecordQueueDepth records the current dispatcher queue depth.
func (pc *PrometheusCollector) RecordQueueDepth(sink string, depth int) {
	pc.queueDepth.WithLabelValues(sink).Set(float64(depth))
}

// RecordEventDropped records an event dropped on backpressure.
func (pc *PrometheusCollector) RecordEventDropped(sink string) {
	pc.droppedEvents.WithLabelValues(sink).Inc()
}

// RecordEventPublished records a publish attempt.
func (pc *PrometheusCollector) RecordEventPublished(sink string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "error"
	}
	pc.publishes.WithLabelValues(sink, status).Inc()
	pc.publishLatency.WithLabelValues(sink).Observe(duration.Seconds())
}

// RecordHTTPRequest records a served request. endpoint is the route template.
func (pc *PrometheusCollector) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	pc.httpRequests.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	pc.httpLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

var (
	_ metrics.MetricsCollector = (*PrometheusCollector)(nil)
	_ metrics.HTTPRecorder     = (*PrometheusCollector)(nil)
	_ prometheus.Collector     = (*PrometheusCollector)(nil)
)
