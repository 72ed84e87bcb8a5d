package dispatch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// outcomeSuccess labels requests that returned a business-successful envelope.
const outcomeSuccess = "success"

// MetricsCollector provides Prometheus metrics for the request lifecycle.
// It is safe for concurrent use and every method is a no-op on nil.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	supersessionsTotal *prometheus.CounterVec
	cancelAllTotal     prometheus.Counter
	cancelledByAll     prometheus.Counter

	errorsTotal      *prometheus.CounterVec
	tokenClearsTotal prometheus.Counter
	sinkDropped      prometheus.Counter

	registry *prometheus.Registry
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(registry)
	mc := &MetricsCollector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "argus_requests_total",
				Help: "Total number of settled requests by outcome",
			},
			[]string{"method", "outcome", "endpoint"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "argus_request_duration_seconds",
				Help:    "Duration of requests from dispatch to settlement in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "outcome", "endpoint"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "argus_requests_in_flight",
				Help: "Number of requests currently in flight",
			},
			[]string{"method", "endpoint"},
		),
		supersessionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "argus_supersessions_total",
				Help: "Total number of in-flight requests aborted by a newer identical request",
			},
			[]string{"method", "endpoint"},
		),
		cancelAllTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "argus_cancel_all_total",
				Help: "Total number of CancelAll calls",
			},
		),
		cancelledByAll: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "argus_cancel_all_requests_total",
				Help: "Total number of requests aborted by CancelAll",
			},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "argus_errors_total",
				Help: "Total number of classified errors",
			},
			[]string{"kind", "method", "endpoint"},
		),
		tokenClearsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "argus_token_clears_total",
				Help: "Total number of times the auth token was cleared after a 401",
			},
		),
		sinkDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "argus_sink_dropped_total",
				Help: "Total number of observability events dropped",
			},
		),
	}
	mc.registry, _ = registry.(*prometheus.Registry)

	return mc
}

// RecordRequest records a settled request and its duration.
func (mc *MetricsCollector) RecordRequest(method, endpoint, outcome string, duration time.Duration) {
	if mc == nil {
		return
	}

	mc.requestsTotal.WithLabelValues(method, outcome, endpoint).Inc()
	mc.requestDuration.WithLabelValues(method, outcome, endpoint).Observe(duration.Seconds())
}

// RecordRequestStart increments in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd decrements in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordSupersession counts a request aborted by a newer one.
func (mc *MetricsCollector) RecordSupersession(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.supersessionsTotal.WithLabelValues(method, endpoint).Inc()
}

// RecordCancelAll counts a CancelAll call and the requests it aborted.
func (mc *MetricsCollector) RecordCancelAll(aborted int) {
	if mc == nil {
		return
	}

	mc.cancelAllTotal.Inc()
	mc.cancelledByAll.Add(float64(aborted))
}

// RecordError increments error counter by kind.
func (mc *MetricsCollector) RecordError(kind ErrorKind, method, endpoint string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(kind.String(), method, endpoint).Inc()
}

// RecordTokenClear counts a token cleared after a 401.
func (mc *MetricsCollector) RecordTokenClear() {
	if mc == nil {
		return
	}

	mc.tokenClearsTotal.Inc()
}

// RecordSinkDrop counts an observability event dropped by an AsyncSink.
func (mc *MetricsCollector) RecordSinkDrop() {
	if mc == nil {
		return
	}

	mc.sinkDropped.Inc()
}

// GetRegistry exposes the underlying prometheus registry, nil when the
// collector was built on a plain Registerer.
func (mc *MetricsCollector) GetRegistry() *prometheus.Registry {
	if mc == nil {
		return nil
	}
	return mc.registry
}
