package apireq

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the call path: requests,
// cache, single-flight, retries, the pipeline and the frequency guard. It is
// safe for concurrent use and every method is a no-op on a nil receiver.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec
	cacheSize   prometheus.Gauge

	singleFlight *prometheus.CounterVec

	pipelineLimit   prometheus.Gauge
	pipelineActive  prometheus.Gauge
	pipelineWaiting prometheus.Gauge

	guardTrips prometheus.Counter

	errorsTotal *prometheus.CounterVec

	buildInfo *prometheus.GaugeVec

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
				Name: "apireq_requests_total",
				Help: "Total number of calls completed",
			},
			[]string{"method", "status_code"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apireq_request_duration_seconds",
				Help:    "Duration of calls in seconds, queueing and retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "apireq_requests_in_flight",
				Help: "Number of calls started and not yet settled",
			},
			[]string{"method"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apireq_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "attempt"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apireq_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"method"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apireq_cache_misses_total",
				Help: "Total number of cache misses, expired entries included",
			},
			[]string{"method"},
		),
		cacheSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "apireq_cache_size",
				Help: "Current number of entries in cache",
			},
		),
		singleFlight: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apireq_single_flight_total",
				Help: "Single-flight decisions by policy and outcome",
			},
			[]string{"policy", "outcome"},
		),
		pipelineLimit: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "apireq_pipeline_limit",
				Help: "Maximum number of concurrently active transport calls",
			},
		),
		pipelineActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "apireq_pipeline_active",
				Help: "Number of transport calls currently admitted",
			},
		),
		pipelineWaiting: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "apireq_pipeline_waiting",
				Help: "Number of transport calls waiting for admission",
			},
		),
		guardTrips: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "apireq_guard_trips_total",
				Help: "Total number of calls refused by the frequency guard",
			},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apireq_errors_total",
				Help: "Total number of failed calls by error class",
			},
			[]string{"type", "method"},
		),
		buildInfo: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "apireq_build_info",
				Help: "Always 1, labelled with the library version, commit and Go runtime",
			},
			[]string{"version", "commit", "go_version"},
		),
	}
	mc.buildInfo.With(buildLabels()).Set(1)
	if reg, ok := registry.(*prometheus.Registry); ok {
		mc.registry = reg
	}

	return mc
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(method string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	statusCodeStr := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, statusCodeStr).Inc()
	mc.requestDuration.WithLabelValues(method, statusCodeStr).Observe(duration.Seconds())
}

// RecordRequestStart increments in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method).Inc()
}

// RecordRequestEnd decrements in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method).Dec()
}

// RecordRetry increments retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(method string, attempt int) {
	if mc == nil {
		return
	}

	mc.retriesTotal.WithLabelValues(method, strconv.Itoa(attempt)).Inc()
}

// RecordCacheHit increments cache hit counter.
func (mc *MetricsCollector) RecordCacheHit(method string) {
	if mc == nil {
		return
	}

	mc.cacheHits.WithLabelValues(method).Inc()
}

// RecordCacheMiss increments cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(method string) {
	if mc == nil {
		return
	}

	mc.cacheMisses.WithLabelValues(method).Inc()
}

// RecordCacheSize sets cache size gauge.
func (mc *MetricsCollector) RecordCacheSize(size int) {
	if mc == nil {
		return
	}

	mc.cacheSize.Set(float64(size))
}

// RecordSingleFlight counts one single-flight decision, e.g. ("prev",
// "rejected") or ("next", "superseded").
func (mc *MetricsCollector) RecordSingleFlight(policy Single, outcome string) {
	if mc == nil {
		return
	}

	mc.singleFlight.WithLabelValues(policy.String(), outcome).Inc()
}

// RecordPipeline sets the pipeline gauges.
func (mc *MetricsCollector) RecordPipeline(limit, active, waiting int) {
	if mc == nil {
		return
	}

	mc.pipelineLimit.Set(float64(limit))
	mc.pipelineActive.Set(float64(active))
	mc.pipelineWaiting.Set(float64(waiting))
}

// RecordGuardTrip increments the frequency guard counter.
func (mc *MetricsCollector) RecordGuardTrip() {
	if mc == nil {
		return
	}

	mc.guardTrips.Inc()
}

// RecordError increments error counter by type.
func (mc *MetricsCollector) RecordError(errorType, method string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(errorType, method).Inc()
}

// GetRegistry exposes the underlying prometheus registry. It is nil when
// the collector was built on a Registerer that is not a *prometheus.Registry.
func (mc *MetricsCollector) GetRegistry() *prometheus.Registry {
	if mc == nil {
		return nil
	}
	return mc.registry
}

// errorClass names the error class of err for the errors_total metric.
func errorClass(err error) string {
	switch {
	case IsConfigurationError(err):
		return "configuration"
	case IsSingleFlightRejection(err):
		return "single_flight"
	case IsCancellation(err):
		return "cancellation"
	case StatusCode(err) != 0:
		return "http_status"
	default:
		return "transport"
	}
}
