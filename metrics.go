package apikit

import (
	"strconv"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request
// lifecycle, the reliability layers, and the query cache. All methods
// are safe on a nil receiver so instrumentation can stay optional.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec
	rateLimiterTokens   *prometheus.GaugeVec

	queryFreshHits   prometheus.Counter
	queryStaleHits   prometheus.Counter
	queryMisses      prometheus.Counter
	queryCoalesced   prometheus.Counter
	queryRefetches   *prometheus.CounterVec
	queryEvictions   *prometheus.CounterVec
	queryDiscarded   prometheus.Counter
	queryEntries     prometheus.Gauge
	queryWritesTotal *prometheus.CounterVec

	registry prometheus.Registerer
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the
// supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(registry)
	return &MetricsCollector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apikit_requests_total",
				Help: "Total number of HTTP requests made",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "apikit_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "apikit_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
			[]string{"method", "endpoint"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apikit_retries_total",
				Help: "Total number of retry attempts by operation type",
			},
			[]string{"operation", "attempt"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apikit_errors_total",
				Help: "Total number of classified errors",
			},
			[]string{"kind", "method", "endpoint"},
		),
		circuitBreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "apikit_circuit_breaker_state",
				Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
		rateLimiterTokens: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "apikit_rate_limiter_tokens",
				Help: "Current number of available rate limiter tokens",
			},
			[]string{"name"},
		),
		queryFreshHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "apikit_query_fresh_hits_total",
				Help: "Reads served from a fresh cache entry",
			},
		),
		queryStaleHits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "apikit_query_stale_hits_total",
				Help: "Reads served from a stale entry while revalidating",
			},
		),
		queryMisses: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "apikit_query_misses_total",
				Help: "Reads that required a blocking fetch",
			},
		),
		queryCoalesced: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "apikit_query_coalesced_total",
				Help: "Reads that joined an already in-flight fetch",
			},
		),
		queryRefetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apikit_query_refetches_total",
				Help: "Fetches issued by the query cache",
			},
			[]string{"mode"},
		),
		queryEvictions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apikit_query_evictions_total",
				Help: "Entries removed from the query cache",
			},
			[]string{"reason"},
		),
		queryDiscarded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "apikit_query_discarded_results_total",
				Help: "Fetch results dropped because the entry was superseded",
			},
		),
		queryEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "apikit_query_entries",
				Help: "Current number of query cache entries",
			},
		),
		queryWritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "apikit_query_writes_total",
				Help: "Write operations by result",
			},
			[]string{"result"},
		),
		registry: registry,
	}
}

// RecordRequest records request count and duration.
func (mc *MetricsCollector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}
	code := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, code, endpoint).Inc()
	mc.requestDuration.WithLabelValues(method, code, endpoint).Observe(duration.Seconds())
}

// RecordRequestStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordRetry counts one retry of a read or write operation.
func (mc *MetricsCollector) RecordRetry(operation string, attempt int) {
	if mc == nil {
		return
	}
	mc.retriesTotal.WithLabelValues(operation, strconv.Itoa(attempt)).Inc()
}

// RecordError counts a classified error.
func (mc *MetricsCollector) RecordError(kind Kind, method, endpoint string) {
	if mc == nil {
		return
	}
	mc.errorsTotal.WithLabelValues(string(kind), method, endpoint).Inc()
}

// RecordCircuitBreakerState sets the breaker state gauge.
func (mc *MetricsCollector) RecordCircuitBreakerState(name string, state circuitbreaker.State) {
	if mc == nil {
		return
	}
	var value float64
	switch state {
	case circuitbreaker.ClosedState:
		value = 0
	case circuitbreaker.HalfOpenState:
		value = 1
	case circuitbreaker.OpenState:
		value = 2
	default:
		value = -1
	}
	mc.circuitBreakerState.WithLabelValues(name).Set(value)
}

// RecordRateLimiterTokens sets the available token gauge.
func (mc *MetricsCollector) RecordRateLimiterTokens(name string, tokens float64) {
	if mc == nil {
		return
	}
	mc.rateLimiterTokens.WithLabelValues(name).Set(tokens)
}

// RecordQueryFreshHit counts a read served from a fresh entry.
func (mc *MetricsCollector) RecordQueryFreshHit() {
	if mc == nil {
		return
	}
	mc.queryFreshHits.Inc()
}

// RecordQueryStaleHit counts a read served stale while revalidating.
func (mc *MetricsCollector) RecordQueryStaleHit() {
	if mc == nil {
		return
	}
	mc.queryStaleHits.Inc()
}

// RecordQueryMiss counts a read that had to fetch before returning.
func (mc *MetricsCollector) RecordQueryMiss() {
	if mc == nil {
		return
	}
	mc.queryMisses.Inc()
}

// RecordQueryCoalesced counts a read that joined an in-flight fetch.
func (mc *MetricsCollector) RecordQueryCoalesced() {
	if mc == nil {
		return
	}
	mc.queryCoalesced.Inc()
}

// RecordQueryRefetch counts a fetch by mode ("blocking" or
// "background").
func (mc *MetricsCollector) RecordQueryRefetch(mode string) {
	if mc == nil {
		return
	}
	mc.queryRefetches.WithLabelValues(mode).Inc()
}

// RecordQueryEvictions counts removed entries by reason ("retention"
// or "invalidation").
func (mc *MetricsCollector) RecordQueryEvictions(reason string, count int) {
	if mc == nil || count <= 0 {
		return
	}
	mc.queryEvictions.WithLabelValues(reason).Add(float64(count))
}

// RecordQueryDiscarded counts a fetch result dropped because its entry
// was invalidated mid-flight.
func (mc *MetricsCollector) RecordQueryDiscarded() {
	if mc == nil {
		return
	}
	mc.queryDiscarded.Inc()
}

// RecordQueryEntries sets the entry count gauge.
func (mc *MetricsCollector) RecordQueryEntries(n int) {
	if mc == nil {
		return
	}
	mc.queryEntries.Set(float64(n))
}

// RecordQueryWrite counts a write by result ("success" or "error").
func (mc *MetricsCollector) RecordQueryWrite(result string) {
	if mc == nil {
		return
	}
	mc.queryWritesTotal.WithLabelValues(result).Inc()
}

// Registry exposes the registerer metrics were created on.
func (mc *MetricsCollector) Registry() prometheus.Registerer {
	if mc == nil {
		return nil
	}
	return mc.registry
}
