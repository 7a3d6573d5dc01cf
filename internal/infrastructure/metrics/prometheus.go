package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusExporter exports metrics to Prometheus format.
type PrometheusExporter struct {
	collector *Collector

	// Prometheus metrics
	cacheHits        prometheus.CounterFunc
	cacheMisses      prometheus.CounterFunc
	cacheHitRate     prometheus.Gauge
	cacheKeys        prometheus.Gauge
	cacheMemoryBytes prometheus.Gauge
	cacheEvictions   prometheus.CounterFunc
	grpcRequests     *prometheus.CounterVec
	grpcDuration     *prometheus.HistogramVec
	grpcErrors       *prometheus.CounterVec
	decisions        *prometheus.CounterVec
}

// NewPrometheusExporter creates a new Prometheus exporter registering its
// metrics with reg. A nil reg uses the default registry.
func NewPrometheusExporter(collector *Collector, reg prometheus.Registerer) *PrometheusExporter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	cacheStat := func(get func(*CacheMetrics) float64) func() float64 {
		return func() float64 { return get(collector.GetCacheMetrics()) }
	}

	return &PrometheusExporter{
		collector: collector,
		cacheHits: factory.NewCounterFunc(prometheus.CounterOpts{
			Name: "placement_check_cache_hits_total",
			Help: "Total number of check cache hits",
		}, cacheStat(func(m *CacheMetrics) float64 { return float64(m.Hits) })),
		cacheMisses: factory.NewCounterFunc(prometheus.CounterOpts{
			Name: "placement_check_cache_misses_total",
			Help: "Total number of check cache misses",
		}, cacheStat(func(m *CacheMetrics) float64 { return float64(m.Misses) })),
		cacheHitRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "placement_check_cache_hit_rate",
			Help: "Current check cache hit rate (0.0 to 1.0)",
		}),
		cacheKeys: factory.NewGauge(prometheus.GaugeOpts{
			Name: "placement_check_cache_keys_current",
			Help: "Current number of parsed check strings in the cache",
		}),
		cacheMemoryBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "placement_check_cache_memory_bytes",
			Help: "Estimated memory usage of the check cache in bytes",
		}),
		cacheEvictions: factory.NewCounterFunc(prometheus.CounterOpts{
			Name: "placement_check_cache_evictions_total",
			Help: "Total number of check cache evictions due to memory limits",
		}, cacheStat(func(m *CacheMetrics) float64 { return float64(m.Evictions) })),
		grpcRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "placement_grpc_requests_total",
				Help: "Total number of gRPC requests",
			},
			[]string{"method"},
		),
		grpcDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "placement_grpc_request_duration_seconds",
				Help:    "Duration of gRPC requests in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 10.0},
			},
			[]string{"method"},
		),
		grpcErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "placement_grpc_errors_total",
				Help: "Total number of gRPC errors",
			},
			[]string{"method", "code"},
		),
		decisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "placement_policy_decisions_total",
				Help: "Total number of policy decisions by rule and outcome",
			},
			[]string{"rule", "outcome"},
		),
	}
}

// Update refreshes the cache gauges from the collector.
// This should be called periodically (e.g., every 10 seconds).
func (e *PrometheusExporter) Update() {
	cacheMetrics := e.collector.GetCacheMetrics()
	e.cacheHitRate.Set(cacheMetrics.HitRate)
	e.cacheKeys.Set(float64(cacheMetrics.KeysCurrent))
	e.cacheMemoryBytes.Set(float64(cacheMetrics.MemoryBytes))
}

// RecordRequest records a request in Prometheus.
func (e *PrometheusExporter) RecordRequest(method string) {
	e.grpcRequests.WithLabelValues(method).Inc()
}

// RecordDuration records a duration in Prometheus.
func (e *PrometheusExporter) RecordDuration(method string, durationSeconds float64) {
	e.grpcDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordError records an error with its gRPC status code.
func (e *PrometheusExporter) RecordError(method, code string) {
	e.grpcErrors.WithLabelValues(method, code).Inc()
}

// RecordDecision records a policy decision.
func (e *PrometheusExporter) RecordDecision(rule string, allowed bool) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	e.decisions.WithLabelValues(rule, outcome).Inc()
}

// DecisionRecorder forwards policy decisions to a collector and, when set,
// a Prometheus exporter.
type DecisionRecorder struct {
	collector *Collector
	exporter  *PrometheusExporter
}

// NewDecisionRecorder creates a DecisionRecorder. exporter may be nil.
func NewDecisionRecorder(collector *Collector, exporter *PrometheusExporter) *DecisionRecorder {
	return &DecisionRecorder{collector: collector, exporter: exporter}
}

// RecordDecision records a policy decision.
func (r *DecisionRecorder) RecordDecision(rule string, allowed bool) {
	r.collector.RecordDecision(rule, allowed)
	if r.exporter != nil {
		r.exporter.RecordDecision(rule, allowed)
	}
}
