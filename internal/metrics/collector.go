// Package metrics provides the router's internal Prometheus metrics.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector owns every Prometheus metric the router emits: the HTTP
// surface, per-vendor call outcomes, circuit breaker state, and the
// semantic cache's hit rate.
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	vendorRequestsTotal   *prometheus.CounterVec
	vendorRequestDuration *prometheus.HistogramVec
	vendorTokensUsed      *prometheus.CounterVec
	vendorFallbacksTotal  *prometheus.CounterVec

	breakerState *prometheus.GaugeVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	selfCheckScore   *prometheus.HistogramVec
	escalationsTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers every metric under namespace and returns the
// collector. Call once per process; promauto panics on duplicate
// registration.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route and status class",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.vendorRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vendor_requests_total",
			Help:      "Total number of adapter calls by vendor, model and outcome",
		},
		[]string{"vendor", "model", "status"},
	)

	c.vendorRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vendor_request_duration_seconds",
			Help:      "Adapter call duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"vendor", "model"},
	)

	c.vendorTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vendor_tokens_used_total",
			Help:      "Total number of tokens used, by vendor/model/type (prompt|completion)",
		},
		[]string{"vendor", "model", "type"},
	)

	c.vendorFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vendor_fallbacks_total",
			Help:      "Total number of requests that fell back from one vendor to another",
		},
		[]string{"from_vendor", "to_vendor", "reason"},
	)

	c.breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_open",
			Help:      "1 if the named circuit breaker is currently open, else 0",
		},
		[]string{"scope", "vendor"},
	)

	c.cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of semantic cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of semantic cache misses",
		},
		[]string{"cache_type"},
	)

	c.selfCheckScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "self_check_score",
			Help:      "Distribution of computed self-check scores",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
		[]string{"intent"},
	)

	c.escalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Total number of self-check escalations to a stronger model",
		},
		[]string{"from_model", "to_model"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordHTTPRequest records one completed HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordVendorRequest records one adapter call.
func (c *Collector) RecordVendorRequest(vendor, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	c.vendorRequestsTotal.WithLabelValues(vendor, model, status).Inc()
	c.vendorRequestDuration.WithLabelValues(vendor, model).Observe(duration.Seconds())
	c.vendorTokensUsed.WithLabelValues(vendor, model, "prompt").Add(float64(promptTokens))
	c.vendorTokensUsed.WithLabelValues(vendor, model, "completion").Add(float64(completionTokens))
}

// RecordFallback records a router-level vendor swap.
func (c *Collector) RecordFallback(fromVendor, toVendor, reason string) {
	c.vendorFallbacksTotal.WithLabelValues(fromVendor, toVendor, reason).Inc()
}

// SetBreakerState reports whether scope ("global" or "user") is open for vendor.
func (c *Collector) SetBreakerState(scope, vendor string, open bool) {
	v := 0.0
	if open {
		v = 1.0
	}
	c.breakerState.WithLabelValues(scope, vendor).Set(v)
}

// RecordCacheHit records a semantic cache hit.
func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a semantic cache miss.
func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordSelfCheck records a computed self-check score for intent.
func (c *Collector) RecordSelfCheck(intent string, score float64) {
	c.selfCheckScore.WithLabelValues(intent).Observe(score)
}

// RecordEscalation records a self-check escalation from one model to another.
func (c *Collector) RecordEscalation(fromModel, toModel string) {
	c.escalationsTotal.WithLabelValues(fromModel, toModel).Inc()
}

func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
