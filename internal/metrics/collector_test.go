package metrics

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

func TestNewCollector(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.vendorRequestsTotal)
	assert.NotNil(t, collector.vendorTokensUsed)
	assert.NotNil(t, collector.breakerState)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordHTTPRequest("GET", "/ask", 200, 100*time.Millisecond)

	count := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, count, 0)

	collector.RecordHTTPRequest("GET", "/ask", 200, 50*time.Millisecond)
	newCount := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.GreaterOrEqual(t, newCount, count)
}

func TestCollector_RecordVendorRequest(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordVendorRequest("primary", "gpt-4o-mini", "success", 500*time.Millisecond, 100, 50)

	count := testutil.CollectAndCount(collector.vendorRequestsTotal)
	assert.Greater(t, count, 0)

	tokensCount := testutil.CollectAndCount(collector.vendorTokensUsed)
	assert.Greater(t, tokensCount, 0)
}

func TestCollector_RecordFallback(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordFallback("primary", "secondary", "fallback_primary_health")

	count := testutil.CollectAndCount(collector.vendorFallbacksTotal)
	assert.Greater(t, count, 0)
}

func TestCollector_SetBreakerState(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.SetBreakerState("global", "primary", true)
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.breakerState.WithLabelValues("global", "primary")))

	collector.SetBreakerState("global", "primary", false)
	assert.Equal(t, float64(0), testutil.ToFloat64(collector.breakerState.WithLabelValues("global", "primary")))
}

func TestCollector_RecordCacheOperation(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordCacheHit("semantic")
	collector.RecordCacheMiss("semantic")

	hitCount := testutil.CollectAndCount(collector.cacheHits)
	assert.Greater(t, hitCount, 0)

	missCount := testutil.CollectAndCount(collector.cacheMisses)
	assert.Greater(t, missCount, 0)
}

func TestCollector_RecordSelfCheckAndEscalation(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordSelfCheck("code", 0.35)
	collector.RecordEscalation("gpt-4o-mini", "gpt-4o")

	scoreCount := testutil.CollectAndCount(collector.selfCheckScore)
	assert.Greater(t, scoreCount, 0)

	escalationCount := testutil.CollectAndCount(collector.escalationsTotal)
	assert.Greater(t, escalationCount, 0)
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func(id int) {
			collector.RecordHTTPRequest("GET", "/ask", 200, 100*time.Millisecond)
			collector.RecordVendorRequest("primary", "gpt-4o-mini", "success", 500*time.Millisecond, 100, 50)
			collector.RecordCacheHit("semantic")
			done <- true
		}(i)
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	httpCount := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, httpCount, 0)

	vendorCount := testutil.CollectAndCount(collector.vendorRequestsTotal)
	assert.Greater(t, vendorCount, 0)

	cacheCount := testutil.CollectAndCount(collector.cacheHits)
	assert.Greater(t, cacheCount, 0)
}

func TestCollector_MetricsRegistration(t *testing.T) {
	logger := zap.NewNop()

	registry := prometheus.NewRegistry()
	collector := NewCollector(nextTestNamespace(), logger)

	registry.MustRegister(collector.httpRequestsTotal)
	registry.MustRegister(collector.httpRequestDuration)

	collector.RecordHTTPRequest("GET", "/ask", 200, 100*time.Millisecond)

	count := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, count, 0)
}
