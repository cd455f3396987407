package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestHTTPMetricsMiddleware_Basic(t *testing.T) {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/x", nil)
	mw := HTTPMetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(204) }))
	mw.ServeHTTP(rec, r)
	assert.Equal(t, 204, rec.Result().StatusCode)
	assert.GreaterOrEqual(t, testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("/x", http.MethodGet, "No Content")), 1.0)
}

func TestGatewayMetricsHelpers(t *testing.T) {
	InitMetrics()
	InitMetrics()

	SetQueueDepth(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(GatewayQueueDepth))

	before := testutil.ToFloat64(ResponseCacheEvents.WithLabelValues("hit"))
	CacheEvent("hit")
	assert.Equal(t, before+1, testutil.ToFloat64(ResponseCacheEvents.WithLabelValues("hit")))

	before = testutil.ToFloat64(AIRequestsTotal.WithLabelValues("gemini", "m", "ok"))
	ObserveAIAttempt("gemini", "m", "ok", 10*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(AIRequestsTotal.WithLabelValues("gemini", "m", "ok")))

	ObserveQueueWait("high", time.Second)
	ChatFallback("data_aware")
	ObservePromptTokens(120)
	ObservePromptTokens(0)

	EnqueueJob("analysis")
	StartProcessingJob("analysis")
	CompleteJob("analysis")
	StartProcessingJob("analysis")
	FailJob("analysis")
	assert.Equal(t, 0.0, testutil.ToFloat64(JobsProcessing.WithLabelValues("analysis")))
}
