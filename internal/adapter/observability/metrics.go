package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of provider attempts by model and outcome",
		},
		[]string{"provider", "model", "outcome"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "Provider attempt duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
		[]string{"provider", "model"},
	)

	GatewayQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_queue_depth",
			Help: "Number of provider calls waiting in the gateway queue",
		},
	)
	GatewayQueueWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_queue_wait_seconds",
			Help:    "Time a provider call waited in the gateway queue before running",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"priority"},
	)

	ResponseCacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "response_cache_events_total",
			Help: "Response cache lookups and writes by result",
		},
		[]string{"result"},
	)

	ChatFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_fallbacks_total",
			Help: "Chat answers served from deterministic templates by kind",
		},
		[]string{"kind"},
	)
	ChatPromptTokens = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_prompt_tokens",
			Help:    "Estimated prompt tokens per chat provider call",
			Buckets: []float64{100, 250, 500, 1000, 2000, 4000, 8000},
		},
	)

	JobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_jobs_enqueued_total",
			Help: "Total number of analysis jobs enqueued",
		},
		[]string{"type"},
	)
	JobsProcessing = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "analysis_jobs_processing",
			Help: "Number of analysis jobs currently processing",
		},
		[]string{"type"},
	)
	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_jobs_completed_total",
			Help: "Total number of analysis jobs completed",
		},
		[]string{"type"},
	)
	JobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_jobs_failed_total",
			Help: "Total number of analysis jobs failed",
		},
		[]string{"type"},
	)
)

var initOnce sync.Once

// InitMetrics registers all collectors with the default registry. Safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(HTTPRequestsTotal)
		prometheus.MustRegister(HTTPRequestDuration)
		prometheus.MustRegister(AIRequestsTotal)
		prometheus.MustRegister(AIRequestDuration)
		prometheus.MustRegister(GatewayQueueDepth)
		prometheus.MustRegister(GatewayQueueWait)
		prometheus.MustRegister(ResponseCacheEvents)
		prometheus.MustRegister(ChatFallbacksTotal)
		prometheus.MustRegister(ChatPromptTokens)
		prometheus.MustRegister(JobsEnqueuedTotal)
		prometheus.MustRegister(JobsProcessing)
		prometheus.MustRegister(JobsCompletedTotal)
		prometheus.MustRegister(JobsFailedTotal)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// ObserveAIAttempt records one provider attempt.
func ObserveAIAttempt(provider, model, outcome string, d time.Duration) {
	AIRequestsTotal.WithLabelValues(provider, model, outcome).Inc()
	AIRequestDuration.WithLabelValues(provider, model).Observe(d.Seconds())
}

// SetQueueDepth publishes the number of pending gateway tasks.
func SetQueueDepth(n int) { GatewayQueueDepth.Set(float64(n)) }

// ObserveQueueWait records how long a task waited before it ran.
func ObserveQueueWait(priority string, d time.Duration) {
	GatewayQueueWait.WithLabelValues(priority).Observe(d.Seconds())
}

// CacheEvent counts a cache hit, miss, store or skip.
func CacheEvent(result string) { ResponseCacheEvents.WithLabelValues(result).Inc() }

// ChatFallback counts a templated chat answer.
func ChatFallback(kind string) { ChatFallbacksTotal.WithLabelValues(kind).Inc() }

// ObservePromptTokens records the estimated size of a chat prompt.
func ObservePromptTokens(n int) {
	if n > 0 {
		ChatPromptTokens.Observe(float64(n))
	}
}

func EnqueueJob(jobType string) {
	JobsEnqueuedTotal.WithLabelValues(jobType).Inc()
}

func StartProcessingJob(jobType string) {
	JobsProcessing.WithLabelValues(jobType).Inc()
}

func CompleteJob(jobType string) {
	JobsProcessing.WithLabelValues(jobType).Dec()
	JobsCompletedTotal.WithLabelValues(jobType).Inc()
}

func FailJob(jobType string) {
	JobsProcessing.WithLabelValues(jobType).Dec()
	JobsFailedTotal.WithLabelValues(jobType).Inc()
}
