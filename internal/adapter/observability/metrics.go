package observability

import (
	"net/http"
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
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by provider and operation",
		},
		[]string{"provider", "operation"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "operation"},
	)
	AIRequestFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_request_failures_total",
			Help: "Total number of failed AI requests by provider and error class",
		},
		[]string{"provider", "class"},
	)

	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "score_queue_depth",
			Help: "Number of tasks waiting in the bounded queue",
		},
	)
	QueueActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "score_queue_active",
			Help: "Number of tasks currently executing",
		},
	)
	QueueTaskRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "score_queue_task_retries_total",
			Help: "Total number of task retry attempts",
		},
	)
	BreakerOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "score_breaker_open",
			Help: "Circuit breaker state (1 open, 0 closed)",
		},
	)
	BreakerFailures = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "score_breaker_failures",
			Help: "Current circuit breaker failure counter",
		},
	)

	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "score_cache_hits_total",
			Help: "Cache lookups by outcome (fresh, stale, miss)",
		},
		[]string{"outcome"},
	)
	StaleServedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "score_cache_stale_served_total",
			Help: "Times an expired entry was served because recompute failed",
		},
	)

	ScoreHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "final_score",
			Help:    "Distribution of final scores [0,100]",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
		[]string{"kind", "path"},
	)
)

// InitMetrics registers all Prometheus collectors once per process.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(AIRequestsTotal)
	prometheus.MustRegister(AIRequestDuration)
	prometheus.MustRegister(AIRequestFailures)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(QueueActive)
	prometheus.MustRegister(QueueTaskRetries)
	prometheus.MustRegister(BreakerOpen)
	prometheus.MustRegister(BreakerFailures)
	prometheus.MustRegister(CacheHitsTotal)
	prometheus.MustRegister(StaleServedTotal)
	prometheus.MustRegister(ScoreHistogram)
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

// ObserveScore records a final score. path is "model" or "fallback".
func ObserveScore(kind string, score int, fallback bool) {
	path := "model"
	if fallback {
		path = "fallback"
	}
	if score >= 0 && score <= 100 {
		ScoreHistogram.WithLabelValues(kind, path).Observe(float64(score))
	}
}
