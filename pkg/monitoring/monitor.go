package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 15, 60},
		},
		[]string{"method", "endpoint"},
	)

	// QuestionsProcessed 各阶段通过/丢弃的题目数，stage: segment|generate|combine
	QuestionsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_questions_total",
			Help: "Questions handled by the generation pipeline",
		},
		[]string{"stage", "result"},
	)

	ModelCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_calls_total",
			Help: "Hosted model calls by purpose and outcome",
		},
		[]string{"provider", "purpose", "outcome"},
	)

	ModelRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_retries_total",
			Help: "Retries caused by upstream throttling",
		},
		[]string{"provider"},
	)

	FallbackUses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quiz_generation_fallback_total",
			Help: "Uploads that used fallback questions or none",
		},
		[]string{"source"},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestCounter)
		prometheus.MustRegister(RequestDuration)
		prometheus.MustRegister(QuestionsProcessed)
		prometheus.MustRegister(ModelCalls)
		prometheus.MustRegister(ModelRetries)
		prometheus.MustRegister(FallbackUses)
	})
}

// ObserveModelCall outcome: ok|throttled|error
func ObserveModelCall(provider, purpose, outcome string) {
	ModelCalls.WithLabelValues(provider, purpose, outcome).Inc()
}

func ObserveQuestions(stage, result string, n int) {
	if n <= 0 {
		return
	}
	QuestionsProcessed.WithLabelValues(stage, result).Add(float64(n))
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
