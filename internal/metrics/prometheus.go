package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/medprompt/backend/pkg/circuitbreaker"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medprompt_http_requests_total",
			Help: "Total HTTP requests by route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medprompt_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "route"},
	)

	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "medprompt_search_duration_seconds",
			Help:    "Similarity search duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	SearchResultsCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "medprompt_search_results_count",
			Help:    "Number of passages returned per search",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 20},
		},
	)

	IndexSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "medprompt_index_entries",
			Help: "Passages currently held by the retrieval index",
		},
	)

	DocumentsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medprompt_documents_ingested_total",
			Help: "Total documents ingested by media type",
		},
		[]string{"kind"},
	)

	ChunksIngested = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "medprompt_chunks_ingested_total",
			Help: "Total passages added to the retrieval index",
		},
	)

	PredictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medprompt_predictions_total",
			Help: "Total risk predictions by level",
		},
		[]string{"level"},
	)

	LLMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medprompt_llm_requests_total",
			Help: "Total LLM completions by task and status",
		},
		[]string{"task", "status"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medprompt_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medprompt_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medprompt_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "medprompt_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)
)

func Init() {
	prometheus.MustRegister(HTTPRequests)
	prometheus.MustRegister(HTTPDuration)
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchResultsCount)
	prometheus.MustRegister(IndexSize)
	prometheus.MustRegister(DocumentsIngested)
	prometheus.MustRegister(ChunksIngested)
	prometheus.MustRegister(PredictionsTotal)
	prometheus.MustRegister(LLMRequests)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(CacheHits)
	prometheus.MustRegister(CacheMisses)
	prometheus.MustRegister(BreakerState)
}

func ObserveBreakerState(name string, _, to circuitbreaker.State) {
	BreakerState.WithLabelValues(name).Set(float64(to))
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

// Middleware records request counts and latency keyed by the matched route
// pattern, so path parameters do not explode label cardinality.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		status := c.Response().StatusCode()
		if err != nil {
			if e, ok := err.(*fiber.Error); ok {
				status = e.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}

		HTTPRequests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		HTTPDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}
