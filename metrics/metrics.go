package metrics

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/poiesic/cinevec/ai"
	"github.com/poiesic/cinevec/core"
	"github.com/poiesic/cinevec/search"
)

var (
	// Engine Metrics
	EngineRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinevec_engine_requests_total",
			Help: "Total number of engine requests by requested mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	EngineRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cinevec_engine_request_duration_seconds",
			Help:    "Engine request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"mode"},
	)

	EngineFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinevec_engine_fallbacks_total",
			Help: "Total number of requests degraded to random results",
		},
		[]string{"mode"},
	)

	EngineHydrationDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinevec_engine_hydration_dropped_total",
			Help: "Index hits dropped because the catalog had no metadata for them",
		},
		[]string{"mode"},
	)

	EngineResultCount = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cinevec_engine_results",
			Help:    "Number of results returned per request",
			Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
		},
		[]string{"mode"},
	)

	// Embedding Provider Metrics
	EmbeddingCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinevec_embedding_calls_total",
			Help: "Total number of embedding provider calls",
		},
		[]string{"operation"},
	)

	EmbeddingErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinevec_embedding_errors_total",
			Help: "Total number of failed embedding provider calls",
		},
		[]string{"operation", "error_type"},
	)

	EmbeddingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cinevec_embedding_duration_seconds",
			Help:    "Embedding provider call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinevec_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cinevec_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)
)

// RecordAPIRequest records one finished HTTP request.
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordEmbedding records one embedding provider call.
func RecordEmbedding(operation string, duration time.Duration, err error) {
	EmbeddingCallsTotal.WithLabelValues(operation).Inc()
	EmbeddingDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		EmbeddingErrorsTotal.WithLabelValues(operation, errorType(err)).Inc()
	}
}

// errorType buckets errors by taxonomy to keep label cardinality bounded.
func errorType(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, core.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, core.ErrConfiguration):
		return "configuration"
	case errors.Is(err, core.ErrRemoteService):
		return "remote"
	default:
		return "other"
	}
}

// EngineMonitor reports engine activity to prometheus.
type EngineMonitor struct{}

var _ search.Monitor = EngineMonitor{}

func (EngineMonitor) Start(core.Mode)             {}
func (EngineMonitor) AfterCompose(core.Mode, int) {}
func (EngineMonitor) AfterQuery(core.Mode, int)   {}

func (EngineMonitor) AfterHydrate(mode core.Mode, hits, hydrated int) {
	if dropped := hits - hydrated; dropped > 0 {
		EngineHydrationDropped.WithLabelValues(string(mode)).Add(float64(dropped))
	}
}

func (EngineMonitor) Fallback(from core.Mode, reason string) {
	EngineFallbacksTotal.WithLabelValues(string(from)).Inc()
}

func (EngineMonitor) Finish(mode core.Mode, resp *search.Response, elapsed time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = errorType(err)
	} else if resp != nil && resp.Mode == core.ModeRandom && mode != core.ModeRandom {
		outcome = "fallback"
	}
	EngineRequestsTotal.WithLabelValues(string(mode), outcome).Inc()
	EngineRequestDuration.WithLabelValues(string(mode)).Observe(elapsed.Seconds())
	if resp != nil {
		EngineResultCount.WithLabelValues(string(mode)).Observe(float64(resp.Total))
	}
}

// InstrumentedEmbedder records every call made through the wrapped embedder.
type InstrumentedEmbedder struct {
	next ai.Embedder
}

var _ ai.Embedder = (*InstrumentedEmbedder)(nil)

// InstrumentEmbedder wraps next with call metrics.
func InstrumentEmbedder(next ai.Embedder) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{next: next}
}

func (e *InstrumentedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	v, err := e.next.EmbedText(ctx, text)
	RecordEmbedding("embed_text", time.Since(start), err)
	return v, err
}

func (e *InstrumentedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	v, err := e.next.EmbedTexts(ctx, texts)
	RecordEmbedding("embed_texts", time.Since(start), err)
	return v, err
}
