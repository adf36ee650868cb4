package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptgate_generations_total",
			Help: "Total number of generation attempts",
		},
		[]string{"tenant_id", "model", "status"},
	)

	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "promptgate_generation_duration_seconds",
			Help:    "Provider call plus response mapping duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"tenant_id", "model"},
	)

	MappingFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptgate_mapping_failures_total",
			Help: "Total number of request or response mapping failures",
		},
		[]string{"tenant_id", "model", "stage"},
	)

	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptgate_provider_errors_total",
			Help: "Total number of provider transport errors",
		},
		[]string{"model", "error_type"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "promptgate_rate_limit_hits_total",
			Help: "Total number of rate limit hits",
		},
		[]string{"tenant_id"},
	)

	LogAppendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "promptgate_log_append_failures_total",
			Help: "Total number of execution log writes that failed",
		},
	)

	ActiveGenerations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "promptgate_active_generations",
			Help: "Number of generation attempts currently in flight",
		},
	)
)

func RecordGeneration(tenantID, model, status string, durationSec float64) {
	GenerationsTotal.WithLabelValues(tenantID, model, status).Inc()
	GenerationDuration.WithLabelValues(tenantID, model).Observe(durationSec)
}

func RecordMappingFailure(tenantID, model, stage string) {
	MappingFailures.WithLabelValues(tenantID, model, stage).Inc()
}

func RecordProviderError(model, errorType string) {
	ProviderErrors.WithLabelValues(model, errorType).Inc()
}

func RecordRateLimitHit(tenantID string) {
	RateLimitHits.WithLabelValues(tenantID).Inc()
}

func RecordLogAppendFailure() {
	LogAppendFailures.Inc()
}
