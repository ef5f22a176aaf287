package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Extraction metrics
var (
	// ExtractionDuration tracks how long a single source extraction takes
	ExtractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "extraction_duration_seconds",
			Help:    "Duration of a single extractor run by source and status",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17min
		},
		[]string{"source", "status"},
	)

	// RecordsExtracted counts raw records pulled per source
	RecordsExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "records_extracted_total",
			Help: "Total number of raw records pulled by source",
		},
		[]string{"source"},
	)

	// ExtractionErrors counts per-listing/per-feed extraction failures that were isolated
	ExtractionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extraction_errors_total",
			Help: "Total number of isolated extraction failures by source",
		},
		[]string{"source"},
	)
)

// Normalization metrics
var (
	// NormalizationRejections counts records dropped for failing to normalize
	NormalizationRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "normalization_rejections_total",
			Help: "Total number of raw records rejected by the normalizer, by reason",
		},
		[]string{"reason"},
	)
)

// Retry metrics
var (
	// RetryAttempts counts retry attempts by operation
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts by operation",
		},
		[]string{"op"},
	)

	// RetryExhausted counts operations that exhausted all retry attempts
	RetryExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_exhausted_total",
			Help: "Total number of operations that exhausted all retry attempts",
		},
		[]string{"op"},
	)
)

// Pipeline and scheduler metrics
var (
	// PipelineRunDuration tracks the duration of a full pipeline run by phase reached
	PipelineRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_run_duration_seconds",
			Help:    "Duration of a pipeline run by run kind and final phase",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"kind", "final_phase"},
	)

	// ProductsUpserted counts products inserted or updated
	ProductsUpserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "products_upserted_total",
			Help: "Total number of products upserted",
		},
	)

	// PricesInserted counts price observations recorded
	PricesInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "prices_inserted_total",
			Help: "Total number of price observations recorded",
		},
	)

	// SignalsInserted counts market signals recorded
	SignalsInserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signals_inserted_total",
			Help: "Total number of market signals recorded",
		},
	)

	// AlertsFired counts risk alerts raised
	AlertsFired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "risk_alerts_fired_total",
			Help: "Total number of risk alerts raised",
		},
	)

	// RiskIndexObserved tracks the most recently computed risk index per product
	RiskIndexObserved = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "risk_index_observed",
			Help: "Most recently computed risk index by product",
		},
		[]string{"product_id"},
	)

	// JobRuns counts scheduler job firings by job and outcome
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Total number of scheduler job firings by job ID and outcome",
		},
		[]string{"job_id", "outcome"}, // outcome: success, failure, skipped_overlap
	)

	// JobDuration tracks how long a scheduler job's firing took
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_job_duration_seconds",
			Help:    "Duration of a scheduler job firing by job ID",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"job_id"},
	)
)

// RecordExtraction records the outcome and duration of one extractor run.
func RecordExtraction(source, status string, duration time.Duration) {
	ExtractionDuration.WithLabelValues(source, status).Observe(duration.Seconds())
}

// RecordRecordsExtracted adds n to the extracted-records counter for source.
func RecordRecordsExtracted(source string, n int) {
	RecordsExtracted.WithLabelValues(source).Add(float64(n))
}

// RecordExtractionError increments the isolated-extraction-error counter for source.
func RecordExtractionError(source string) {
	ExtractionErrors.WithLabelValues(source).Inc()
}

// RecordNormalizationRejection increments the normalizer rejection counter by reason.
func RecordNormalizationRejection(reason string) {
	NormalizationRejections.WithLabelValues(reason).Inc()
}

// RecordRetryAttempt increments the retry attempt counter for op.
func RecordRetryAttempt(op string) {
	RetryAttempts.WithLabelValues(op).Inc()
}

// RecordRetryExhausted increments the retry exhaustion counter for op.
func RecordRetryExhausted(op string) {
	RetryExhausted.WithLabelValues(op).Inc()
}

// RecordPipelineRun records the duration of a completed pipeline run.
func RecordPipelineRun(kind, finalPhase string, duration time.Duration) {
	PipelineRunDuration.WithLabelValues(kind, finalPhase).Observe(duration.Seconds())
}

// RecordRiskIndex sets the most recently observed risk index for a product.
func RecordRiskIndex(productID string, index float64) {
	RiskIndexObserved.WithLabelValues(productID).Set(index)
}

// RecordJobRun records a scheduler job's outcome and duration.
func RecordJobRun(jobID, outcome string, duration time.Duration) {
	JobRuns.WithLabelValues(jobID, outcome).Inc()
	if outcome != "skipped_overlap" {
		JobDuration.WithLabelValues(jobID).Observe(duration.Seconds())
	}
}

func init() {
	slog.Default().Debug("metrics registry initialized")
}
