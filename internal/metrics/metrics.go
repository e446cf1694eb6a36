// Package metrics defines the engine's Prometheus counters. Every failure
// path in the core — malformed input, dropped batches, buffer overflow,
// history backpressure — terminates in one of these counters instead of an
// error visible to the observed test run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecordsTotal counts every execution record accepted by RecordExecution,
	// before sampling.
	RecordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "testpulse_records_total",
		Help: "Execution records accepted by the engine.",
	})

	// RecordsMalformed counts records dropped by validation.
	RecordsMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "testpulse_records_malformed_total",
		Help: "Execution records dropped because they failed validation.",
	})

	// RecordsSampledOut counts records excluded from the upload path by the
	// Bernoulli sampling draw. Sampled-out records still reach history.
	RecordsSampledOut = promauto.NewCounter(prometheus.CounterOpts{
		Name: "testpulse_records_sampled_out_total",
		Help: "Execution records excluded from upload by sampling.",
	})

	// RecordsOverflowDropped counts records evicted from the collector buffer
	// because flushing could not keep pace.
	RecordsOverflowDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "testpulse_records_overflow_dropped_total",
		Help: "Buffered records dropped due to collector buffer overflow.",
	})

	// RecordsUploadDropped counts records lost when a batch exhausted its
	// upload retries. Failed batches are never re-buffered.
	RecordsUploadDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "testpulse_records_upload_dropped_total",
		Help: "Records dropped after their batch exhausted upload retries.",
	})

	// BatchesUploaded counts successfully delivered batches.
	BatchesUploaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "testpulse_batches_uploaded_total",
		Help: "Batches delivered to the upload endpoint.",
	})

	// BatchesFailed counts batches dropped after retries were exhausted or a
	// permanent failure was returned.
	BatchesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "testpulse_batches_failed_total",
		Help: "Batches dropped after upload failure.",
	})

	// UploadRetries counts individual upload re-attempts.
	UploadRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "testpulse_upload_retries_total",
		Help: "Upload attempts beyond the first, across all batches.",
	})

	// HistoryDropped counts run summaries that could not be enqueued for the
	// history worker because its buffer was full.
	HistoryDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "testpulse_history_enqueue_dropped_total",
		Help: "Run summaries dropped because the history queue was full.",
	})

	// ScoresComputed counts confidence recomputations.
	ScoresComputed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "testpulse_scores_computed_total",
		Help: "Confidence score recomputations.",
	})

	// AlertsFired counts alert rule firings.
	AlertsFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "testpulse_alerts_fired_total",
		Help: "Alert rule firings on published confidence results.",
	})
)
