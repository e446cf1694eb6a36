package uploader

import (
	"time"

	"github.com/testpulse/testpulse/record"
)

// wireEnvelope is the JSON body of one batch upload. The batch_id is the
// receiver's idempotency key; retried batches resend the same envelope.
type wireEnvelope struct {
	BatchID string       `json:"batch_id"`
	SentAt  time.Time    `json:"sent_at"`
	Records []wireRecord `json:"records"`
}

// wireRecord is the over-the-wire shape of one execution record, flattened
// to snake_case fields the ingestion endpoint expects.
type wireRecord struct {
	ExecutionID        string    `json:"execution_id"`
	Fingerprint        string    `json:"fingerprint"`
	FullName           string    `json:"full_name"`
	ParameterSignature string    `json:"parameter_signature,omitempty"`
	DisplayName        string    `json:"display_name,omitempty"`
	Outcome            string    `json:"outcome"`
	StartTime          time.Time `json:"start_time"`
	DurationMs         float64   `json:"duration_ms"`
	EnvironmentKey     string    `json:"environment_key,omitempty"`

	ExceptionKind    string `json:"exception_kind,omitempty"`
	MessageHash      string `json:"message_hash,omitempty"`
	StackHash        string `json:"stack_hash,omitempty"`
	TransientFailure bool   `json:"transient_failure,omitempty"`

	Attempt       int  `json:"attempt,omitempty"`
	MaxAttempts   int  `json:"max_attempts,omitempty"`
	PassedOnRetry bool `json:"passed_on_retry,omitempty"`

	PositionInRun      int    `json:"position_in_run,omitempty"`
	ConcurrentRunCount int    `json:"concurrent_run_count,omitempty"`
	WorkerKey          string `json:"worker_key,omitempty"`
}

// toWire converts a batch into its upload envelope.
func toWire(batch Batch, sentAt time.Time) wireEnvelope {
	env := wireEnvelope{
		BatchID: batch.ID,
		SentAt:  sentAt,
		Records: make([]wireRecord, 0, len(batch.Records)),
	}
	for i := range batch.Records {
		env.Records = append(env.Records, toWireRecord(&batch.Records[i]))
	}
	return env
}

func toWireRecord(r *record.ExecutionRecord) wireRecord {
	w := wireRecord{
		ExecutionID:        r.ExecutionID,
		Fingerprint:        r.Identity.Fingerprint,
		FullName:           r.Identity.FullName,
		ParameterSignature: r.Identity.ParameterSignature,
		DisplayName:        r.Identity.DisplayName,
		Outcome:            string(r.Outcome),
		StartTime:          r.StartTime,
		DurationMs:         float64(r.Duration) / float64(time.Millisecond),
		EnvironmentKey:     r.EnvironmentKey,
		Attempt:            r.Retry.Attempt,
		MaxAttempts:        r.Retry.MaxAttempts,
		PassedOnRetry:      r.Retry.PassedOnRetry,
		PositionInRun:      r.Context.PositionInRun,
		ConcurrentRunCount: r.Context.ConcurrentRunCount,
		WorkerKey:          r.Context.WorkerKey,
	}
	if r.Failure != nil {
		w.ExceptionKind = r.Failure.ExceptionKind
		w.MessageHash = r.Failure.MessageHash
		w.StackHash = r.Failure.StackHash
		w.TransientFailure = r.Failure.Transient
	}
	return w
}
