package record

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcome is the terminal state of one test execution.
type Outcome string

const (
	OutcomePassed       Outcome = "passed"
	OutcomeFailed       Outcome = "failed"
	OutcomeSkipped      Outcome = "skipped"
	OutcomeInconclusive Outcome = "inconclusive"
)

// valid reports whether o is one of the four known outcomes.
func (o Outcome) valid() bool {
	switch o {
	case OutcomePassed, OutcomeFailed, OutcomeSkipped, OutcomeInconclusive:
		return true
	}
	return false
}

// FailureDetail describes why a run failed, reduced to comparable keys.
// The adapter hashes the raw message and stack trace (see HashText) so the
// engine clusters failures without ever holding test output.
type FailureDetail struct {
	// ExceptionKind is the failure's type name (e.g. "TimeoutException").
	ExceptionKind string `json:"exception_kind"`

	// MessageHash is a short hash of the failure message.
	MessageHash string `json:"message_hash,omitempty"`

	// StackHash is a short hash of the normalized stack trace. Together with
	// ExceptionKind it forms the failure-cluster key.
	StackHash string `json:"stack_hash,omitempty"`

	// Transient is set when the adapter's framework already labelled the
	// failure as transient (e.g. a known-flaky infrastructure error).
	Transient bool `json:"transient,omitempty"`
}

// RetryMetadata carries the framework's retry bookkeeping, already extracted
// by the adapter. The engine never inspects framework constructs itself.
type RetryMetadata struct {
	// Attempt is 1-based: 1 means the first (possibly only) attempt.
	Attempt int `json:"attempt"`

	// MaxAttempts is the framework's configured retry ceiling, 0 if unknown.
	MaxAttempts int `json:"max_attempts,omitempty"`

	// PassedOnRetry is set when the run failed at least once and then passed
	// on a later attempt.
	PassedOnRetry bool `json:"passed_on_retry,omitempty"`
}

// Retried reports whether this run went past its first attempt.
func (r RetryMetadata) Retried() bool { return r.Attempt > 1 }

// ExecutionContext situates one run inside the larger test session.
// A zero ExecutionContext means the adapter had no context data; consumers
// must treat that as "unavailable", not "ran alone".
type ExecutionContext struct {
	// PositionInRun is the 1-based index of this test within the session.
	PositionInRun int `json:"position_in_run,omitempty"`

	// ConcurrentRunCount is how many tests were executing at the same time,
	// including this one. 1 means the test ran alone.
	ConcurrentRunCount int `json:"concurrent_run_count,omitempty"`

	// WorkerKey is an opaque grouping key for the executing worker
	// (collection name, worker id, thread id — unified by the adapter).
	WorkerKey string `json:"worker_key,omitempty"`
}

// Available reports whether any context data was captured.
func (c ExecutionContext) Available() bool {
	return c.PositionInRun > 0 || c.ConcurrentRunCount > 0 || c.WorkerKey != ""
}

// ExecutionRecord is the immutable fact describing one finished test run.
// Adapters construct one per execution and hand it to the engine; nothing
// downstream ever mutates it.
type ExecutionRecord struct {
	ExecutionID    string           `json:"execution_id"`
	Identity       TestIdentity     `json:"identity"`
	Outcome        Outcome          `json:"outcome"`
	StartTime      time.Time        `json:"start_time"`
	Duration       time.Duration    `json:"duration"`
	Failure        *FailureDetail   `json:"failure,omitempty"`
	EnvironmentKey string           `json:"environment_key,omitempty"`
	Retry          RetryMetadata    `json:"retry"`
	Context        ExecutionContext `json:"context"`
}

// NewExecutionID returns a fresh unique execution identifier.
func NewExecutionID() string { return uuid.NewString() }

// Validate classifies structurally malformed records. Callers drop invalid
// records with a diagnostic counter; the error never reaches the test run.
func (r *ExecutionRecord) Validate() error {
	if r.Identity.Fingerprint == "" {
		return fmt.Errorf("record: missing identity fingerprint")
	}
	if !r.Outcome.valid() {
		return fmt.Errorf("record: unknown outcome %q", r.Outcome)
	}
	if r.StartTime.IsZero() {
		return fmt.Errorf("record: zero start time")
	}
	if r.Duration < 0 {
		return fmt.Errorf("record: negative duration %v", r.Duration)
	}
	if r.Retry.Attempt < 0 {
		return fmt.Errorf("record: negative retry attempt %d", r.Retry.Attempt)
	}
	return nil
}

// RunSummary is the per-run slice kept in a test's history window. It holds
// exactly the fields the scoring engine consumes; everything is a value so a
// window snapshot shares nothing with live records.
type RunSummary struct {
	Outcome        Outcome          `json:"outcome"`
	StartTime      time.Time        `json:"start_time"`
	Duration       time.Duration    `json:"duration"`
	EnvironmentKey string           `json:"environment_key,omitempty"`
	Failure        FailureDetail    `json:"failure,omitempty"`
	HasFailure     bool             `json:"has_failure,omitempty"`
	Retry          RetryMetadata    `json:"retry"`
	Context        ExecutionContext `json:"context"`
}

// Summary derives the history-window view of the record.
func (r *ExecutionRecord) Summary() RunSummary {
	s := RunSummary{
		Outcome:        r.Outcome,
		StartTime:      r.StartTime,
		Duration:       r.Duration,
		EnvironmentKey: r.EnvironmentKey,
		Retry:          r.Retry,
		Context:        r.Context,
	}
	if r.Failure != nil {
		s.Failure = *r.Failure
		s.HasFailure = true
	}
	return s
}

// Passed reports whether the run ultimately passed.
func (s RunSummary) Passed() bool { return s.Outcome == OutcomePassed }

// Failed reports whether the run ultimately failed.
func (s RunSummary) Failed() bool { return s.Outcome == OutcomeFailed }
