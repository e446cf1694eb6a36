package api

import "github.com/testpulse/testpulse/scoring"

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status        string  `json:"status"`
	TrackedTests  int     `json:"tracked_tests"`
	ScoredTests   int     `json:"scored_tests"`
	AverageScore  float64 `json:"average_score"`
	LowCount      int     `json:"low_count"`      // defined scores below 0.5
	DegradedCount int     `json:"degraded_count"` // trend is a degradation
	AlertCount    int     `json:"alert_count"`
}

// TestResponse is one test entry in GET /api/v1/tests or
// GET /api/v1/tests/{fingerprint}.
type TestResponse struct {
	Fingerprint    string          `json:"fingerprint"`
	Defined        bool            `json:"defined"`
	Score          float64         `json:"score"`
	Level          string          `json:"level"`
	Trend          string          `json:"trend"`
	Factors        scoring.Factors `json:"factors"`
	RunCount       int             `json:"run_count"`
	RunsUntilScore int             `json:"runs_until_score,omitempty"`
	ComputedAt     string          `json:"computed_at"` // RFC3339
}

// IngestRequest is the payload for POST /api/v1/executions.
type IngestRequest struct {
	FullName           string `json:"full_name"`
	ParameterSignature string `json:"parameter_signature,omitempty"`
	Outcome            string `json:"outcome"`
	StartTime          string `json:"start_time"` // RFC3339
	DurationMs         int64  `json:"duration_ms"`
	EnvironmentKey     string `json:"environment_key,omitempty"`

	Attempt       int  `json:"attempt,omitempty"`
	MaxAttempts   int  `json:"max_attempts,omitempty"`
	PassedOnRetry bool `json:"passed_on_retry,omitempty"`

	Failure *IngestFailure `json:"failure,omitempty"`
}

// IngestFailure carries the privacy-reduced failure detail of one execution.
type IngestFailure struct {
	ExceptionKind string `json:"exception_kind"`
	Message       string `json:"message,omitempty"`
	StackTrace    string `json:"stack_trace,omitempty"`
	Transient     bool   `json:"transient,omitempty"`
}

// IngestResponse acknowledges one accepted execution.
type IngestResponse struct {
	ExecutionID string `json:"execution_id"`
	Fingerprint string `json:"fingerprint"`
}

// SnapshotResponse is the full confidence picture, used by the WebSocket hub
// and available to any caller holding an engine.
type SnapshotResponse struct {
	Tests       []TestResponse `json:"tests"`
	GeneratedAt string         `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
