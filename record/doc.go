// Package record defines the immutable value types that describe one test
// execution: TestIdentity (stable cross-machine fingerprint), ExecutionRecord
// (outcome, timing, failure detail, retry metadata, execution context) and
// RunSummary (the slice of a record kept in the per-test history window).
//
// Records are produced by per-framework adapter shims and consumed by the
// collector and history store. Nothing in this package performs I/O.
//
// Validate() classifies malformed input so callers can drop it with a
// diagnostic counter instead of propagating an error into the test run.
package record
