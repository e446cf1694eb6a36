// Package engine ties the telemetry pipeline together: it validates incoming
// execution records, feeds them to the upload collector, maintains per-test
// run history, and keeps confidence scores current as runs arrive.
package engine
