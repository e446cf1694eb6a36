// Package api exposes the REST surface of testpulsed: confidence results,
// alert state, health, and an ingest endpoint for execution records.
package api
