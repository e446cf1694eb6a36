// Package uploader defines the batch delivery contract and its reference
// HTTP implementation.
//
// Uploader is the abstract sink the collector drains into — one call per
// batch, implemented by whatever transport the embedder provides. Batches
// carry a unique ID so remote delivery can be made idempotent: a retried
// batch resends the identical payload under the identical ID.
//
// Retrier wraps an Uploader with the core's delivery policy: oversized
// batches are chunked into independently retried sub-batches, transient
// failures are retried with truncated exponential backoff (1s→30s, ×2,
// ±25% jitter) up to a configured ceiling, and permanent failures — marked
// with Permanent() — fail fast. An empty batch performs zero uploader calls.
// Each attempt runs under its own timeout; a timeout is a transient failure.
//
// HTTPUploader POSTs JSON envelopes to a configured endpoint with the auth
// modes from config (apikey, bearer, basic, mtls). 4xx responses other than
// 408/429 are permanent; 408, 429, 5xx and network errors are transient.
package uploader
