package uploader

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/testpulse/testpulse/config"
	"github.com/testpulse/testpulse/internal/metrics"
	"github.com/testpulse/testpulse/record"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 30 * time.Second
	backoffMultiplier = 2.0
)

// Retrier applies the delivery policy around an Uploader: chunking by payload
// size, per-attempt timeouts, exponential backoff on transient failures, and
// fail-fast on permanent ones. Retried chunks resend the identical payload
// under the identical batch ID.
type Retrier struct {
	up         Uploader
	maxRetries int
	timeout    time.Duration
	maxPayload int

	// sleep is swapped out by tests so backoff waits don't stall the suite.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetrier wraps up with the retry policy from cfg.
func NewRetrier(up Uploader, cfg config.EngineConfig) *Retrier {
	return &Retrier{
		up:         up,
		maxRetries: cfg.MaxRetries,
		timeout:    cfg.UploadTimeout,
		maxPayload: cfg.MaxPayloadBytes,
		sleep:      sleepCtx,
	}
}

// Upload delivers records, chunking when the encoded payload would exceed the
// configured maximum. Chunks are retried independently: one chunk exhausting
// its retries does not stop the rest. An empty input is a no-op with zero
// uploader calls.
func (r *Retrier) Upload(ctx context.Context, records []record.ExecutionRecord) Result {
	if len(records) == 0 {
		return Result{Success: true}
	}

	var res Result
	res.Success = true
	for _, chunk := range r.chunk(records) {
		batch := NewBatch(chunk)
		attempts, err := r.send(ctx, batch)
		res.Attempts += attempts
		if err != nil {
			res.Success = false
			res.FailureReason = err.Error()
			res.DroppedRecords += len(chunk)
			metrics.BatchesFailed.Inc()
			continue
		}
		res.DeliveredRecords += len(chunk)
		metrics.BatchesUploaded.Inc()
	}
	return res
}

// send attempts one batch until success, a permanent failure, retry
// exhaustion, or context cancellation. It returns the attempt count.
func (r *Retrier) send(ctx context.Context, batch Batch) (int, error) {
	bo := newBackoff()
	attempts := 0
	for {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := r.up.UploadBatch(attemptCtx, batch)
		cancel()

		if err == nil {
			return attempts, nil
		}
		if IsPermanent(err) {
			return attempts, err
		}
		if attempts > r.maxRetries {
			return attempts, err
		}
		if ctx.Err() != nil {
			return attempts, ctx.Err()
		}

		metrics.UploadRetries.Inc()
		if serr := r.sleep(ctx, bo.next()); serr != nil {
			return attempts, serr
		}
	}
}

// chunk splits records so each group's encoded size stays at or below the
// payload limit. A single record larger than the limit still gets its own
// chunk — the endpoint, not the client, is the authority on rejecting it.
func (r *Retrier) chunk(records []record.ExecutionRecord) [][]record.ExecutionRecord {
	var (
		chunks  [][]record.ExecutionRecord
		current []record.ExecutionRecord
		size    int
	)
	for _, rec := range records {
		recSize := encodedSize(rec)
		if len(current) > 0 && size+recSize > r.maxPayload {
			chunks = append(chunks, current)
			current = nil
			size = 0
		}
		current = append(current, rec)
		size += recSize
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// encodedSize approximates a record's wire footprint via its JSON encoding.
func encodedSize(rec record.ExecutionRecord) int {
	b, err := json.Marshal(rec)
	if err != nil {
		return 0
	}
	return len(b)
}

// sleepCtx waits d or returns early when ctx is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	// Advance for next call.
	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}
