package uploader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/testpulse/testpulse/config"
	"github.com/testpulse/testpulse/record"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeUploader scripts per-call outcomes and remembers every batch it saw.
type fakeUploader struct {
	mu      sync.Mutex
	batches []Batch
	errs    []error // consumed in order; nil past the end
}

func (f *fakeUploader) UploadBatch(_ context.Context, batch Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, batch)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

func (f *fakeUploader) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func records(n int) []record.ExecutionRecord {
	out := make([]record.ExecutionRecord, n)
	for i := range out {
		out[i] = record.ExecutionRecord{
			ExecutionID: fmt.Sprintf("exec-%d", i),
			Identity:    record.NewIdentity(fmt.Sprintf("pkg.Test%d", i), ""),
			Outcome:     record.OutcomePassed,
			StartTime:   baseTime,
			Duration:    10 * time.Millisecond,
			Retry:       record.RetryMetadata{Attempt: 1},
		}
	}
	return out
}

// newTestRetrier disables real sleeping so backoff retries are instant.
func newTestRetrier(up Uploader, mutate func(*config.EngineConfig)) *Retrier {
	cfg := config.Defaults().Engine
	if mutate != nil {
		mutate(&cfg)
	}
	r := NewRetrier(up, cfg)
	r.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return r
}

func TestUpload_EmptyIsNoOp(t *testing.T) {
	fake := &fakeUploader{}
	r := newTestRetrier(fake, nil)

	for i := 0; i < 3; i++ {
		res := r.Upload(context.Background(), nil)
		if !res.Success {
			t.Fatal("empty upload should succeed")
		}
		if res.Attempts != 0 {
			t.Errorf("empty upload made %d attempts, want 0", res.Attempts)
		}
	}
	if fake.calls() != 0 {
		t.Errorf("uploader called %d times for empty input, want 0", fake.calls())
	}
}

func TestUpload_Delivers(t *testing.T) {
	fake := &fakeUploader{}
	r := newTestRetrier(fake, nil)

	res := r.Upload(context.Background(), records(5))
	if !res.Success {
		t.Fatalf("upload failed: %s", res.FailureReason)
	}
	if res.DeliveredRecords != 5 || res.DroppedRecords != 0 {
		t.Errorf("delivered/dropped = %d/%d, want 5/0", res.DeliveredRecords, res.DroppedRecords)
	}
	if res.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", res.Attempts)
	}
}

func TestUpload_RetriesTransientThenSucceeds(t *testing.T) {
	transient := errors.New("HTTP 503")
	fake := &fakeUploader{errs: []error{transient, transient}}
	r := newTestRetrier(fake, func(c *config.EngineConfig) { c.MaxRetries = 3 })

	res := r.Upload(context.Background(), records(2))
	if !res.Success {
		t.Fatalf("upload should have recovered: %s", res.FailureReason)
	}
	if res.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", res.Attempts)
	}

	// Retries must resend the identical batch ID.
	if fake.batches[0].ID != fake.batches[1].ID || fake.batches[1].ID != fake.batches[2].ID {
		t.Error("retries changed the batch ID")
	}
}

func TestUpload_ExhaustsRetries(t *testing.T) {
	transient := errors.New("HTTP 503")
	fake := &fakeUploader{errs: []error{transient, transient, transient, transient, transient}}
	r := newTestRetrier(fake, func(c *config.EngineConfig) { c.MaxRetries = 2 })

	res := r.Upload(context.Background(), records(4))
	if res.Success {
		t.Fatal("upload should have failed")
	}
	// First try + 2 retries.
	if res.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", res.Attempts)
	}
	if res.DroppedRecords != 4 {
		t.Errorf("dropped = %d, want 4", res.DroppedRecords)
	}
	if res.FailureReason == "" {
		t.Error("FailureReason empty after exhaustion")
	}
}

func TestUpload_PermanentFailsFast(t *testing.T) {
	fake := &fakeUploader{errs: []error{Permanentf("HTTP 400 bad payload")}}
	r := newTestRetrier(fake, func(c *config.EngineConfig) { c.MaxRetries = 5 })

	res := r.Upload(context.Background(), records(1))
	if res.Success {
		t.Fatal("upload should have failed")
	}
	if res.Attempts != 1 {
		t.Errorf("permanent failure made %d attempts, want 1", res.Attempts)
	}
}

func TestUpload_ChunksBySize(t *testing.T) {
	fake := &fakeUploader{}
	recs := records(10)
	perRecord := encodedSize(recs[0])
	// Limit each chunk to roughly three records.
	r := newTestRetrier(fake, func(c *config.EngineConfig) { c.MaxPayloadBytes = perRecord*3 + 10 })

	res := r.Upload(context.Background(), recs)
	if !res.Success {
		t.Fatalf("upload failed: %s", res.FailureReason)
	}
	if fake.calls() < 3 {
		t.Errorf("expected at least 3 chunks, got %d", fake.calls())
	}

	// Every record delivered exactly once, across distinct batch IDs.
	seen := make(map[string]int)
	ids := make(map[string]bool)
	for _, b := range fake.batches {
		ids[b.ID] = true
		for _, rec := range b.Records {
			seen[rec.ExecutionID]++
		}
	}
	if len(ids) != fake.calls() {
		t.Error("chunks shared a batch ID")
	}
	for id, n := range seen {
		if n != 1 {
			t.Errorf("record %s delivered %d times", id, n)
		}
	}
	if len(seen) != len(recs) {
		t.Errorf("delivered %d distinct records, want %d", len(seen), len(recs))
	}
}

func TestUpload_ChunksFailIndependently(t *testing.T) {
	// First chunk rejected permanently; remaining chunks still delivered.
	fake := &fakeUploader{errs: []error{Permanentf("HTTP 413")}}
	recs := records(6)
	perRecord := encodedSize(recs[0])
	r := newTestRetrier(fake, func(c *config.EngineConfig) { c.MaxPayloadBytes = perRecord*2 + 10 })

	res := r.Upload(context.Background(), recs)
	if res.Success {
		t.Fatal("partial failure should not report success")
	}
	if res.DroppedRecords == 0 || res.DeliveredRecords == 0 {
		t.Errorf("expected a mixed outcome, got delivered=%d dropped=%d",
			res.DeliveredRecords, res.DroppedRecords)
	}
	if res.DeliveredRecords+res.DroppedRecords != len(recs) {
		t.Error("delivered + dropped does not cover the input")
	}
}

func TestUpload_ContextCancelStopsRetrying(t *testing.T) {
	transient := errors.New("HTTP 503")
	fake := &fakeUploader{errs: []error{transient, transient, transient, transient}}
	r := newTestRetrier(fake, func(c *config.EngineConfig) { c.MaxRetries = 10 })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := r.Upload(ctx, records(1))
	if res.Success {
		t.Fatal("cancelled upload should fail")
	}
	if res.Attempts > 1 {
		t.Errorf("cancelled upload kept retrying: %d attempts", res.Attempts)
	}
}

func TestBackoff_GrowsAndCaps(t *testing.T) {
	bo := newBackoff()
	for i := 0; i < 10; i++ {
		d := bo.next()
		if d < 0 {
			t.Fatalf("negative backoff %v", d)
		}
		// With ±25% jitter the duration never exceeds 1.25× the cap.
		if d > time.Duration(float64(backoffMax)*1.25) {
			t.Fatalf("backoff %v exceeds jittered cap", d)
		}
	}
}
