package uploader

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/testpulse/testpulse/record"
)

// Batch is a bounded group of execution records assembled for one upload
// attempt. The ID is stable across retries so the receiving side can
// deduplicate redelivered batches.
type Batch struct {
	ID      string
	Records []record.ExecutionRecord
}

// NewBatch assembles a batch with a fresh unique ID.
func NewBatch(records []record.ExecutionRecord) Batch {
	return Batch{ID: uuid.NewString(), Records: records}
}

// Uploader is the abstract sink implemented by the transport layer.
// UploadBatch must be safe to call from a background goroutine. A nil return
// means the batch was delivered. Failures that must not be retried are
// wrapped with Permanent; everything else is treated as transient.
type Uploader interface {
	UploadBatch(ctx context.Context, batch Batch) error
}

// Result is the outcome of one Retrier.Upload call, covering every chunk the
// input was split into.
type Result struct {
	// Success is true when every record was delivered.
	Success bool

	// FailureReason describes the last failure when Success is false.
	FailureReason string

	// Attempts is the total number of uploader calls made, across all
	// chunks and retries.
	Attempts int

	// DeliveredRecords and DroppedRecords partition the input records.
	DeliveredRecords int
	DroppedRecords   int
}

// permanentError marks a failure that must not be retried.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the retry policy fails fast instead of backing off.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Permanentf is shorthand for Permanent(fmt.Errorf(...)).
func Permanentf(format string, args ...any) error {
	return Permanent(fmt.Errorf(format, args...))
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
