package collector

import (
	"context"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/testpulse/testpulse/config"
	"github.com/testpulse/testpulse/internal/metrics"
	"github.com/testpulse/testpulse/record"
	"github.com/testpulse/testpulse/uploader"
)

const (
	// overflowFactor caps the buffer at this many full batches. Beyond that
	// the oldest records are evicted rather than blocking the caller.
	overflowFactor = 8

	// maxInflight bounds concurrent background flushes.
	maxInflight = 4
)

// Sink receives full batches from the collector. *uploader.Retrier satisfies
// this; tests substitute an in-memory implementation.
type Sink interface {
	Upload(ctx context.Context, records []record.ExecutionRecord) uploader.Result
}

// Collector accumulates records and flushes them to a Sink when the batch
// size is reached, on a timer tick, or on Drain/Close. Record() is safe for
// concurrent use and never blocks on an upload.
type Collector struct {
	sink          Sink
	batchSize     int
	flushInterval time.Duration
	shutdownGrace time.Duration

	samplingBits atomic.Uint64 // math.Float64bits of the current rate

	mu     sync.Mutex
	buf    []record.ExecutionRecord
	closed bool

	inflight chan struct{}
	wg       sync.WaitGroup
	once     sync.Once

	// draw returns a uniform sample in [0, 1). Injectable for tests.
	draw func() float64
}

// New creates a Collector delivering to sink. Run must be started in a
// goroutine for interval flushes to happen.
func New(cfg config.EngineConfig, sink Sink) *Collector {
	c := &Collector{
		sink:          sink,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		shutdownGrace: cfg.ShutdownGrace,
		buf:           make([]record.ExecutionRecord, 0, cfg.BatchSize),
		inflight:      make(chan struct{}, maxInflight),
		draw:          rand.Float64,
	}
	c.samplingBits.Store(math.Float64bits(cfg.SamplingRate))
	return c
}

// SetSamplingRate replaces the sampling rate. Values outside [0, 1] are
// clamped. Safe to call while records are flowing; used by config hot reload.
func (c *Collector) SetSamplingRate(rate float64) {
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	c.samplingBits.Store(math.Float64bits(rate))
}

func (c *Collector) samplingRate() float64 {
	return math.Float64frombits(c.samplingBits.Load())
}

// Record enqueues one execution record. Records arriving after Close are
// dropped. When the buffer reaches the batch size a background flush is
// started; when it reaches the overflow limit the oldest record is evicted.
func (c *Collector) Record(rec record.ExecutionRecord) {
	if rate := c.samplingRate(); rate < 1 {
		if c.draw() >= rate {
			metrics.RecordsSampledOut.Inc()
			return
		}
	}

	var batch []record.ExecutionRecord

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.buf = append(c.buf, rec)
	metrics.RecordsTotal.Inc()

	if limit := c.batchSize * overflowFactor; len(c.buf) > limit {
		evict := len(c.buf) - limit
		c.buf = append(c.buf[:0], c.buf[evict:]...)
		metrics.RecordsOverflowDropped.Add(float64(evict))
		slog.Warn("collector: buffer overflow, evicted oldest records",
			"evicted", evict, "limit", limit)
	}

	if len(c.buf) >= c.batchSize {
		select {
		case c.inflight <- struct{}{}:
			batch = c.take()
			c.wg.Add(1)
		default:
			// All flush slots busy; the buffer keeps absorbing records
			// until the overflow limit.
		}
	}
	c.mu.Unlock()

	if batch != nil {
		go func() {
			defer c.wg.Done()
			defer func() { <-c.inflight }()
			c.flush(context.Background(), batch)
		}()
	}
}

// Drain synchronously flushes everything currently buffered. An empty buffer
// results in zero sink calls.
func (c *Collector) Drain(ctx context.Context) {
	c.mu.Lock()
	batch := c.take()
	c.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	c.flush(ctx, batch)
}

// take swaps the buffer out. Callers must hold c.mu.
func (c *Collector) take() []record.ExecutionRecord {
	if len(c.buf) == 0 {
		return nil
	}
	batch := c.buf
	c.buf = make([]record.ExecutionRecord, 0, c.batchSize)
	return batch
}

func (c *Collector) flush(ctx context.Context, batch []record.ExecutionRecord) {
	res := c.sink.Upload(ctx, batch)
	if !res.Success {
		metrics.RecordsUploadDropped.Add(float64(res.DroppedRecords))
		slog.Error("collector: batch upload failed",
			"records", len(batch),
			"dropped", res.DroppedRecords,
			"attempts", res.Attempts,
			"reason", res.FailureReason)
	}
}

// Run flushes the buffer every flush interval until ctx is cancelled. It does
// not perform a final flush on exit; Close handles shutdown.
func (c *Collector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Drain(ctx)
		}
	}
}

// Close stops accepting records, waits for in-flight background flushes, and
// performs a final flush of whatever remains. The whole shutdown is bounded
// by the configured grace period; records still unsent when it expires are
// dropped. Close is idempotent.
func (c *Collector) Close(ctx context.Context) {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		graceCtx, cancel := context.WithTimeout(ctx, c.shutdownGrace)
		defer cancel()

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-graceCtx.Done():
			slog.Warn("collector: shutdown grace expired waiting for in-flight flushes")
		}

		c.Drain(graceCtx)
	})
}
