package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/testpulse/testpulse/collector"
	"github.com/testpulse/testpulse/config"
	"github.com/testpulse/testpulse/history"
	"github.com/testpulse/testpulse/internal/metrics"
	"github.com/testpulse/testpulse/record"
	"github.com/testpulse/testpulse/scoring"
)

// historyBuffer bounds the queue between RecordExecution and the scoring
// worker. When full, the oldest entry is evicted so producers never block.
const historyBuffer = 1024

// item is one run summary queued for history and scoring.
type item struct {
	fingerprint string
	sum         record.RunSummary
}

// Engine is the embeddable telemetry front door. It accepts execution
// records, batches them for upload, and maintains per-test confidence
// scores. All methods are safe for concurrent use.
type Engine struct {
	cfg     config.EngineConfig
	col     *collector.Collector
	hist    *history.Store
	results *resultStore
	params  scoring.Params

	seedMu sync.Mutex
	seeds  map[string]float64

	queue chan item

	mu     sync.Mutex
	closed bool

	wg   sync.WaitGroup
	once sync.Once

	// notify, when set before Run, is called with every freshly stored
	// result. Used to fan scores out to websocket clients.
	notify func(*scoring.Result)

	now func() time.Time // injectable for deterministic tests
}

// New creates an Engine delivering upload batches to sink. Run must be
// started for interval flushes and score recomputation to happen.
func New(cfg config.EngineConfig, sink collector.Sink) *Engine {
	e := &Engine{
		cfg:     cfg,
		col:     collector.New(cfg, sink),
		hist:    history.New(cfg.HistoryCapacity),
		results: newResultStore(),
		params: scoring.Params{
			MinRuns:      cfg.MinRunsForScore,
			RecentWindow: cfg.RecentWindowSize,
		},
		seeds: make(map[string]float64),
		queue: make(chan item, historyBuffer),
		now:   time.Now,
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.scoreLoop()
	}()
	return e
}

// SetNotify registers a callback invoked with every newly computed result.
// Must be called before Run.
func (e *Engine) SetNotify(fn func(*scoring.Result)) { e.notify = fn }

// SetSamplingRate adjusts the upload sampling rate at runtime. History and
// scoring always see every record regardless of the rate.
func (e *Engine) SetSamplingRate(rate float64) { e.col.SetSamplingRate(rate) }

// RecordExecution validates and ingests one execution record. Invalid
// records are rejected and counted; valid ones are queued for upload and
// folded into the test's history.
func (e *Engine) RecordExecution(rec record.ExecutionRecord) error {
	if err := rec.Validate(); err != nil {
		metrics.RecordsMalformed.Inc()
		return fmt.Errorf("engine: rejecting record: %w", err)
	}
	if rec.ExecutionID == "" {
		rec.ExecutionID = record.NewExecutionID()
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return fmt.Errorf("engine: closed")
	}
	e.col.Record(rec)
	e.enqueue(item{fingerprint: rec.Identity.Fingerprint, sum: rec.Summary()})
	e.mu.Unlock()
	return nil
}

// enqueue adds one item to the scoring queue. If the queue is full the
// oldest entry is evicted to make room; ingestion never blocks on scoring.
func (e *Engine) enqueue(it item) {
	select {
	case e.queue <- it:
	default:
		select {
		case <-e.queue:
			metrics.HistoryDropped.Inc()
			slog.Warn("engine: scoring queue full, evicted oldest run",
				"queue_cap", cap(e.queue))
		default:
		}
		e.queue <- it
	}
}

// Run drives interval flushes of the upload buffer, blocking until ctx is
// cancelled. The scoring worker runs from construction and is unaffected.
// Call Close afterwards to flush what remains.
func (e *Engine) Run(ctx context.Context) {
	e.col.Run(ctx)
}

// scoreLoop folds queued runs into history and recomputes scores. It exits
// when the queue is closed and fully drained.
func (e *Engine) scoreLoop() {
	for it := range e.queue {
		e.absorb(it)
	}
}

// absorb applies one run to history and recomputes the score when due:
// at the minimum-runs gate and every RecomputeEvery runs after it.
func (e *Engine) absorb(it item) {
	count := e.hist.Append(it.fingerprint, it.sum)

	if count == 1 {
		e.seedMu.Lock()
		e.seeds[it.fingerprint] = scoring.ProvisionalSeed(it.sum)
		e.seedMu.Unlock()
	}

	min := uint64(e.cfg.MinRunsForScore)
	if count < min {
		return
	}
	if count > min && (count-min)%uint64(e.cfg.RecomputeEvery) != 0 {
		return
	}
	e.recompute(it.fingerprint)
}

// recompute scores the current history window and stores the result with a
// trend relative to the previous defined score, or the provisional seed when
// this is the first defined score.
func (e *Engine) recompute(fingerprint string) {
	window, ok := e.hist.Snapshot(fingerprint)
	if !ok {
		return
	}

	res := scoring.Compute(fingerprint, window, e.params, e.now())
	if res.Defined {
		if prev, found := e.results.Get(fingerprint); found && prev.Defined {
			res.Trend = scoring.TrendBetween(prev.Score, res.Score)
		} else if seed, found := e.seed(fingerprint); found {
			res.Trend = scoring.TrendBetween(seed, res.Score)
		}
	}

	e.results.Put(res)
	metrics.ScoresComputed.Inc()

	if e.notify != nil {
		e.notify(res)
	}
}

func (e *Engine) seed(fingerprint string) (float64, bool) {
	e.seedMu.Lock()
	defer e.seedMu.Unlock()
	s, ok := e.seeds[fingerprint]
	return s, ok
}

// GetConfidence returns the current confidence for a fingerprint. Tests
// below the minimum run count get an undefined result stating how many more
// runs are needed. Unknown fingerprints return nil.
func (e *Engine) GetConfidence(fingerprint string) *scoring.Result {
	if res, ok := e.results.Get(fingerprint); ok {
		return res
	}

	// No stored result yet: the test is either unknown or still below the
	// scoring gate. Compute from history so callers see the gate status.
	window, ok := e.hist.Snapshot(fingerprint)
	if !ok {
		return nil
	}
	return scoring.Compute(fingerprint, window, e.params, e.now())
}

// ListConfidence returns the latest stored result for every scored test,
// ordered by fingerprint.
func (e *Engine) ListConfidence() []*scoring.Result { return e.results.List() }

// TrackedTests returns how many distinct test identities have history.
func (e *Engine) TrackedTests() int { return e.hist.Count() }

// Runs returns how many runs are currently in a test's history window.
func (e *Engine) Runs(fingerprint string) int { return e.hist.Len(fingerprint) }

// Drain synchronously uploads everything currently buffered.
func (e *Engine) Drain(ctx context.Context) { e.col.Drain(ctx) }

// Close stops ingestion, lets the scoring worker drain its queue, and
// flushes buffered records within the configured grace period. Idempotent.
func (e *Engine) Close(ctx context.Context) {
	e.once.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		close(e.queue)
		e.wg.Wait()

		e.col.Close(ctx)
	})
}
