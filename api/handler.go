package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/testpulse/testpulse/alerts"
	"github.com/testpulse/testpulse/config"
	"github.com/testpulse/testpulse/engine"
	"github.com/testpulse/testpulse/record"
	"github.com/testpulse/testpulse/scoring"
)

// degradedScoreThreshold marks a defined score as low in health rollups.
const degradedScoreThreshold = 0.5

// Handler is the HTTP handler for all /api/v1/* endpoints plus /metrics.
// It reads confidence state from the engine and returns JSON responses.
type Handler struct {
	eng    *engine.Engine
	alerts *alerts.Engine
	mux    *http.ServeMux
}

// New creates a Handler wired to the given engine and alert engine and
// registers all routes. Auth, when configured, wraps the /api/v1 routes;
// /metrics stays open for scrapers.
func New(eng *engine.Engine, al *alerts.Engine, auth config.ServerAuthConfig) http.Handler {
	h := &Handler{eng: eng, alerts: al, mux: http.NewServeMux()}

	guard := apiKeyMiddleware(auth)
	h.mux.Handle("/api/v1/health", guard(http.HandlerFunc(h.health)))
	h.mux.Handle("/api/v1/tests", guard(http.HandlerFunc(h.listTests)))
	h.mux.Handle("/api/v1/tests/", guard(http.HandlerFunc(h.getTest))) // subtree — extracts {fingerprint}
	h.mux.Handle("/api/v1/alerts", guard(http.HandlerFunc(h.listAlerts)))
	h.mux.Handle("/api/v1/executions", guard(http.HandlerFunc(h.ingest)))
	h.mux.Handle("/metrics", promhttp.Handler())

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health — confidence rollups across all tests.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	results := h.eng.ListConfidence()
	resp := HealthResponse{
		Status:       "ok",
		TrackedTests: h.eng.TrackedTests(),
		ScoredTests:  len(results),
	}
	if h.alerts != nil {
		resp.AlertCount = len(h.alerts.Active())
	}

	var total float64
	defined := 0
	for _, res := range results {
		if !res.Defined {
			continue
		}
		defined++
		total += res.Score
		if res.Score < degradedScoreThreshold {
			resp.LowCount++
		}
		if res.Trend == scoring.TrendMinorDegradation || res.Trend == scoring.TrendSignificantDegradation {
			resp.DegradedCount++
		}
	}
	if defined > 0 {
		resp.AverageScore = total / float64(defined)
	}
	jsonResp(w, http.StatusOK, resp)
}

// listTests returns GET /api/v1/tests — every scored test.
func (h *Handler) listTests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	results := h.eng.ListConfidence()
	out := make([]TestResponse, 0, len(results))
	for _, res := range results {
		out = append(out, ToTest(res))
	}
	jsonResp(w, http.StatusOK, out)
}

// getTest returns GET /api/v1/tests/{fingerprint} — one test's confidence.
func (h *Handler) getTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	fp := strings.TrimPrefix(r.URL.Path, "/api/v1/tests/")
	if fp == "" {
		h.listTests(w, r)
		return
	}

	res := h.eng.GetConfidence(fp)
	if res == nil {
		jsonErr(w, http.StatusNotFound, "test not found")
		return
	}
	jsonResp(w, http.StatusOK, ToTest(res))
}

// listAlerts returns GET /api/v1/alerts — firing plus recently resolved alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.alerts == nil {
		jsonResp(w, http.StatusOK, []struct{}{})
		return
	}
	jsonResp(w, http.StatusOK, h.alerts.Active())
}

// ingest accepts POST /api/v1/executions — one execution record per request.
// Failure text is hashed server-side so raw messages never reach storage.
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}

	rec, err := toRecord(&req)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.eng.RecordExecution(*rec); err != nil {
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	jsonResp(w, http.StatusAccepted, IngestResponse{
		ExecutionID: rec.ExecutionID,
		Fingerprint: rec.Identity.Fingerprint,
	})
}

// --- converters -------------------------------------------------------------

// BuildSnapshot assembles the full confidence picture from the engine.
// The WebSocket hub broadcasts this on every tick.
func BuildSnapshot(eng *engine.Engine) SnapshotResponse {
	results := eng.ListConfidence()
	tests := make([]TestResponse, 0, len(results))
	for _, res := range results {
		tests = append(tests, ToTest(res))
	}
	return SnapshotResponse{
		Tests:       tests,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// ToTest converts a single confidence result into its wire representation.
// The WebSocket hub uses it for per-test update events.
func ToTest(res *scoring.Result) TestResponse {
	return TestResponse{
		Fingerprint:    res.Fingerprint,
		Defined:        res.Defined,
		Score:          res.Score,
		Level:          string(res.Level),
		Trend:          string(res.Trend),
		Factors:        res.Factors,
		RunCount:       res.RunCount,
		RunsUntilScore: res.RunsUntilScore,
		ComputedAt:     res.ComputedAt.UTC().Format(time.RFC3339),
	}
}

func toRecord(req *IngestRequest) (*record.ExecutionRecord, error) {
	if req.FullName == "" {
		return nil, errors.New("full_name is required")
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		return nil, err
	}

	attempt := req.Attempt
	if attempt == 0 {
		attempt = 1
	}

	rec := &record.ExecutionRecord{
		ExecutionID:    record.NewExecutionID(),
		Identity:       record.NewIdentity(req.FullName, req.ParameterSignature),
		Outcome:        record.Outcome(req.Outcome),
		StartTime:      start,
		Duration:       time.Duration(req.DurationMs) * time.Millisecond,
		EnvironmentKey: req.EnvironmentKey,
		Retry: record.RetryMetadata{
			Attempt:       attempt,
			MaxAttempts:   req.MaxAttempts,
			PassedOnRetry: req.PassedOnRetry,
		},
	}
	if req.Failure != nil {
		rec.Failure = &record.FailureDetail{
			ExceptionKind: req.Failure.ExceptionKind,
			MessageHash:   record.HashText(req.Failure.Message),
			StackHash:     record.HashText(req.Failure.StackTrace),
			Transient:     req.Failure.Transient,
		}
	}
	return rec, nil
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
