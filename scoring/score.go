package scoring

import (
	"time"

	"github.com/testpulse/testpulse/record"
)

// Weight constants for the confidence score formula.
// They must sum to 1.0.
const (
	weightPassRate   = 0.35
	weightStability  = 0.20
	weightRetry      = 0.15
	weightEnv        = 0.15
	weightFailure    = 0.10
	weightDependency = 0.05
)

// recentBlend is the weight of the most-recent-window score when a window
// exceeds the recent size; the remainder goes to the all-time score.
const recentBlend = 0.7

// neutralFactor is the midpoint used when a factor has no evidence to work
// with (single environment, no execution-context data).
const neutralFactor = 0.5

// minEnvRuns is the per-environment run count required before an environment
// participates in the consistency comparison.
const minEnvRuns = 5

// minContextRuns is the per-group run count required before the dependency
// factor compares solo and concurrent pass rates.
const minContextRuns = 3

// Provisional seed scores for a test seen exactly once. Kept engine-internal;
// a one-run test is still reported as NoData externally.
const (
	SeedPassed = 0.75
	SeedFailed = 0.50
)

// Level is the categorical indicator of how much evidence backs a score.
type Level string

const (
	LevelNoData   Level = "no_data"
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelVeryHigh Level = "very_high"
)

// Trend classifies score movement against the previous result.
type Trend string

const (
	TrendNew                    Trend = "new"
	TrendSignificantImprovement Trend = "significant_improvement"
	TrendMinorImprovement       Trend = "minor_improvement"
	TrendStable                 Trend = "stable"
	TrendMinorDegradation       Trend = "minor_degradation"
	TrendSignificantDegradation Trend = "significant_degradation"
)

// Params are the scoring knobs resolved from configuration.
type Params struct {
	// MinRuns gates the score: below this count the score is undefined.
	MinRuns int

	// RecentWindow is the most-recent-run slice used for recency weighting.
	RecentWindow int
}

// Factors is the per-factor breakdown included in every defined Result.
// Each value is already clamped to [0,1].
type Factors struct {
	PassRate               float64 `json:"pass_rate"`
	Stability              float64 `json:"stability"`
	RetryBehavior          float64 `json:"retry_behavior"`
	EnvironmentConsistency float64 `json:"environment_consistency"`
	FailurePattern         float64 `json:"failure_pattern"`
	DependencyImpact       float64 `json:"dependency_impact"`
}

// Result is one confidence computation for one test identity. Results are
// value types: every recomputation produces a new instance.
type Result struct {
	Fingerprint string `json:"fingerprint"`

	// Defined reports whether the window met the minimum run count.
	// When false, Score and Factors are zero and RunsUntilScore says how
	// many more runs are needed.
	Defined bool    `json:"defined"`
	Score   float64 `json:"score"`

	Level   Level   `json:"level"`
	Factors Factors `json:"factors"`
	Trend   Trend   `json:"trend"`

	RunCount       int       `json:"run_count"`
	RunsUntilScore int       `json:"runs_until_score,omitempty"`
	ComputedAt     time.Time `json:"computed_at"`
}

// Compute scores the given history window. The window is oldest-to-newest;
// all statistics except the recency split are order-independent.
//
// The returned Result carries TrendNew — callers holding the previous result
// apply TrendBetween themselves.
func Compute(fingerprint string, window []record.RunSummary, p Params, now time.Time) *Result {
	n := len(window)
	res := &Result{
		Fingerprint: fingerprint,
		Level:       levelFor(n),
		Trend:       TrendNew,
		RunCount:    n,
		ComputedAt:  now,
	}

	if n < p.MinRuns {
		res.RunsUntilScore = p.MinRuns - n
		return res
	}

	score, factors := scoreWindow(window)
	if n > p.RecentWindow {
		recentScore, recentFactors := scoreWindow(window[n-p.RecentWindow:])
		score = recentBlend*recentScore + (1-recentBlend)*score
		factors = blendFactors(recentFactors, factors)
	}

	res.Defined = true
	res.Score = clamp01(score)
	res.Factors = factors
	return res
}

// ProvisionalSeed returns the bootstrap score for a test seen exactly once.
func ProvisionalSeed(first record.RunSummary) float64 {
	if first.Passed() {
		return SeedPassed
	}
	return SeedFailed
}

// TrendBetween classifies the movement from prev to cur.
func TrendBetween(prev, cur float64) Trend {
	d := cur - prev
	switch {
	case d >= 0.10:
		return TrendSignificantImprovement
	case d >= 0.05:
		return TrendMinorImprovement
	case d > -0.05:
		return TrendStable
	case d > -0.10:
		return TrendMinorDegradation
	default:
		return TrendSignificantDegradation
	}
}

// levelFor maps a run count to a confidence level, independent of the score.
func levelFor(runs int) Level {
	switch {
	case runs < 10:
		return LevelNoData
	case runs < 25:
		return LevelLow
	case runs < 50:
		return LevelMedium
	case runs < 100:
		return LevelHigh
	default:
		return LevelVeryHigh
	}
}

// scoreWindow computes the weighted six-factor score over one window slice.
func scoreWindow(window []record.RunSummary) (float64, Factors) {
	f := Factors{
		PassRate:               passRateFactor(window),
		Stability:              stabilityFactor(window),
		RetryBehavior:          retryFactor(window),
		EnvironmentConsistency: envConsistencyFactor(window),
		FailurePattern:         failurePatternFactor(window),
		DependencyImpact:       dependencyFactor(window),
	}
	score := f.PassRate*weightPassRate +
		f.Stability*weightStability +
		f.RetryBehavior*weightRetry +
		f.EnvironmentConsistency*weightEnv +
		f.FailurePattern*weightFailure +
		f.DependencyImpact*weightDependency
	return clamp01(score), f
}

func blendFactors(recent, all Factors) Factors {
	b := func(r, a float64) float64 { return recentBlend*r + (1-recentBlend)*a }
	return Factors{
		PassRate:               b(recent.PassRate, all.PassRate),
		Stability:              b(recent.Stability, all.Stability),
		RetryBehavior:          b(recent.RetryBehavior, all.RetryBehavior),
		EnvironmentConsistency: b(recent.EnvironmentConsistency, all.EnvironmentConsistency),
		FailurePattern:         b(recent.FailurePattern, all.FailurePattern),
		DependencyImpact:       b(recent.DependencyImpact, all.DependencyImpact),
	}
}

// clamp01 restricts v to the range [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
