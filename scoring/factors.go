package scoring

import (
	"math"

	"github.com/testpulse/testpulse/record"
)

// passRateFactor maps the window's pass rate into [0,1]. Rates in [0.80,1.00]
// map linearly onto [0.75,1.00]; below 0.80 the penalty steepens
// quadratically toward 0: 0.75·(p/0.80)². The curve is monotonic and
// continuous at the 0.80 knee.
func passRateFactor(window []record.RunSummary) float64 {
	var passed int
	for _, s := range window {
		if s.Passed() {
			passed++
		}
	}
	p := float64(passed) / float64(len(window))
	if p >= 0.80 {
		return clamp01(0.75 + (p-0.80)/0.20*0.25)
	}
	r := p / 0.80
	return clamp01(0.75 * r * r)
}

// stabilityFactor is 1 minus the normalized duration variance: the squared
// coefficient of variation (variance over squared mean), clipped to [0,1].
// Perfectly uniform durations score 1.
func stabilityFactor(window []record.RunSummary) float64 {
	n := float64(len(window))
	var sum float64
	for _, s := range window {
		sum += s.Duration.Seconds()
	}
	mean := sum / n
	if mean <= 0 {
		return 1
	}

	var variance float64
	for _, s := range window {
		d := s.Duration.Seconds() - mean
		variance += d * d
	}
	variance /= n

	return clamp01(1 - clamp01(variance/(mean*mean)))
}

// retryFactor is 1 − retryRate with an extra penalty for runs that only
// passed after a retry — those hide flakiness behind framework retries.
func retryFactor(window []record.RunSummary) float64 {
	var retried, passedOnRetry int
	for _, s := range window {
		if s.Retry.Retried() || s.Retry.PassedOnRetry {
			retried++
		}
		if s.Retry.PassedOnRetry {
			passedOnRetry++
		}
	}
	n := float64(len(window))
	retryRate := float64(retried) / n
	passedOnRetryRate := float64(passedOnRetry) / n
	return clamp01(1 - retryRate - 0.5*passedOnRetryRate)
}

// envConsistencyFactor is 1 minus the spread between the best and worst
// per-environment pass rates, over environments with at least minEnvRuns
// runs. With fewer than two qualifying environments there is nothing to
// compare and the factor is neutral.
func envConsistencyFactor(window []record.RunSummary) float64 {
	type tally struct{ passed, total int }
	envs := make(map[string]*tally)
	for _, s := range window {
		t, ok := envs[s.EnvironmentKey]
		if !ok {
			t = &tally{}
			envs[s.EnvironmentKey] = t
		}
		t.total++
		if s.Passed() {
			t.passed++
		}
	}

	minRate, maxRate := math.Inf(1), math.Inf(-1)
	qualifying := 0
	for _, t := range envs {
		if t.total < minEnvRuns {
			continue
		}
		qualifying++
		rate := float64(t.passed) / float64(t.total)
		minRate = math.Min(minRate, rate)
		maxRate = math.Max(maxRate, rate)
	}
	if qualifying < 2 {
		return neutralFactor
	}
	return clamp01(1 - (maxRate - minRate))
}

// failurePatternFactor clusters failing runs by (exception kind, stack hash)
// and scores by cluster shape: a single cluster is the "consistently broken"
// signature and earns no credit, 2–3 clusters earn partial credit, more earn
// minimal credit. The penalty is applied in proportion to the failing share
// of the window, so a handful of failures in an otherwise green window does
// not read as broken; a window that fails throughout with one signature
// scores exactly 0.
func failurePatternFactor(window []record.RunSummary) float64 {
	type clusterKey struct{ kind, stack string }
	clusters := make(map[clusterKey]int)
	var failures int
	for _, s := range window {
		if !s.Failed() {
			continue
		}
		failures++
		clusters[clusterKey{s.Failure.ExceptionKind, s.Failure.StackHash}]++
	}
	if failures == 0 {
		return 1
	}

	var base float64
	switch {
	case len(clusters) == 1:
		base = 0
	case len(clusters) <= 3:
		base = 0.6
	default:
		base = 0.2
	}

	failShare := float64(failures) / float64(len(window))
	return clamp01(1 - failShare*(1-base))
}

// dependencyFactor compares pass rates between runs that executed alone and
// runs that executed alongside other tests. A large gap suggests the test's
// failures track its neighbours rather than its own code. Without enough
// execution-context evidence on both sides the factor is neutral.
func dependencyFactor(window []record.RunSummary) float64 {
	var soloPassed, soloTotal, concPassed, concTotal int
	for _, s := range window {
		if !s.Context.Available() || s.Context.ConcurrentRunCount <= 0 {
			continue
		}
		if s.Context.ConcurrentRunCount > 1 {
			concTotal++
			if s.Passed() {
				concPassed++
			}
		} else {
			soloTotal++
			if s.Passed() {
				soloPassed++
			}
		}
	}
	if soloTotal < minContextRuns || concTotal < minContextRuns {
		return neutralFactor
	}
	soloRate := float64(soloPassed) / float64(soloTotal)
	concRate := float64(concPassed) / float64(concTotal)
	return clamp01(1 - math.Abs(soloRate-concRate))
}
