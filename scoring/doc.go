// Package scoring turns a test's history window into a confidence Result.
//
// score.go provides the pure Compute function that calculates the weighted
// six-factor confidence score in [0,1]: historical pass rate (35%), execution
// stability (20%), retry behavior (15%), environment consistency (15%),
// failure pattern analysis (10%) and dependency impact (5%). Every factor is
// clamped to [0,1] before weighting and the final score is clamped again.
//
// A window below the minimum run count yields an undefined score (Defined ==
// false) with a runs-until-score hint — insufficient data is a normal state,
// not an error. Confidence levels come from the run count alone: NoData <10,
// Low 10–24, Medium 25–49, High 50–99, VeryHigh ≥100.
//
// Windows larger than the recent-window size are scored twice — most recent
// runs versus the whole window — and blended 0.7/0.3 so fresh behavior
// dominates. TrendBetween classifies score movement against the previous
// result (±0.05 stable band, ±0.10 significant).
//
// Every statistic is an order-independent aggregate over the window's
// multiset of runs, so concurrent producers need no total append order.
package scoring
