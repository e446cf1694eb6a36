package alerts

import (
	"strconv"
	"strings"

	"github.com/testpulse/testpulse/scoring"
)

// evalCondition evaluates a rule condition string against a confidence result.
//
// Supported expressions (field operator value):
//
//	score < 0.5
//	score <= 0.75
//	pass_rate < 0.9
//	retry_behavior < 0.5
//	run_count > 100
//	level == high
//	trend == significant_degradation
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed, the field is
// unknown, or the result carries no defined score yet.
func evalCondition(cond string, res *scoring.Result) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	switch field {
	case "level":
		if op == "==" {
			return string(res.Level) == rhs, 0
		}
		return false, 0

	case "trend":
		if op == "==" {
			return string(res.Trend) == rhs, 0
		}
		return false, 0

	default:
		if !res.Defined {
			return false, 0
		}
		v, ok := numericField(field, res)
		if !ok {
			return false, 0
		}
		threshold, err := strconv.ParseFloat(rhs, 64)
		if err != nil {
			return false, 0
		}
		return compareFloat(v, op, threshold), v
	}
}

// numericField maps a field name to its value in the result.
func numericField(field string, res *scoring.Result) (float64, bool) {
	switch field {
	case "score":
		return res.Score, true
	case "run_count":
		return float64(res.RunCount), true
	case "pass_rate":
		return res.Factors.PassRate, true
	case "stability":
		return res.Factors.Stability, true
	case "retry_behavior":
		return res.Factors.RetryBehavior, true
	case "environment_consistency":
		return res.Factors.EnvironmentConsistency, true
	case "failure_pattern":
		return res.Factors.FailurePattern, true
	case "dependency_impact":
		return res.Factors.DependencyImpact, true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}
