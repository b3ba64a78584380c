package revenue

import "math"

// Money returns a pointer to v, for populating optional order fields.
func Money(v float64) *float64 {
	return &v
}

// firstPresent walks candidates in priority order and returns the first one set.
func firstPresent(candidates ...*float64) (float64, bool) {
	for _, c := range candidates {
		if c != nil {
			return *c, true
		}
	}
	return 0, false
}

func floor0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// moneyEpsilon absorbs binary representation error in cent-level comparisons.
const moneyEpsilon = 1e-9

// withinTolerance reports whether a and b differ by at most tolerance.
func withinTolerance(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance+moneyEpsilon
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finitePtr(v *float64) bool {
	return v == nil || finite(*v)
}
