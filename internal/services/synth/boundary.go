package synth

import "SynthFeed/internal/domain/models"

// Enforce clamps candidate into b and returns the next boundary trend.
//
//	candidate >= upper        -> close = upper, TrendDown
//	candidate <= lower        -> close = lower, TrendUp
//	trend back past the mid   -> TrendNeutral
//	otherwise                 -> unchanged
func Enforce(candidate float64, b Boundary, trend models.Trend) (float64, models.Trend) {
	switch {
	case candidate >= b.Upper:
		return b.Upper, models.TrendDown
	case candidate <= b.Lower:
		return b.Lower, models.TrendUp
	case trend != models.TrendNeutral:
		mid := b.Mid()
		if (trend == models.TrendDown && candidate < mid) || (trend == models.TrendUp && candidate > mid) {
			return candidate, models.TrendNeutral
		}
	}
	return candidate, trend
}
