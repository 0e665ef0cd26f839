package synth

import "math"

const minutesPerDay = 1440

// UShapeFactor scales volatility by time of day: 0.75 + 0.5*cos²(2π·m/1440).
// The result always lies in [0.75, 1.25].
func UShapeFactor(minuteOfDay int) float64 {
	c := math.Cos(2 * math.Pi * float64(minuteOfDay) / minutesPerDay)
	return 0.75 + 0.5*c*c
}
