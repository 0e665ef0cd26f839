package synth

import "math"

// VolatilityModel is a GJR-GARCH(1,1) recursion.
type VolatilityModel struct {
	garch GARCHParams
	floor float64
}

func NewVolatilityModel(g GARCHParams, floor float64) VolatilityModel {
	return VolatilityModel{garch: g, floor: floor}
}

// Next returns the volatility for this tick and the variance to carry into the next one.
// The returned variance is not floored; only the sigma is.
func (m VolatilityModel) Next(prevReturn, prevVariance float64) (sigma, newVariance float64) {
	r2 := prevReturn * prevReturn
	leverage := 0.0
	if prevReturn < 0 {
		leverage = m.garch.Gamma * r2
	}
	newVariance = m.garch.Omega + m.garch.Alpha*r2 + leverage + m.garch.Beta*prevVariance
	sigma = math.Sqrt(math.Max(m.floor, newVariance))
	return sigma, newVariance
}
