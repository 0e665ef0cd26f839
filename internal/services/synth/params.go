// Package synth generates per-second synthetic prices: GJR-GARCH volatility,
// intraday seasonality and multi-timeframe reversion bands with boundary pressure.
// It performs no I/O and keeps no global state; randomness and time are injected.
package synth

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrInvalidParams = errors.New("synth: invalid params")
	ErrInvalidPrice  = errors.New("synth: initial price must be positive")
)

// GARCHParams are the GJR-GARCH(1,1) coefficients.
type GARCHParams struct {
	Omega float64 // baseline variance
	Alpha float64 // reaction to the previous squared return
	Beta  float64 // persistence
	Gamma float64 // extra weight on negative returns
}

// Range is a closed sampling interval.
type Range struct {
	Min float64
	Max float64
}

// ReversionRanges are the full band widths sampled per timeframe at instrument creation.
type ReversionRanges struct {
	S1 Range
	M1 Range
	M5 Range
	H1 Range
	D1 Range
}

// Params is the immutable model configuration shared by all instruments.
type Params struct {
	GARCH           GARCHParams
	Reversion       ReversionRanges
	VarianceFloor   float64 // applied inside the sqrt only
	InitialVariance float64
	DriftFactor     float64 // boundary drift as a fraction of seasonal volatility
}

// DefaultParams returns the production model constants.
func DefaultParams() Params {
	return Params{
		GARCH: GARCHParams{Omega: 1e-7, Alpha: 0.06, Beta: 0.88, Gamma: 0.06},
		Reversion: ReversionRanges{
			S1: Range{Min: 0.001, Max: 0.02},
			M1: Range{Min: 0.002, Max: 0.05},
			M5: Range{Min: 0.005, Max: 0.07},
			H1: Range{Min: 0.01, Max: 0.10},
			D1: Range{Min: 0.10, Max: 0.10},
		},
		VarianceFloor:   1e-9,
		InitialVariance: 1e-5,
		DriftFactor:     0.1,
	}
}

// Validate rejects configurations that would break the tick invariants.
func (p Params) Validate() error {
	g := p.GARCH
	if !finite(g.Omega) || g.Omega <= 0 {
		return fmt.Errorf("%w: garch omega must be > 0, got %v", ErrInvalidParams, g.Omega)
	}
	for name, v := range map[string]float64{"alpha": g.Alpha, "beta": g.Beta, "gamma": g.Gamma} {
		if !finite(v) || v < 0 {
			return fmt.Errorf("%w: garch %s must be >= 0, got %v", ErrInvalidParams, name, v)
		}
	}

	ranges := []struct {
		name string
		r    Range
	}{
		{"s1", p.Reversion.S1},
		{"m1", p.Reversion.M1},
		{"m5", p.Reversion.M5},
		{"h1", p.Reversion.H1},
		{"d1", p.Reversion.D1},
	}
	for _, rr := range ranges {
		// strength = width/2 must stay inside (0,1)
		if !finite(rr.r.Min) || !finite(rr.r.Max) || rr.r.Min <= 0 || rr.r.Max >= 2 {
			return fmt.Errorf("%w: reversion %s must lie in (0,2), got (%v,%v)", ErrInvalidParams, rr.name, rr.r.Min, rr.r.Max)
		}
		if rr.r.Min > rr.r.Max {
			return fmt.Errorf("%w: reversion %s min > max (%v > %v)", ErrInvalidParams, rr.name, rr.r.Min, rr.r.Max)
		}
	}

	if !finite(p.VarianceFloor) || p.VarianceFloor <= 0 {
		return fmt.Errorf("%w: variance floor must be > 0", ErrInvalidParams)
	}
	if !finite(p.InitialVariance) || p.InitialVariance < 0 {
		return fmt.Errorf("%w: initial variance must be >= 0", ErrInvalidParams)
	}
	if !finite(p.DriftFactor) || p.DriftFactor < 0 {
		return fmt.Errorf("%w: drift factor must be >= 0", ErrInvalidParams)
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
