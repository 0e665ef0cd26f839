package models

// Trend is the boundary pressure remembered after a clamp.
type Trend int

const (
	TrendDown    Trend = -1 // price was clamped at the upper bound
	TrendNeutral Trend = 0
	TrendUp      Trend = 1 // price was clamped at the lower bound
)

// Valid reports whether t is one of the three known states.
func (t Trend) Valid() bool {
	return t == TrendDown || t == TrendNeutral || t == TrendUp
}

func (t Trend) String() string {
	switch t {
	case TrendDown:
		return "down"
	case TrendUp:
		return "up"
	case TrendNeutral:
		return "neutral"
	default:
		return "invalid"
	}
}

// Anchors hold the opening price of each stored timeframe. The 1-second
// anchor is always the price entering the tick and is not stored.
type Anchors struct {
	D1Open float64
	H1Open float64
	M5Open float64
	M1Open float64
}

// ReversionStrength is the half-width of each timeframe band, as a fraction of its anchor.
type ReversionStrength struct {
	S1 float64
	M1 float64
	M5 float64
	H1 float64
	D1 float64
}

// SimulationState is the full per-instrument simulation state. It is owned by a
// single instrument loop and mutated once per tick.
type SimulationState struct {
	Price             float64
	Anchors           Anchors
	ReversionStrength ReversionStrength
	GarchVariance     float64
	PrevReturn        float64
	BoundaryTrend     Trend
}

// Clone returns an independent copy.
func (s *SimulationState) Clone() *SimulationState {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
