package synth

import (
	"fmt"
	"math"
	"time"

	"SynthFeed/internal/domain/models"
)

// TickInfo exposes the intermediate values of one tick.
type TickInfo struct {
	Sigma       float64
	SeasonalVol float64
	Shock       float64
	Boundary    Boundary
	Inverted    bool
	Reset       AnchorReset
}

// Simulator advances instrument states one second at a time.
// It is stateless between calls and safe for concurrent use on distinct states.
type Simulator struct {
	params Params
	vol    VolatilityModel
}

func NewSimulator(p Params) (*Simulator, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Simulator{
		params: p,
		vol:    NewVolatilityModel(p.GARCH, p.VarianceFloor),
	}, nil
}

// Params returns the model configuration.
func (s *Simulator) Params() Params { return s.params }

// NewState creates a fresh instrument at price. Each reversion strength is half of
// a width sampled uniformly from its configured range, in s1, m1, m5, h1, d1 order.
func (s *Simulator) NewState(price float64, rng Random) (*models.SimulationState, error) {
	if !(price > 0) || math.IsInf(price, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrice, price)
	}
	sample := func(r Range) float64 {
		return (r.Min + rng.Float64()*(r.Max-r.Min)) / 2
	}
	rv := s.params.Reversion
	return &models.SimulationState{
		Price: price,
		Anchors: models.Anchors{
			D1Open: price,
			H1Open: price,
			M5Open: price,
			M1Open: price,
		},
		ReversionStrength: models.ReversionStrength{
			S1: sample(rv.S1),
			M1: sample(rv.M1),
			M5: sample(rv.M5),
			H1: sample(rv.H1),
			D1: sample(rv.D1),
		},
		GarchVariance: s.params.InitialVariance,
		BoundaryTrend: models.TrendNeutral,
	}, nil
}

// Tick advances st by one second at wall-clock time now and returns the emitted bar.
func (s *Simulator) Tick(st *models.SimulationState, now time.Time, rng Random) (models.Bar, TickInfo) {
	now = now.UTC()
	var info TickInfo

	info.Reset = UpdateAnchors(&st.Anchors, st.Price, now)

	minuteOfDay := now.Hour()*60 + now.Minute()
	sigma, variance := s.vol.Next(st.PrevReturn, st.GarchVariance)
	st.GarchVariance = variance
	info.Sigma = sigma
	info.SeasonalVol = sigma * UShapeFactor(minuteOfDay)

	info.Boundary, info.Inverted = EffectiveBoundary(Bands(st.Price, st.Anchors, st.ReversionStrength))

	info.Shock = rng.NormFloat64()
	baseReturn := info.Shock * info.SeasonalVol
	drift := float64(st.BoundaryTrend) * info.SeasonalVol * s.params.DriftFactor

	open := st.Price
	candidate := open * math.Exp(baseReturn+drift)

	c, trend := Enforce(candidate, info.Boundary, st.BoundaryTrend)
	st.Price = c
	st.BoundaryTrend = trend
	if open != 0 {
		st.PrevReturn = math.Log(c / open)
	} else {
		st.PrevReturn = 0
	}

	return models.NewBar(now.UnixMilli(), open, c), info
}
