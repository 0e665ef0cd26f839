package synth

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SynthFeed/internal/domain/models"
	"SynthFeed/internal/domain/repository"
)

func newTestSimulator(t *testing.T) *Simulator {
	t.Helper()
	s, err := NewSimulator(DefaultParams())
	require.NoError(t, err)
	return s
}

func flatState(price float64) *models.SimulationState {
	return &models.SimulationState{
		Price:             price,
		Anchors:           models.Anchors{D1Open: price, H1Open: price, M5Open: price, M1Open: price},
		ReversionStrength: testStrength,
		GarchVariance:     1e-5,
		BoundaryTrend:     models.TrendNeutral,
	}
}

var midnight = time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

func TestNewState(t *testing.T) {
	s := newTestSimulator(t)
	rng := &scriptedRandom{uniforms: []float64{0.5, 0, 0.999, 0.5, 0.5}}

	st, err := s.NewState(123.45, rng)
	require.NoError(t, err)

	assert.Equal(t, 123.45, st.Price)
	assert.Equal(t, models.Anchors{D1Open: 123.45, H1Open: 123.45, M5Open: 123.45, M1Open: 123.45}, st.Anchors)
	assert.Equal(t, 1e-5, st.GarchVariance)
	assert.Equal(t, 0.0, st.PrevReturn)
	assert.Equal(t, models.TrendNeutral, st.BoundaryTrend)

	assert.InDelta(t, (0.001+0.5*0.019)/2, st.ReversionStrength.S1, 1e-15)
	assert.InDelta(t, 0.001, st.ReversionStrength.M1, 1e-15)
	assert.InDelta(t, (0.005+0.999*0.065)/2, st.ReversionStrength.M5, 1e-15)
	assert.InDelta(t, 0.0275, st.ReversionStrength.H1, 1e-15)
	assert.InDelta(t, 0.05, st.ReversionStrength.D1, 1e-15)
}

func TestNewStateRejectsBadPrice(t *testing.T) {
	s := newTestSimulator(t)
	for _, p := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := s.NewState(p, &scriptedRandom{})
		assert.ErrorIs(t, err, ErrInvalidPrice, "price %v", p)
	}
}

func TestTickZeroShockKeepsPrice(t *testing.T) {
	s := newTestSimulator(t)
	st := flatState(100)

	bar, info := s.Tick(st, midnight, &scriptedRandom{normals: []float64{0}})

	assert.Equal(t, models.Bar{Timestamp: midnight.UnixMilli(), Open: 100, High: 100, Low: 100, Close: 100}, bar)
	assert.Equal(t, 100.0, st.Price)
	assert.Equal(t, models.TrendNeutral, st.BoundaryTrend)
	assert.Equal(t, 0.0, st.PrevReturn)
	assert.Equal(t, ResetM1|ResetM5|ResetH1|ResetD1, info.Reset)
	assert.InDelta(t, 1e-7+0.88*1e-5, st.GarchVariance, 1e-18)
	assert.InDelta(t, info.Sigma*1.25, info.SeasonalVol, 1e-15)
}

func TestTickClampsAtUpperAndReverts(t *testing.T) {
	s := newTestSimulator(t)
	st := flatState(100)

	bar, info := s.Tick(st, midnight, &scriptedRandom{normals: []float64{10}})

	assert.Equal(t, info.Boundary.Upper, st.Price)
	assert.Equal(t, models.TrendDown, st.BoundaryTrend)
	assert.Equal(t, 101.0, bar.Close)
	assert.Equal(t, 101.0, bar.High)
	assert.Equal(t, 100.0, bar.Low)
	assert.InDelta(t, math.Log(1.01), st.PrevReturn, 1e-12)

	// downward drift alone takes the candidate below the new midpoint (101)
	next := st.Clone()
	_, info = s.Tick(next, midnight.Add(time.Second), &scriptedRandom{normals: []float64{0}})
	assert.InDelta(t, 101, info.Boundary.Mid(), 1e-9)
	assert.Less(t, next.Price, 101.0)
	assert.Greater(t, next.Price, 100.9)
	assert.Equal(t, models.TrendNeutral, next.BoundaryTrend)

	// a moderate up shock keeps it above the midpoint and pressure persists
	next = st.Clone()
	_, _ = s.Tick(next, midnight.Add(time.Second), &scriptedRandom{normals: []float64{0.5}})
	assert.Greater(t, next.Price, 101.0)
	assert.Equal(t, models.TrendDown, next.BoundaryTrend)
}

func TestTickClampsAtLower(t *testing.T) {
	s := newTestSimulator(t)
	st := flatState(100)

	bar, info := s.Tick(st, midnight.Add(17*time.Second), &scriptedRandom{normals: []float64{-10}})

	assert.Equal(t, info.Boundary.Lower, st.Price)
	assert.Equal(t, models.TrendUp, st.BoundaryTrend)
	assert.Equal(t, 99.0, bar.Close)
	assert.Equal(t, AnchorReset(0), info.Reset)
}

func TestTickBandInversion(t *testing.T) {
	s := newTestSimulator(t)
	st := flatState(100)
	st.Anchors.M1Open = 120

	bar, info := s.Tick(st, midnight.Add(30*time.Second), &scriptedRandom{normals: []float64{0}})

	require.True(t, info.Inverted)
	assert.InDelta(t, 109, info.Boundary.Lower, 1e-9)
	assert.InDelta(t, 109, st.Price, 1e-9)
	assert.Equal(t, models.TrendUp, st.BoundaryTrend)
	assert.Equal(t, 109.0, bar.Close)
	assert.Equal(t, 100.0, bar.Open)
}

func TestTickDeterministic(t *testing.T) {
	s := newTestSimulator(t)
	a, b := flatState(100), flatState(100)
	ra, rb := NewRandom(7), NewRandom(7)

	now := midnight.Add(-90 * time.Second)
	for i := 0; i < 2000; i++ {
		barA, _ := s.Tick(a, now, ra)
		barB, _ := s.Tick(b, now, rb)
		require.Equal(t, barA, barB)
		now = now.Add(time.Second)
	}
	assert.Equal(t, a, b)
}

func TestTickSnapshotRoundTripContinuesIdentically(t *testing.T) {
	s := newTestSimulator(t)
	st, err := s.NewState(150, NewRandom(1))
	require.NoError(t, err)

	now := midnight.Add(-10 * time.Minute)
	rng := NewRandom(2)
	for i := 0; i < 900; i++ {
		s.Tick(st, now, rng)
		now = now.Add(time.Second)
	}

	raw, err := models.EncodeStateSnapshot(models.NewStateSnapshot("SYN1", st))
	require.NoError(t, err)
	snap, err := models.DecodeStateSnapshot(raw)
	require.NoError(t, err)
	restored, err := snap.State()
	require.NoError(t, err)
	require.Equal(t, st, restored)

	ra, rb := NewRandom(3), NewRandom(3)
	for i := 0; i < 900; i++ {
		barA, _ := s.Tick(st, now, ra)
		barB, _ := s.Tick(restored, now, rb)
		require.Equal(t, barA, barB)
		now = now.Add(time.Second)
	}
}

func TestTickInvariants(t *testing.T) {
	s := newTestSimulator(t)
	st, err := s.NewState(80, NewRandom(11))
	require.NoError(t, err)
	rng := NewRandom(12)

	// crosses a day boundary
	now := time.Date(2024, 3, 10, 23, 50, 0, 0, time.UTC)
	minSigma := math.Sqrt(DefaultParams().VarianceFloor)

	for i := 0; i < 20000; i++ {
		prev := st.Clone()
		bar, info := s.Tick(st, now, rng)

		require.NoError(t, bar.Validate(), "tick %d", i)
		require.Equal(t, now.UnixMilli(), bar.Timestamp)
		require.Greater(t, st.Price, 0.0)
		require.GreaterOrEqual(t, info.Sigma, minSigma)
		require.GreaterOrEqual(t, info.SeasonalVol, 0.75*info.Sigma-1e-15)
		require.LessOrEqual(t, info.SeasonalVol, 1.25*info.Sigma+1e-15)
		require.True(t, info.Boundary.Contains(st.Price), "tick %d: %v outside %+v", i, st.Price, info.Boundary)
		require.InDelta(t, math.Log(st.Price/prev.Price), st.PrevReturn, 1e-12)

		if !info.Reset.Has(repository.TF1m) {
			require.Equal(t, prev.Anchors.M1Open, st.Anchors.M1Open)
		}
		if !info.Reset.Has(repository.TF1d) {
			require.Equal(t, prev.Anchors.D1Open, st.Anchors.D1Open)
		}
		if now.Hour() == 0 && now.Minute() == 0 && now.Second() == 0 {
			require.True(t, info.Reset.Has(repository.TF1d))
			require.Equal(t, prev.Price, st.Anchors.D1Open)
		}

		if st.BoundaryTrend == models.TrendDown && prev.BoundaryTrend != models.TrendDown {
			require.Equal(t, info.Boundary.Upper, st.Price)
		}
		if st.BoundaryTrend == models.TrendUp && prev.BoundaryTrend != models.TrendUp {
			require.Equal(t, info.Boundary.Lower, st.Price)
		}
		require.Equal(t, prev.ReversionStrength, st.ReversionStrength)
		now = now.Add(time.Second)
	}
}
