package synth

import (
	"math"

	"SynthFeed/internal/domain/models"
	"SynthFeed/internal/domain/repository"
)

// Band is the allowed price interval of one timeframe.
type Band struct {
	Timeframe repository.Timeframe
	Lower     float64
	Upper     float64
}

// Boundary is the effective price channel for a tick.
type Boundary struct {
	Lower float64
	Upper float64
}

// Mid returns the channel center.
func (b Boundary) Mid() float64 {
	return (b.Upper + b.Lower) / 2
}

// Contains reports whether p lies inside the closed channel.
func (b Boundary) Contains(p float64) bool {
	return p >= b.Lower && p <= b.Upper
}

// Bands computes the five timeframe bands. The 1-second band is centered on price.
func Bands(price float64, a models.Anchors, rs models.ReversionStrength) [5]Band {
	band := func(tf repository.Timeframe, anchor, strength float64) Band {
		return Band{Timeframe: tf, Lower: anchor * (1 - strength), Upper: anchor * (1 + strength)}
	}
	return [5]Band{
		band(repository.TF1s, price, rs.S1),
		band(repository.TF1m, a.M1Open, rs.M1),
		band(repository.TF5m, a.M5Open, rs.M5),
		band(repository.TF1h, a.H1Open, rs.H1),
		band(repository.TF1d, a.D1Open, rs.D1),
	}
}

// EffectiveBoundary intersects the bands: the tightest bound on each side wins.
// When the intersection is empty both bounds collapse to the midpoint of the
// inverted pair and inverted is true.
func EffectiveBoundary(bands [5]Band) (b Boundary, inverted bool) {
	b = Boundary{Lower: math.Inf(-1), Upper: math.Inf(1)}
	for _, band := range bands {
		b.Lower = math.Max(b.Lower, band.Lower)
		b.Upper = math.Min(b.Upper, band.Upper)
	}
	if b.Lower > b.Upper {
		mid := b.Mid()
		return Boundary{Lower: mid, Upper: mid}, true
	}
	return b, false
}
