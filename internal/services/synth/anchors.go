package synth

import (
	"time"

	"SynthFeed/internal/domain/models"
	"SynthFeed/internal/domain/repository"
)

// AnchorReset is a bit set of the anchors reset on a tick.
type AnchorReset uint8

const (
	ResetM1 AnchorReset = 1 << iota
	ResetM5
	ResetH1
	ResetD1
)

// Has reports whether r includes the reset of tf.
func (r AnchorReset) Has(tf repository.Timeframe) bool {
	switch tf {
	case repository.TF1m:
		return r&ResetM1 != 0
	case repository.TF5m:
		return r&ResetM5 != 0
	case repository.TF1h:
		return r&ResetH1 != 0
	case repository.TF1d:
		return r&ResetD1 != 0
	}
	return false
}

// Timeframes lists the reset anchors from finest to coarsest.
func (r AnchorReset) Timeframes() []repository.Timeframe {
	var out []repository.Timeframe
	for _, tf := range repository.Timeframes[1:] {
		if r.Has(tf) {
			out = append(out, tf)
		}
	}
	return out
}

// UpdateAnchors moves every anchor whose period starts at now to price.
// Checks are nested: a coarser period can only roll over on a finer boundary.
func UpdateAnchors(a *models.Anchors, price float64, now time.Time) AnchorReset {
	now = now.UTC()
	if now.Second() != 0 {
		return 0
	}

	a.M1Open = price
	reset := ResetM1
	if now.Minute()%5 == 0 {
		a.M5Open = price
		reset |= ResetM5
		if now.Minute() == 0 {
			a.H1Open = price
			reset |= ResetH1
			if now.Hour() == 0 {
				a.D1Open = price
				reset |= ResetD1
			}
		}
	}
	return reset
}
