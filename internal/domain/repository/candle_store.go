package repository

import (
	"context"
	"time"

	"SynthFeed/internal/domain/models"
)

// Timeframe represents candle resolution buckets and band horizons.
type Timeframe string

const (
	TF1s Timeframe = "1s"
	TF1m Timeframe = "1m"
	TF5m Timeframe = "5m"
	TF1h Timeframe = "1h"
	TF1d Timeframe = "1d"
)

// Timeframes lists all timeframes from finest to coarsest.
var Timeframes = [5]Timeframe{TF1s, TF1m, TF5m, TF1h, TF1d}

// CandleStore provides read-only access to candles aggregated from stored bars.
type CandleStore interface {
	GetCandles(ctx context.Context, symbol string, from, to time.Time, tf Timeframe, limit int) ([]models.Candle, error)
}
