package models

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// Bar is one second of synthetic OHLC data. Prices are rounded to 2 decimals.
// No intrabar wicks are modeled: High/Low are always max/min of Open and Close.
type Bar struct {
	Symbol    string  `json:"symbol,omitempty"`
	Timestamp int64   `json:"t"` // epoch milliseconds
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
}

// NewBar builds a bar from raw open/close prices.
func NewBar(tsMillis int64, open, close float64) Bar {
	return Bar{
		Timestamp: tsMillis,
		Open:      RoundPrice(open),
		High:      RoundPrice(math.Max(open, close)),
		Low:       RoundPrice(math.Min(open, close)),
		Close:     RoundPrice(close),
	}
}

// RoundPrice rounds half away from zero to 2 decimals.
func RoundPrice(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// Time returns the bar timestamp as UTC time.
func (b Bar) Time() time.Time {
	return time.UnixMilli(b.Timestamp).UTC()
}

// Validate checks the OHLC ordering invariants.
func (b Bar) Validate() error {
	if b.Timestamp <= 0 {
		return fmt.Errorf("bar: timestamp invalid")
	}
	if b.Low <= 0 {
		return fmt.Errorf("bar: non-positive price")
	}
	if b.Low > b.Open || b.Open > b.High || b.Low > b.Close || b.Close > b.High {
		return fmt.Errorf("bar: ohlc out of order (o=%.2f h=%.2f l=%.2f c=%.2f)", b.Open, b.High, b.Low, b.Close)
	}
	return nil
}
