package models

import "time"

// Candle is an OHLC record aggregated from 1-second bars over a timeframe bucket.
type Candle struct {
	Bucket time.Time `json:"bucket"`
	Symbol string    `json:"symbol"`
	Open   float64   `json:"o"`
	High   float64   `json:"h"`
	Low    float64   `json:"l"`
	Close  float64   `json:"c"`
	Count  uint64    `json:"n"`
}
