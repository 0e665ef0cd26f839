package models

// Requests for the bar HTTP endpoints.

type SymbolRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
}

type RecentBarsRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	N      int    `query:"n" json:"n" default:"60" validate:"gte=1,lte=3600"`
}

type CandlesRequest struct {
	Symbol string `query:"symbol" json:"symbol" validate:"required"`
	TF     string `query:"tf" json:"tf" default:"1m" validate:"oneof=1s 1m 5m 1h 1d"`
	From   string `query:"from" json:"from"`
	To     string `query:"to" json:"to"`
	Limit  int    `query:"limit" json:"limit" default:"1000" validate:"gte=1,lte=50000"`
}

// InstrumentView is the API projection of one simulated instrument.
type InstrumentView struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	BoundaryTrend string  `json:"boundary_trend"`
	LastBarTime   int64   `json:"last_bar_t,omitempty"`
}
