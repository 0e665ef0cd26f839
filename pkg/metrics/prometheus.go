package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"SynthFeed/internal/domain/models"
	"SynthFeed/internal/domain/repository"
)

// Recorder implements repository.Metrics using Prometheus.
type Recorder struct {
	messagesSent   *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	lastPrice      *prometheus.GaugeVec
	latency        *prometheus.HistogramVec
	ticks          *prometheus.CounterVec
	sigma          *prometheus.GaugeVec
	boundaryTrend  *prometheus.GaugeVec
	anchorResets   *prometheus.CounterVec
	bandInversions *prometheus.CounterVec
}

var _ repository.Metrics = (*Recorder)(nil)

// New registers the recorder on the default Prometheus registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the recorder on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synthfeed_messages_sent_total",
				Help: "Total number of bars sent to the backend",
			},
			[]string{"backend", "symbol"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synthfeed_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "synthfeed_last_price",
				Help: "Last emitted close price",
			},
			[]string{"symbol"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "synthfeed_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ticks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synthfeed_ticks_total",
				Help: "Simulated seconds per symbol",
			},
			[]string{"symbol"},
		),
		sigma: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "synthfeed_sigma",
				Help: "GARCH volatility of the last tick",
			},
			[]string{"symbol"},
		),
		boundaryTrend: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "synthfeed_boundary_trend",
				Help: "Boundary pressure after the last tick (-1, 0, 1)",
			},
			[]string{"symbol"},
		),
		anchorResets: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synthfeed_anchor_resets_total",
				Help: "Anchor resets per timeframe",
			},
			[]string{"symbol", "timeframe"},
		),
		bandInversions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "synthfeed_band_inversions_total",
				Help: "Ticks whose band intersection was empty",
			},
			[]string{"symbol"},
		),
	}
}

// RecordMessageSent records a bar sent to a backend.
func (r *Recorder) RecordMessageSent(backend, symbol string) {
	r.messagesSent.WithLabelValues(backend, symbol).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordTick(symbol string, sigma float64, trend models.Trend) {
	r.ticks.WithLabelValues(symbol).Inc()
	r.sigma.WithLabelValues(symbol).Set(sigma)
	r.boundaryTrend.WithLabelValues(symbol).Set(float64(trend))
}

func (r *Recorder) RecordAnchorReset(symbol string, tf repository.Timeframe) {
	r.anchorResets.WithLabelValues(symbol, string(tf)).Inc()
}

func (r *Recorder) RecordBandInversion(symbol string) {
	r.bandInversions.WithLabelValues(symbol).Inc()
}

// Nop discards every observation.
type Nop struct{}

var _ repository.Metrics = Nop{}

func (Nop) RecordMessageSent(string, string)               {}
func (Nop) RecordError(string)                             {}
func (Nop) RecordLastPrice(string, float64)                {}
func (Nop) RecordLatency(string, float64)                  {}
func (Nop) RecordTick(string, float64, models.Trend)       {}
func (Nop) RecordAnchorReset(string, repository.Timeframe) {}
func (Nop) RecordBandInversion(string)                     {}
