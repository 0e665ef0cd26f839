package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"SynthFeed/internal/domain/models"
	domrepo "SynthFeed/internal/domain/repository"
	"SynthFeed/internal/services/synth"
	applogger "SynthFeed/pkg/logger"
	"SynthFeed/pkg/ticker"
)

// ErrStaleTick is returned by Step for a time that does not advance the feed.
var ErrStaleTick = errors.New("feed: tick time not after previous tick")

// BarSink receives every emitted bar (the realtime pipeline).
type BarSink interface {
	Process(ctx context.Context, b *models.Bar) error
}

// Broadcaster fans bars out to live subscribers. Broadcast must not block.
type Broadcaster interface {
	Broadcast(b models.Bar)
}

// FeedConfig selects the instruments and how fresh ones are seeded.
type FeedConfig struct {
	Symbols  []string
	PriceMin float64
	PriceMax float64
	Seed     int64 // 0 picks a time-based seed
}

type instrument struct {
	symbol string
	state  *models.SimulationState
	rng    synth.Random
}

// FeedGenerator owns every instrument state and advances all of them once per second.
// Each instrument is ticked by exactly one goroutine per step.
type FeedGenerator struct {
	sim     *synth.Simulator
	cfg     FeedConfig
	history domrepo.BarHistory
	metrics domrepo.Metrics
	l       *applogger.Logger

	sink   BarSink
	hub    Broadcaster
	latest domrepo.LatestCache

	mu          sync.RWMutex
	instruments []*instrument
	index       map[string]*instrument
	lastTick    time.Time
}

type FeedOption func(*FeedGenerator)

func WithBarSink(s BarSink) FeedOption {
	return func(g *FeedGenerator) { g.sink = s }
}

func WithBroadcaster(b Broadcaster) FeedOption {
	return func(g *FeedGenerator) { g.hub = b }
}

func WithLatestCache(c domrepo.LatestCache) FeedOption {
	return func(g *FeedGenerator) { g.latest = c }
}

func NewFeedGenerator(sim *synth.Simulator, cfg FeedConfig, history domrepo.BarHistory, metrics domrepo.Metrics, l *applogger.Logger, opts ...FeedOption) (*FeedGenerator, error) {
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("feed: no symbols configured")
	}
	if !(cfg.PriceMin > 0) || cfg.PriceMin > cfg.PriceMax {
		return nil, fmt.Errorf("feed: invalid initial price range (%v,%v)", cfg.PriceMin, cfg.PriceMax)
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if l == nil {
		l = applogger.Nop()
	}
	g := &FeedGenerator{
		sim:     sim,
		cfg:     cfg,
		history: history,
		metrics: metrics,
		l:       l,
		index:   make(map[string]*instrument, len(cfg.Symbols)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Init builds every configured instrument. States and history found in store are
// restored; symbols without a stored state start fresh at a uniform random price.
// A store that fails to load is logged and ignored. store may be nil.
func (g *FeedGenerator) Init(ctx context.Context, store domrepo.SnapshotStore) error {
	var snaps map[string]*models.StateSnapshot
	if store != nil {
		var err error
		if snaps, err = store.LoadStates(ctx); err != nil {
			g.l.Warn("snapshot states unreadable, starting fresh", applogger.Error(err))
			snaps = nil
		}
		history, err := store.LoadHistory(ctx)
		if err != nil {
			g.l.Warn("snapshot history unreadable, starting empty", applogger.Error(err))
		} else {
			g.history.Load(history)
		}
	}

	instruments := make([]*instrument, 0, len(g.cfg.Symbols))
	restored := 0
	for i, sym := range g.cfg.Symbols {
		rng := synth.NewRandom(synth.InstrumentSeed(g.cfg.Seed, i))
		in := &instrument{symbol: sym, rng: rng}

		if snap, ok := snaps[sym]; ok {
			st, err := snap.State()
			if err == nil {
				in.state = st
				restored++
			} else {
				g.l.Warn("snapshot state rejected, starting fresh", applogger.String("symbol", sym), applogger.Error(err))
			}
		}
		if in.state == nil {
			price := g.cfg.PriceMin + rng.Float64()*(g.cfg.PriceMax-g.cfg.PriceMin)
			st, err := g.sim.NewState(price, rng)
			if err != nil {
				return fmt.Errorf("init %s: %w", sym, err)
			}
			in.state = st
		}
		instruments = append(instruments, in)
	}

	g.mu.Lock()
	g.instruments = instruments
	for _, in := range instruments {
		g.index[in.symbol] = in
	}
	g.mu.Unlock()

	g.l.Info("feed initialized",
		applogger.Int("symbols", len(instruments)),
		applogger.Int("restored", restored),
		applogger.Int64("seed", g.cfg.Seed),
	)
	return nil
}

// Step advances every instrument to now (truncated to the UTC second) and forwards
// the bars. It returns the bars in symbol order and the first downstream error.
func (g *FeedGenerator) Step(ctx context.Context, now time.Time) ([]models.Bar, error) {
	start := time.Now()
	now = now.UTC().Truncate(time.Second)

	g.mu.Lock()
	if !now.After(g.lastTick) {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrStaleTick, now.Format(time.RFC3339))
	}
	g.lastTick = now

	n := len(g.instruments)
	bars := make([]models.Bar, n)
	infos := make([]synth.TickInfo, n)
	trends := make([]models.Trend, n)

	var eg errgroup.Group
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for i, in := range g.instruments {
		i, in := i, in
		eg.Go(func() error {
			b, info := g.sim.Tick(in.state, now, in.rng)
			b.Symbol = in.symbol
			bars[i], infos[i], trends[i] = b, info, in.state.BoundaryTrend
			return nil
		})
	}
	_ = eg.Wait()
	for i := range bars {
		g.history.Append(bars[i])
	}
	g.mu.Unlock()

	var out errgroup.Group
	for i := range bars {
		i := i
		out.Go(func() error {
			return g.emit(ctx, &bars[i], infos[i], trends[i])
		})
	}
	err := out.Wait()

	g.metrics.RecordLatency("tick", time.Since(start).Seconds())
	return bars, err
}

func (g *FeedGenerator) emit(ctx context.Context, b *models.Bar, info synth.TickInfo, trend models.Trend) error {
	g.metrics.RecordTick(b.Symbol, info.Sigma, trend)
	g.metrics.RecordLastPrice(b.Symbol, b.Close)
	for _, tf := range info.Reset.Timeframes() {
		g.metrics.RecordAnchorReset(b.Symbol, tf)
	}
	if info.Inverted {
		g.metrics.RecordBandInversion(b.Symbol)
	}

	if g.hub != nil {
		g.hub.Broadcast(*b)
	}

	var errs []error
	if g.latest != nil {
		if err := g.latest.SetLatest(ctx, b); err != nil {
			g.metrics.RecordError("latest_cache")
			errs = append(errs, fmt.Errorf("latest %s: %w", b.Symbol, err))
		}
	}
	if g.sink != nil {
		if err := g.sink.Process(ctx, b); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run ticks at each whole UTC second until ctx is done.
func (g *FeedGenerator) Run(ctx context.Context) error {
	t := ticker.NewSecondTicker()
	defer t.Stop()
	return g.RunWith(ctx, t.C)
}

// RunWith ticks once per value received on ticks until ctx is done.
// Step failures are logged; they never stop the feed.
func (g *FeedGenerator) RunWith(ctx context.Context, ticks <-chan time.Time) error {
	g.l.Info("feed started", applogger.Strings("symbols", g.Symbols()))
	for {
		select {
		case <-ctx.Done():
			g.l.Info("feed stopped")
			return ctx.Err()
		case now := <-ticks:
			if _, err := g.Step(ctx, now); err != nil {
				g.l.Warn("feed step", applogger.Time("tick", now), applogger.Error(err))
			}
		}
	}
}

// Symbols returns the configured symbols in order.
func (g *FeedGenerator) Symbols() []string {
	return append([]string(nil), g.cfg.Symbols...)
}

// State returns a copy of one instrument's state.
func (g *FeedGenerator) State(symbol string) (*models.SimulationState, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	in, ok := g.index[symbol]
	if !ok {
		return nil, false
	}
	return in.state.Clone(), true
}

// States returns a consistent snapshot of every instrument, taken between ticks.
func (g *FeedGenerator) States() map[string]*models.StateSnapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]*models.StateSnapshot, len(g.instruments))
	for _, in := range g.instruments {
		out[in.symbol] = models.NewStateSnapshot(in.symbol, in.state)
	}
	return out
}

// Snapshot returns every state together with the history it produced. Both are
// taken under the step lock, so the newest bar of each symbol matches its state.
func (g *FeedGenerator) Snapshot() (map[string]*models.StateSnapshot, map[string][]models.Bar) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	states := make(map[string]*models.StateSnapshot, len(g.instruments))
	for _, in := range g.instruments {
		states[in.symbol] = models.NewStateSnapshot(in.symbol, in.state)
	}
	return states, g.history.Snapshot()
}

// Latest returns the last emitted bar of symbol.
func (g *FeedGenerator) Latest(symbol string) (models.Bar, bool) {
	return g.history.Latest(symbol)
}

// Recent returns up to n newest bars of symbol, oldest first.
func (g *FeedGenerator) Recent(symbol string, n int) []models.Bar {
	return g.history.Last(symbol, n)
}

// LastTick returns the time of the last completed step.
func (g *FeedGenerator) LastTick() time.Time {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastTick
}
