package usecase

import (
	"context"
	"sync"
	"time"

	"SynthFeed/internal/domain/models"
	domrepo "SynthFeed/internal/domain/repository"
)

type fakePublisher struct {
	mu     sync.Mutex
	bars   []*models.Bar
	err    error
	closed bool
}

func (f *fakePublisher) Publish(_ context.Context, b *models.Bar) error {
	return f.PublishBatch(context.Background(), []*models.Bar{b})
}

func (f *fakePublisher) PublishBatch(_ context.Context, bars []*models.Bar) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.bars = append(f.bars, bars...)
	return nil
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

type fakeStorage struct {
	mu   sync.Mutex
	bars []*models.Bar
	err  error
}

func (f *fakeStorage) Init(context.Context) error { return nil }

func (f *fakeStorage) Store(ctx context.Context, b *models.Bar) error {
	return f.StoreBatch(ctx, []*models.Bar{b})
}

func (f *fakeStorage) StoreBatch(_ context.Context, bars []*models.Bar) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.bars = append(f.bars, bars...)
	return nil
}

func (f *fakeStorage) Query(context.Context, string, time.Time, time.Time, int) ([]*models.Bar, error) {
	return nil, nil
}

func (f *fakeStorage) Health(context.Context) error { return nil }
func (f *fakeStorage) Close() error                 { return nil }

type fakeSink struct {
	mu   sync.Mutex
	bars []models.Bar
	err  error
}

func (f *fakeSink) Process(_ context.Context, b *models.Bar) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bars = append(f.bars, *b)
	return f.err
}

func (f *fakeSink) received() []models.Bar {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Bar(nil), f.bars...)
}

type fakeHub struct {
	mu   sync.Mutex
	bars []models.Bar
}

func (f *fakeHub) Broadcast(b models.Bar) {
	f.mu.Lock()
	f.bars = append(f.bars, b)
	f.mu.Unlock()
}

type fakeCandleStore struct {
	gotLimit int
	gotTF    domrepo.Timeframe
	candles  []models.Candle
	err      error
}

func (f *fakeCandleStore) GetCandles(_ context.Context, _ string, _, _ time.Time, tf domrepo.Timeframe, limit int) ([]models.Candle, error) {
	f.gotLimit, f.gotTF = limit, tf
	return f.candles, f.err
}

// memSnapshotStore keeps snapshots in maps.
type memSnapshotStore struct {
	mu      sync.Mutex
	states  map[string]*models.StateSnapshot
	history map[string][]models.Bar
	saves   int
	err     error
}

func (m *memSnapshotStore) SaveStates(_ context.Context, states map[string]*models.StateSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.states = states
	m.saves++
	return nil
}

func (m *memSnapshotStore) LoadStates(context.Context) (map[string]*models.StateSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states, m.err
}

func (m *memSnapshotStore) SaveHistory(_ context.Context, history map[string][]models.Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = history
	return nil
}

func (m *memSnapshotStore) LoadHistory(context.Context) (map[string][]models.Bar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history, nil
}

func (m *memSnapshotStore) Close() error { return nil }

func (m *memSnapshotStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
