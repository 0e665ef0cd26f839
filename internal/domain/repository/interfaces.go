package repository

import (
	"context"
	"time"

	"SynthFeed/internal/domain/models"
)

type Publisher interface {
	Publish(ctx context.Context, b *models.Bar) error
	PublishBatch(ctx context.Context, bars []*models.Bar) error
	Close() error
}

type Storage interface {
	Init(ctx context.Context) error // ensure tables, health checks
	Store(ctx context.Context, b *models.Bar) error
	StoreBatch(ctx context.Context, bars []*models.Bar) error
	Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Bar, error)
	Health(ctx context.Context) error // ping
	Close() error
}

// SnapshotStore persists simulation states and bar history across restarts.
// Loading from an empty store returns empty maps and no error.
type SnapshotStore interface {
	SaveStates(ctx context.Context, states map[string]*models.StateSnapshot) error
	LoadStates(ctx context.Context) (map[string]*models.StateSnapshot, error)
	SaveHistory(ctx context.Context, history map[string][]models.Bar) error
	LoadHistory(ctx context.Context) (map[string][]models.Bar, error)
	Close() error
}

// LatestCache keeps the most recent bar per symbol for cheap reads by other services.
type LatestCache interface {
	SetLatest(ctx context.Context, b *models.Bar) error
	GetLatest(ctx context.Context, symbol string) (*models.Bar, error)
}

type Metrics interface {
	RecordMessageSent(backend, symbol string)
	RecordError(kind string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	RecordTick(symbol string, sigma float64, trend models.Trend)
	RecordAnchorReset(symbol string, tf Timeframe)
	RecordBandInversion(symbol string)
}

// BarHistory is the bounded in-memory history of emitted bars, per symbol.
type BarHistory interface {
	Append(b models.Bar)
	Latest(symbol string) (models.Bar, bool)
	Last(symbol string, n int) []models.Bar
	Snapshot() map[string][]models.Bar
	Load(history map[string][]models.Bar)
}
