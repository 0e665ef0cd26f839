package repository

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"SynthFeed/internal/domain/models"
	"SynthFeed/internal/domain/repository"
)

type stateRow struct {
	Symbol    string `gorm:"primaryKey"`
	Payload   []byte `gorm:"not null"`
	UpdatedAt time.Time
}

func (stateRow) TableName() string { return "state_snapshots" }

type historyRow struct {
	Symbol    string `gorm:"primaryKey"`
	Timestamp int64  `gorm:"primaryKey;autoIncrement:false"`
	Open      float64
	High      float64
	Low       float64
	Close     float64
}

func (historyRow) TableName() string { return "history_bars" }

const historyBatchSize = 1000

// SQLiteSnapshotStore persists snapshots in a local SQLite database.
// History writes are incremental: only bars newer than the stored ones are inserted
// and rows older than the oldest retained bar are pruned.
type SQLiteSnapshotStore struct {
	db *gorm.DB
}

// NewSQLiteSnapshotStore opens (and migrates) the database at path.
func NewSQLiteSnapshotStore(path string) (*SQLiteSnapshotStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.AutoMigrate(&stateRow{}, &historyRow{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteSnapshotStore{db: db}, nil
}

var _ repository.SnapshotStore = (*SQLiteSnapshotStore)(nil)

func (s *SQLiteSnapshotStore) SaveStates(ctx context.Context, states map[string]*models.StateSnapshot) error {
	if len(states) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]stateRow, 0, len(states))
	for sym, snap := range states {
		payload, err := models.EncodeStateSnapshot(snap)
		if err != nil {
			return fmt.Errorf("encode state %s: %w", sym, err)
		}
		rows = append(rows, stateRow{Symbol: sym, Payload: payload, UpdatedAt: now})
	}
	return s.db.WithContext(ctx).Save(&rows).Error
}

func (s *SQLiteSnapshotStore) LoadStates(ctx context.Context) (map[string]*models.StateSnapshot, error) {
	var rows []stateRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load states: %w", err)
	}
	out := make(map[string]*models.StateSnapshot, len(rows))
	for _, r := range rows {
		snap, err := models.DecodeStateSnapshot(r.Payload)
		if err != nil {
			return nil, fmt.Errorf("state %s: %w", r.Symbol, err)
		}
		snap.Symbol = r.Symbol
		out[r.Symbol] = snap
	}
	return out, nil
}

func (s *SQLiteSnapshotStore) SaveHistory(ctx context.Context, history map[string][]models.Bar) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for sym, bars := range history {
			if len(bars) == 0 {
				continue
			}
			var last int64
			if err := tx.Model(&historyRow{}).
				Where("symbol = ?", sym).
				Select("COALESCE(MAX(timestamp), 0)").
				Scan(&last).Error; err != nil {
				return fmt.Errorf("history %s: %w", sym, err)
			}

			rows := make([]historyRow, 0, len(bars))
			for _, b := range bars {
				if b.Timestamp > last {
					rows = append(rows, historyRow{
						Symbol: sym, Timestamp: b.Timestamp,
						Open: b.Open, High: b.High, Low: b.Low, Close: b.Close,
					})
				}
			}
			if len(rows) > 0 {
				if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
					CreateInBatches(&rows, historyBatchSize).Error; err != nil {
					return fmt.Errorf("history %s: %w", sym, err)
				}
			}
			if err := tx.Where("symbol = ? AND timestamp < ?", sym, bars[0].Timestamp).
				Delete(&historyRow{}).Error; err != nil {
				return fmt.Errorf("prune history %s: %w", sym, err)
			}
		}
		return nil
	})
}

func (s *SQLiteSnapshotStore) LoadHistory(ctx context.Context) (map[string][]models.Bar, error) {
	var rows []historyRow
	if err := s.db.WithContext(ctx).Order("symbol, timestamp").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	out := make(map[string][]models.Bar)
	for _, r := range rows {
		out[r.Symbol] = append(out[r.Symbol], models.Bar{
			Symbol: r.Symbol, Timestamp: r.Timestamp,
			Open: r.Open, High: r.High, Low: r.Low, Close: r.Close,
		})
	}
	return out, nil
}

func (s *SQLiteSnapshotStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
