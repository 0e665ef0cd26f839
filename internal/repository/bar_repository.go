package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"SynthFeed/internal/domain/models"
	"SynthFeed/internal/domain/repository"
	pkgch "SynthFeed/pkg/clickhouse"
)

// insertChunk caps the rows of one multi-VALUES INSERT.
const insertChunk = 2000

// ClickHouseStorage implements Storage for the 1-second bars table.
type ClickHouseStorage struct {
	client *pkgch.Client
	db     *sql.DB
	table  string // database-qualified
}

// NewClickHouseStorage creates ClickHouse bar storage over database.table.
func NewClickHouseStorage(client *pkgch.Client, table string) *ClickHouseStorage {
	return &ClickHouseStorage{
		client: client,
		db:     client.DB(),
		table:  client.Database() + "." + table,
	}
}

var _ repository.Storage = (*ClickHouseStorage)(nil)

// Init creates the database and table when missing.
func (s *ClickHouseStorage) Init(ctx context.Context) error {
	db, table, _ := strings.Cut(s.table, ".")
	return s.client.InitSchema(ctx, pkgch.BarsSchema(db, table))
}

func (s *ClickHouseStorage) Store(ctx context.Context, b *models.Bar) error {
	return s.StoreBatch(ctx, []*models.Bar{b})
}

func (s *ClickHouseStorage) StoreBatch(ctx context.Context, bars []*models.Bar) error {
	for start := 0; start < len(bars); start += insertChunk {
		end := start + insertChunk
		if end > len(bars) {
			end = len(bars)
		}

		args := make([]interface{}, 0, (end-start)*6)
		rows := 0
		for _, b := range bars[start:end] {
			if b == nil || b.Symbol == "" || b.Timestamp <= 0 {
				continue
			}
			args = append(args, b.Symbol, b.Time(), b.Open, b.High, b.Low, b.Close)
			rows++
		}
		if rows == 0 {
			continue
		}
		if _, err := s.db.ExecContext(ctx, insertBarsQuery(s.table, rows), args...); err != nil {
			return fmt.Errorf("insert bars: %w", err)
		}
	}
	return nil
}

// Query returns bars for symbol in [from, to], newest first.
func (s *ClickHouseStorage) Query(ctx context.Context, symbol string, from, to time.Time, limit int) ([]*models.Bar, error) {
	q := fmt.Sprintf("SELECT symbol, t, o, h, l, c FROM %s FINAL WHERE symbol = ? AND t >= ? AND t <= ? ORDER BY t DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []*models.Bar
	for rows.Next() {
		var b models.Bar
		var ts time.Time
		if err := rows.Scan(&b.Symbol, &ts, &b.Open, &b.High, &b.Low, &b.Close); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.Timestamp = ts.UnixMilli()
		bars = append(bars, &b)
	}
	return bars, rows.Err()
}

func (s *ClickHouseStorage) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// Close is a no-op; the client owns the pool.
func (s *ClickHouseStorage) Close() error {
	return nil
}

func insertBarsQuery(table string, rows int) string {
	values := strings.TrimSuffix(strings.Repeat("(?, ?, ?, ?, ?, ?),", rows), ",")
	return fmt.Sprintf("INSERT INTO %s (symbol, t, o, h, l, c) VALUES %s", table, values)
}
