package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"SynthFeed/internal/domain/models"
	domrepo "SynthFeed/internal/domain/repository"
	pkgch "SynthFeed/pkg/clickhouse"
	applogger "SynthFeed/pkg/logger"
)

// CHCandleStore aggregates stored 1-second bars into candles on read.
type CHCandleStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHCandleStore(ch *pkgch.Client, table string, l *applogger.Logger) *CHCandleStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHCandleStore{db: ch.DB(), table: ch.Database() + "." + table, l: l}
}

var _ domrepo.CandleStore = (*CHCandleStore)(nil)

func (s *CHCandleStore) GetCandles(ctx context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe, limit int) ([]models.Candle, error) {
	start := time.Now()
	q, err := candlesQuery(s.table, tf)
	if err != nil {
		return nil, err
	}
	fields := []applogger.Field{
		applogger.String("symbol", symbol),
		applogger.String("tf", string(tf)),
	}

	rows, err := s.db.QueryContext(ctx, q, symbol, from.UTC(), to.UTC(), limit)
	if err != nil {
		s.l.Error("clickhouse get_candles query error", append(fields, applogger.Error(err))...)
		return nil, fmt.Errorf("get candles: %w", err)
	}
	defer rows.Close()

	out := make([]models.Candle, 0, 256)
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Bucket, &c.Symbol, &c.Open, &c.High, &c.Low, &c.Close, &c.Count); err != nil {
			s.l.Error("clickhouse get_candles scan error", append(fields, applogger.Error(err))...)
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Bucket = c.Bucket.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		s.l.Error("clickhouse get_candles rows error", append(fields, applogger.Error(err))...)
		return nil, fmt.Errorf("rows: %w", err)
	}

	s.l.Debug("clickhouse get_candles ok", append(fields,
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)...)
	return out, nil
}

func intervalForTF(tf domrepo.Timeframe) (string, error) {
	switch tf {
	case domrepo.TF1s:
		return "1 SECOND", nil
	case domrepo.TF1m:
		return "1 MINUTE", nil
	case domrepo.TF5m:
		return "5 MINUTE", nil
	case domrepo.TF1h:
		return "1 HOUR", nil
	case domrepo.TF1d:
		return "1 DAY", nil
	default:
		return "", fmt.Errorf("unsupported timeframe: %s", tf)
	}
}

// candlesQuery buckets [from, to) and takes open/close from the first/last bar of each bucket.
func candlesQuery(table string, tf domrepo.Timeframe) (string, error) {
	interval, err := intervalForTF(tf)
	if err != nil {
		return "", err
	}
	const qtpl = `
        SELECT toDateTime(toStartOfInterval(t, INTERVAL %s), 'UTC') AS bucket,
               symbol,
               argMin(o, t) AS open,
               max(h)       AS high,
               min(l)       AS low,
               argMax(c, t) AS close,
               count()      AS n
        FROM %s FINAL
        WHERE symbol = ? AND t >= ? AND t < ?
        GROUP BY symbol, bucket
        ORDER BY bucket ASC
        LIMIT ?
    `
	return fmt.Sprintf(qtpl, interval, table), nil
}
