package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SynthFeed/internal/domain/models"
	domrepo "SynthFeed/internal/domain/repository"
	"SynthFeed/internal/services/stream"
	"SynthFeed/internal/usecase"
	"SynthFeed/pkg/ratelimit"
)

type fakeFeed struct {
	states map[string]*models.SimulationState
	bars   map[string][]models.Bar
}

func (f *fakeFeed) Symbols() []string {
	return []string{"AAA", "BBB"}
}

func (f *fakeFeed) State(symbol string) (*models.SimulationState, bool) {
	st, ok := f.states[symbol]
	return st.Clone(), ok
}

func (f *fakeFeed) Latest(symbol string) (models.Bar, bool) {
	bars := f.bars[symbol]
	if len(bars) == 0 {
		return models.Bar{}, false
	}
	return bars[len(bars)-1], true
}

func (f *fakeFeed) Recent(symbol string, n int) []models.Bar {
	bars := f.bars[symbol]
	if n < len(bars) {
		bars = bars[len(bars)-n:]
	}
	return bars
}

type candleStore struct {
	mu       sync.Mutex
	from, to time.Time
	tf       domrepo.Timeframe
	err      error
}

func (s *candleStore) GetCandles(_ context.Context, symbol string, from, to time.Time, tf domrepo.Timeframe, _ int) ([]models.Candle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.from, s.to, s.tf = from, to, tf
	if s.err != nil {
		return nil, s.err
	}
	return []models.Candle{{Bucket: from, Symbol: symbol, Open: 1, High: 2, Low: 1, Close: 2, Count: 60}}, nil
}

func newFeed() *fakeFeed {
	st := &models.SimulationState{Price: 101.234, GarchVariance: 1e-5, BoundaryTrend: models.TrendUp}
	st.Anchors = models.Anchors{D1Open: 100, H1Open: 100, M5Open: 100, M1Open: 100}
	st.ReversionStrength = models.ReversionStrength{S1: 0.01, M1: 0.02, M5: 0.03, H1: 0.05, D1: 0.1}

	var bars []models.Bar
	for i := int64(1); i <= 5; i++ {
		b := models.NewBar(i*1000, 100, 101)
		b.Symbol = "AAA"
		bars = append(bars, b)
	}
	return &fakeFeed{
		states: map[string]*models.SimulationState{"AAA": st, "BBB": st.Clone()},
		bars:   map[string][]models.Bar{"AAA": bars},
	}
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func do(t *testing.T, e *echo.Echo, target string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.RemoteAddr = "10.0.0.1:1234"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func newEcho(h *BarsEchoHandler) *echo.Echo {
	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func TestInstruments(t *testing.T) {
	e := newEcho(NewBarsEchoHandler(nil, newFeed()))
	code, env := do(t, e, "/api/instruments")
	require.Equal(t, http.StatusOK, code)

	var list struct {
		Rows  []models.InstrumentView `json:"rows"`
		Total int64                   `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.EqualValues(t, 2, list.Total)
	assert.Equal(t, "AAA", list.Rows[0].Symbol)
	assert.Equal(t, 101.23, list.Rows[0].Price)
	assert.Equal(t, "up", list.Rows[0].BoundaryTrend)
	assert.EqualValues(t, 5000, list.Rows[0].LastBarTime)
	assert.Zero(t, list.Rows[1].LastBarTime)
}

func TestLatestBar(t *testing.T) {
	e := newEcho(NewBarsEchoHandler(nil, newFeed()))

	code, env := do(t, e, "/api/bars/latest?symbol=AAA")
	require.Equal(t, http.StatusOK, code)
	var b models.Bar
	require.NoError(t, json.Unmarshal(env.Data, &b))
	assert.EqualValues(t, 5000, b.Timestamp)

	code, _ = do(t, e, "/api/bars/latest?symbol=BBB")
	assert.Equal(t, http.StatusNotFound, code, "known symbol without bars")

	code, _ = do(t, e, "/api/bars/latest?symbol=ZZZ")
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, e, "/api/bars/latest")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRecentBars(t *testing.T) {
	e := newEcho(NewBarsEchoHandler(nil, newFeed()))

	tests := []struct {
		name  string
		query string
		code  int
		total int64
	}{
		{"default n", "symbol=AAA", http.StatusOK, 5},
		{"limited", "symbol=AAA&n=2", http.StatusOK, 2},
		{"empty history", "symbol=BBB", http.StatusOK, 0},
		{"n too large", "symbol=AAA&n=100000", http.StatusBadRequest, 0},
		{"n negative", "symbol=AAA&n=-1", http.StatusBadRequest, 0},
		{"unknown", "symbol=ZZZ", http.StatusNotFound, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := do(t, e, "/api/bars?"+tt.query)
			require.Equal(t, tt.code, code)
			if code != http.StatusOK {
				return
			}
			var list struct {
				Rows  []models.Bar `json:"rows"`
				Total int64        `json:"total"`
			}
			require.NoError(t, json.Unmarshal(env.Data, &list))
			assert.Equal(t, tt.total, list.Total)
			assert.NotNil(t, list.Rows)
		})
	}
}

func TestState(t *testing.T) {
	e := newEcho(NewBarsEchoHandler(nil, newFeed()))
	code, env := do(t, e, "/api/state?symbol=AAA")
	require.Equal(t, http.StatusOK, code)

	var snap models.StateSnapshot
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Equal(t, models.StateSnapshotVersion, snap.Version)
	assert.Equal(t, 101.234, snap.Price)
	assert.Equal(t, 1, snap.BoundaryTrend)
	assert.Equal(t, 0.05, snap.ReversionStrength[models.StrengthKeyH1])
}

func TestCandles(t *testing.T) {
	store := &candleStore{}
	h := NewBarsEchoHandler(nil, newFeed(),
		WithCandles(usecase.NewCandlesUseCase(store), ratelimit.New(100, 100)))
	e := newEcho(h)

	code, env := do(t, e, "/api/candles?symbol=AAA&tf=5m&from=2024-01-01T00:03:10Z&to=2024-01-01T01:02:00Z")
	require.Equal(t, http.StatusOK, code)
	var res usecase.GetCandlesResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 1, res.Count)
	assert.Equal(t, "5m", res.Timeframe)

	store.mu.Lock()
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), store.from)
	assert.Equal(t, time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC), store.to)
	assert.Equal(t, domrepo.TF5m, store.tf)
	store.mu.Unlock()

	code, _ = do(t, e, "/api/candles?symbol=AAA&tf=1m&limit=10")
	assert.Equal(t, http.StatusOK, code, "range defaults to limit buckets before now")

	code, _ = do(t, e, "/api/candles?symbol=AAA&tf=2m")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, e, "/api/candles?symbol=AAA&from=yesterday")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, e, "/api/candles?symbol=AAA&from=2024-01-02T00:00:00Z&to=2024-01-01T00:00:00Z")
	assert.Equal(t, http.StatusBadRequest, code, "inverted range")

	store.err = errors.New("clickhouse down")
	code, _ = do(t, e, "/api/candles?symbol=AAA")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestCandles_RateLimited(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := ratelimit.New(1, 2, ratelimit.WithClock(func() time.Time { return now }))
	e := newEcho(NewBarsEchoHandler(nil, newFeed(),
		WithCandles(usecase.NewCandlesUseCase(&candleStore{}), rl)))

	for i := 0; i < 2; i++ {
		code, _ := do(t, e, "/api/candles?symbol=AAA")
		require.Equal(t, http.StatusOK, code)
	}
	code, _ := do(t, e, "/api/candles?symbol=AAA")
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestCandles_NotRegisteredWithoutStore(t *testing.T) {
	e := newEcho(NewBarsEchoHandler(nil, newFeed()))
	req := httptest.NewRequest(http.MethodGet, "/api/candles?symbol=AAA", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStream(t *testing.T) {
	hub := stream.NewHub(nil)
	e := newEcho(NewBarsEchoHandler(nil, newFeed(), WithStream(hub)))
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/bars?symbol=AAA"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	other := models.NewBar(6000, 50, 51)
	other.Symbol = "BBB"
	hub.Broadcast(other)
	want := models.NewBar(6000, 100, 102)
	want.Symbol = "AAA"
	hub.Broadcast(want)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got models.Bar
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, want, got)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStream_UnknownSymbol(t *testing.T) {
	hub := stream.NewHub(nil)
	e := newEcho(NewBarsEchoHandler(nil, newFeed(), WithStream(hub)))
	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/bars?symbol=ZZZ"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
