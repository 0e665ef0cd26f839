package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"SynthFeed/internal/domain/models"
	domrepo "SynthFeed/internal/domain/repository"
	"SynthFeed/internal/usecase"
	xhttp "SynthFeed/pkg/http"
	xlogger "SynthFeed/pkg/logger"
	"SynthFeed/pkg/ratelimit"
	"SynthFeed/pkg/util"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsBuffer     = 256
)

// FeedReader is the read side of the running generator.
type FeedReader interface {
	Symbols() []string
	State(symbol string) (*models.SimulationState, bool)
	Latest(symbol string) (models.Bar, bool)
	Recent(symbol string, n int) []models.Bar
}

// Subscriber hands out live bar streams.
type Subscriber interface {
	Subscribe(symbol string, buffer int) (int64, <-chan models.Bar)
	Unsubscribe(id int64)
}

// BarsEchoHandler serves the generated feed over HTTP and websocket.
type BarsEchoHandler struct {
	logger  *xlogger.Logger
	feed    FeedReader
	hub     Subscriber
	candles *usecase.CandlesUseCase
	limiter *ratelimit.Limiter

	upgrader websocket.Upgrader
}

type BarsOption func(*BarsEchoHandler)

// WithCandles enables /api/candles, rate limited per client IP.
func WithCandles(uc *usecase.CandlesUseCase, rl *ratelimit.Limiter) BarsOption {
	return func(h *BarsEchoHandler) {
		h.candles = uc
		h.limiter = rl
	}
}

// WithStream enables /ws/bars.
func WithStream(s Subscriber) BarsOption {
	return func(h *BarsEchoHandler) { h.hub = s }
}

func NewBarsEchoHandler(logger *xlogger.Logger, feed FeedReader, opts ...BarsOption) *BarsEchoHandler {
	if logger == nil {
		logger = xlogger.Nop()
	}
	h := &BarsEchoHandler{
		logger: logger,
		feed:   feed,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *BarsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/instruments", h.Instruments)
	g.GET("/bars/latest", h.LatestBar)
	g.GET("/bars", h.RecentBars)
	g.GET("/state", h.State)
	if h.candles != nil {
		g.GET("/candles", h.Candles)
	}
	if h.hub != nil {
		e.GET("/ws/bars", h.Stream)
	}
}

func (h *BarsEchoHandler) Instruments(c echo.Context) error {
	symbols := h.feed.Symbols()
	out := make([]models.InstrumentView, 0, len(symbols))
	for _, sym := range symbols {
		st, ok := h.feed.State(sym)
		if !ok {
			continue
		}
		v := models.InstrumentView{
			Symbol:        sym,
			Price:         models.RoundPrice(st.Price),
			BoundaryTrend: st.BoundaryTrend.String(),
		}
		if b, ok := h.feed.Latest(sym); ok {
			v.LastBarTime = b.Timestamp
		}
		out = append(out, v)
	}
	return xhttp.ListResponse(c, out, int64(len(out)))
}

func (h *BarsEchoHandler) LatestBar(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if _, ok := h.feed.State(req.Symbol); !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown symbol %q", req.Symbol))
	}
	b, ok := h.feed.Latest(req.Symbol)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no bars yet for %q", req.Symbol))
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, b)
}

func (h *BarsEchoHandler) RecentBars(c echo.Context) error {
	req := &models.RecentBarsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if _, ok := h.feed.State(req.Symbol); !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown symbol %q", req.Symbol))
	}
	bars := h.feed.Recent(req.Symbol, req.N)
	if bars == nil {
		bars = []models.Bar{}
	}
	return xhttp.ListResponse(c, bars, int64(len(bars)))
}

func (h *BarsEchoHandler) State(c echo.Context) error {
	req := &models.SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	st, ok := h.feed.State(req.Symbol)
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown symbol %q", req.Symbol))
	}
	return xhttp.SuccessResponse(c, models.NewStateSnapshot(req.Symbol, st))
}

func (h *BarsEchoHandler) Candles(c echo.Context) error {
	if h.limiter != nil && !h.limiter.Allow(c.RealIP()+":candles") {
		h.logger.Warn("candles rate limited", xlogger.String("remote", c.RealIP()))
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError("too many candle requests"))
	}
	req := &models.CandlesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	tf := domrepo.NormalizeTimeframe(req.TF)

	to, ok := parseBound(req.To, time.Now().UTC())
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid to %q", req.To))
	}
	from, ok := parseBound(req.From, to.Add(-time.Duration(req.Limit)*tf.Duration()))
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid from %q", req.From))
	}
	from, to = util.AlignFromTo(from, to, string(tf))

	res, err := h.candles.GetCandles(c.Request().Context(), usecase.GetCandlesParams{
		Symbol:    req.Symbol,
		From:      from,
		To:        to,
		Timeframe: tf,
		Limit:     req.Limit,
	})
	if err != nil {
		if errors.Is(err, usecase.ErrInvalidCandleQuery) {
			return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("%v", err))
		}
		h.logger.Error("candles usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.UnavailableErrorf("candle store unavailable").WithError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

// Stream upgrades to a websocket and pushes every bar of ?symbol (all symbols
// when empty) as a JSON text frame until the client goes away or falls behind.
func (h *BarsEchoHandler) Stream(c echo.Context) error {
	symbol := c.QueryParam("symbol")
	if symbol != "" {
		if _, ok := h.feed.State(symbol); !ok {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("unknown symbol %q", symbol))
		}
	}
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", xlogger.Error(err))
		return nil
	}
	defer conn.Close()

	id, bars := h.hub.Subscribe(symbol, wsBuffer)
	defer h.hub.Unsubscribe(id)
	h.logger.Debug("ws subscriber connected",
		xlogger.Int64("id", id),
		xlogger.String("symbol", symbol),
		xlogger.String("remote", c.RealIP()))

	// reader: only control frames are expected; any read error ends the session
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-gone:
			return nil
		case <-c.Request().Context().Done():
			return nil
		case b, ok := <-bars:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "subscriber too slow"))
				return nil
			}
			if err := conn.WriteJSON(b); err != nil {
				h.logger.Debug("ws write failed", xlogger.Int64("id", id), xlogger.Error(err))
				return nil
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}

// parseBound returns def for an empty value and false for an unparseable one.
func parseBound(s string, def time.Time) (time.Time, bool) {
	if s == "" {
		return def, true
	}
	return util.ParseTime(s)
}
