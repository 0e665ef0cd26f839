package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routes func(e *echo.Echo)

func (r routes) RegisterRoutes(e *echo.Echo) { r(e) }

type pageRequest struct {
	N    int    `query:"n" default:"60" validate:"min=1,max=1000"`
	Kind string `query:"kind" validate:"omitempty,oneof=a b"`
}

func testServer(opts ...ServerOption) *Server {
	h := routes(func(e *echo.Echo) {
		e.GET("/missing", func(c echo.Context) error {
			return AppErrorResponse(c, NotFoundErrorf("symbol %s not found", "XYZ"))
		})
		e.GET("/boom", func(c echo.Context) error {
			panic("boom")
		})
		e.GET("/page", func(c echo.Context) error {
			var req pageRequest
			if errs := ReadAndValidateRequest(c, &req); errs != nil {
				return BadRequestResponse(c, errs)
			}
			return SuccessResponse(c, req.N)
		})
	})
	return NewServer(h, nil, opts...)
}

func do(t *testing.T, s *Server, method, target string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, httptest.NewRequest(method, target, nil))

	var body APIResponse
	if strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealthz(t *testing.T) {
	s := testServer(WithHealthCheck("store", func(context.Context) error { return nil }))
	rec, body := do(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]interface{}{"store": "ok"}, body.Data)

	s = testServer(WithHealthCheck("store", func(context.Context) error { return errors.New("down") }))
	rec, body = do(t, s, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, http.StatusServiceUnavailable, body.Status)
	assert.Equal(t, map[string]interface{}{"store": "down"}, body.Data)
}

func TestAppErrorStatus(t *testing.T) {
	rec, body := do(t, testServer(), http.MethodGet, "/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, http.StatusNotFound, body.Status)
	assert.Contains(t, rec.Body.String(), "ERR_NOT_FOUND")
}

func TestRecoverReturns500(t *testing.T) {
	rec, _ := do(t, testServer(), http.MethodGet, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestValidationDefaultsAndErrors(t *testing.T) {
	s := testServer()

	rec, body := do(t, s, http.MethodGet, "/page")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(60), body.Data)

	rec, _ = do(t, s, http.MethodGet, "/page?n=5000")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "n must be at most 1000")

	rec, _ = do(t, s, http.MethodGet, "/page?kind=z")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_ONEOF")
}

func TestMetricsEndpoint(t *testing.T) {
	s := testServer()
	do(t, s, http.MethodGet, "/healthz")

	rec, _ := do(t, s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",route="/healthz",status="200"}`)

	rec, _ = do(t, testServer(WithMetricsPath("")), http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := testServer()
	req := httptest.NewRequest(http.MethodOptions, "/page", nil)
	req.Header.Set(echo.HeaderOrigin, "http://example.com")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://example.com", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowMethods), http.MethodGet)
}
