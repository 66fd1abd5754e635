package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/resguarit/pos-system-sub005/internal/observability"
	"github.com/resguarit/pos-system-sub005/internal/sales"
	"github.com/resguarit/pos-system-sub005/internal/shared"
)

const terminalKey = "caja-7-secret"

func testConfig(t *testing.T) *Config {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(terminalKey), bcrypt.MinCost)
	require.NoError(t, err)
	return &Config{TerminalKeyHash: string(hash), RateLimitPerMinute: 1000}
}

func echoScope(w http.ResponseWriter, r *http.Request) {
	scope, ok := shared.ScopeFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("X-Scope", fmt.Sprintf("%d/%d", scope.ActorID, scope.BranchID))
	w.WriteHeader(http.StatusOK)
}

func apiHandler(t *testing.T) http.Handler {
	t.Helper()
	var h http.Handler = http.HandlerFunc(echoScope)
	mws := APIMiddleware(MiddlewareConfig{Config: testConfig(t)})
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func TestTerminalAuth(t *testing.T) {
	h := apiHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderTerminalKey, "wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderTerminalKey, terminalKey)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequestScopeFromHeaders(t *testing.T) {
	h := apiHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderTerminalKey, terminalKey)
	req.Header.Set(HeaderActorID, "3")
	req.Header.Set(HeaderBranchID, "7")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "3/7", rec.Header().Get("X-Scope"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderTerminalKey, terminalKey)
	req.Header.Set(HeaderActorID, "3")
	req.Header.Set(HeaderBranchID, "seven")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid_scope")
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestRouterProbesAndMetrics(t *testing.T) {
	router := NewRouter(RouterParams{
		Config:       testConfig(t),
		Metrics:      observability.NewMetrics(),
		SalesHandler: sales.NewHandler(nil, nil, nil),
		Readiness: map[string]Pinger{
			"postgres": pingFunc(func(context.Context) error { return nil }),
			"redis":    pingFunc(func(context.Context) error { return errors.New("refused") }),
		},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.JSONEq(t, `{"postgres":"up","redis":"down"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `settlement_http_requests_total{code="503",route="/readyz"} 1`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sales/", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
