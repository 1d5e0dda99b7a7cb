package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestRouter_Live(t *testing.T) {
	r := NewRouter(RouterConfig{}, HandlerSet{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, map[string]any{"status": "alive"}, decode(t, rec).Data)
}

func TestRouter_ReadyDegraded(t *testing.T) {
	r := NewRouter(RouterConfig{Checks: map[string]Check{
		"memory": func(context.Context) error { return nil },
		"redis":  func(context.Context) error { return errors.New("connection refused") },
	}}, HandlerSet{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, map[string]any{
		"status": "degraded",
		"memory": "healthy",
		"redis":  "unhealthy",
	}, decode(t, rec).Data)
}

func TestRouter_ReadyHealthy(t *testing.T) {
	r := NewRouter(RouterConfig{Checks: map[string]Check{
		"memory": func(context.Context) error { return nil },
	}}, HandlerSet{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_Metrics(t *testing.T) {
	r := NewRouter(RouterConfig{}, HandlerSet{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_CycleRoutesUseRateLimiter(t *testing.T) {
	var limited int
	limiter := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limited++
			next.ServeHTTP(w, r)
		})
	}
	r := NewRouter(RouterConfig{CycleRateLimiter: limiter}, HandlerSet{
		TriggerCycle: func(w http.ResponseWriter, r *http.Request) {
			JSONMessage(w, http.StatusAccepted, "outfit cycle started")
		},
		LastCycle: func(w http.ResponseWriter, r *http.Request) {
			JSON(w, http.StatusOK, map[string]string{"status": "submitted"})
		},
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cycles", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cycles/last", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 1, limited)
}

func TestRouter_NilHandlersNotRouted(t *testing.T) {
	r := NewRouter(RouterConfig{}, HandlerSet{})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/memories/abc", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
