package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthChecker_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(h *HealthChecker)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "ready",
			setup:      func(*HealthChecker) {},
			wantStatus: http.StatusOK,
			wantBody:   healthStatusOK,
		},
		{
			name:       "not ready",
			setup:      func(h *HealthChecker) { h.SetReady(false) },
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   healthStatusNotReady,
		},
		{
			name:       "shutting down",
			setup:      func(h *HealthChecker) { h.SetShuttingDown() },
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   healthStatusNotReady,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker()
			tt.setup(h)

			rec := httptest.NewRecorder()
			h.ReadinessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantBody, resp.Status)
		})
	}
}

func TestHealthChecker_Liveness(t *testing.T) {
	h := NewHealthChecker()
	h.SetReady(false)

	rec := httptest.NewRecorder()
	h.LivenessHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthChecker_DetailedTracksRuns(t *testing.T) {
	h := NewHealthChecker()
	fixed := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return fixed }

	get := func() DetailedHealthResponse {
		rec := httptest.NewRecorder()
		h.DetailedHealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz/detailed", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		var resp DetailedHealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp
	}

	resp := get()
	assert.Equal(t, healthStatusOK, resp.Status)
	assert.Nil(t, resp.LastRun)

	h.RecordRun(errors.New("lock acquisition timed out"))
	resp = get()
	assert.Equal(t, healthStatusDegraded, resp.Status)
	assert.Equal(t, 1, resp.Runs)
	assert.Equal(t, "lock acquisition timed out", resp.LastError)
	require.NotNil(t, resp.LastRun)
	assert.True(t, fixed.Equal(*resp.LastRun))

	h.RecordRun(nil)
	resp = get()
	assert.Equal(t, healthStatusOK, resp.Status)
	assert.Equal(t, 2, resp.Runs)
	assert.Empty(t, resp.LastError)
}
