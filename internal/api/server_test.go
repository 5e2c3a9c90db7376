package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leverrun/leverrun/internal/config"
	"github.com/leverrun/leverrun/internal/engine"
	"github.com/leverrun/leverrun/internal/metrics"
	"github.com/leverrun/leverrun/internal/portfolio"
)

type staticProvider struct{ snap engine.Snapshot }

func (p staticProvider) Snapshot() engine.Snapshot { return p.snap }

func testServer(snap engine.Snapshot) *Server {
	return NewServer(config.Default().API, staticProvider{snap: snap}, metrics.New(), zerolog.Nop())
}

func TestHealth(t *testing.T) {
	srv := testServer(engine.Snapshot{Cycle: 7})
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(7), body["cycle"])
}

func TestSnapshot(t *testing.T) {
	snap := engine.Snapshot{
		Timestamp: time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC),
		Cycle:     3,
		Portfolio: portfolio.Summary{TotalValue: 40123.45, RiskLabel: "medium"},
	}
	srv := testServer(snap)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/snapshot", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got engine.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, uint64(3), got.Cycle)
	assert.Equal(t, 40123.45, got.Portfolio.TotalValue)
	assert.Equal(t, "medium", got.Portfolio.RiskLabel)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(engine.Snapshot{})
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNotFound(t *testing.T) {
	srv := testServer(engine.Snapshot{})
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "/nope", body["path"])
}

func TestSnapshotIsReadOnly(t *testing.T) {
	srv := testServer(engine.Snapshot{})
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/snapshot", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
