package metrics

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
)

func TestObserveUnitAndInstrument(t *testing.T) {
	m := NewMetrics()
	m.ObserveUnit(model.UnitOutcome{Tier: "a", Family: "SMA", Status: model.UnitOK,
		Action: model.ActionIncrementalExtend, NewRows: 3, Fallback: true, Duration: time.Millisecond})
	m.ObserveUnit(model.UnitOutcome{Tier: "a", Family: "SMA", Status: model.UnitOK, Action: model.ActionCacheHit})
	m.ObserveUnit(model.UnitOutcome{Tier: "a", Family: "RSI", Status: model.UnitOK, Action: model.ActionRemoved})
	m.ObserveUnit(model.UnitOutcome{Tier: "a", Family: "RSI", Status: model.UnitSkipped})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnitsTotal.WithLabelValues("a", "SMA", "incremental_extend", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnitsTotal.WithLabelValues("a", "RSI", "removed", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UnitsTotal.WithLabelValues("a", "RSI", "none", "skipped")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.RowsComputed.WithLabelValues("SMA")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Fallbacks))

	m.ObserveInstrument(model.InstrumentReport{Code: "1", Dropped: 2})
	m.ObserveInstrument(model.InstrumentReport{Code: "2", Skipped: true})
	m.ObserveInstrument(model.InstrumentReport{Code: "3", Err: "boom"})
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InstrumentsTotal.WithLabelValues("processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InstrumentsTotal.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InstrumentsTotal.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DroppedRows))
}

func TestObserveRunAndTextfile(t *testing.T) {
	m := NewMetrics()
	t0 := time.Date(2024, 6, 3, 18, 0, 0, 0, time.UTC)
	s := &model.RunSummary{Started: t0, Finished: t0.Add(90 * time.Second), OK: 3, Failed: 1, Hits: 2, Full: 2, StaleSources: 1}
	m.ObserveRun(s, false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("failure")))
	assert.Equal(t, 90.0, testutil.ToFloat64(m.RunDuration))
	assert.Equal(t, 0.75, testutil.ToFloat64(m.SuccessRatio))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.CacheHitRate))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StaleSources))

	path := filepath.Join(t.TempDir(), "etfind.prom")
	require.NoError(t, m.WriteTextfile(path))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "etfind_success_ratio 0.75")
}

func TestServer_MetricsAndHealth(t *testing.T) {
	m := NewMetrics()
	m.SinkError("redis")
	h := NewHealthStatus()
	srv := NewServer(":0", m, h)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `etfind_sink_errors_total{sink="redis"} 1`)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"idle"`)

	h.SetRunning("run-1")
	s := &model.RunSummary{Finished: time.Now(), OK: 1, Failed: 9}
	h.SetFinished(s, false)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `"run_id":"run-1"`))
}
