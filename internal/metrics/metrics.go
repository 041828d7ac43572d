package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
)

// Metrics holds all Prometheus metrics for the indicator batch.
type Metrics struct {
	Registry *prometheus.Registry

	// Per unit
	UnitsTotal   *prometheus.CounterVec   // labels: tier, family, action, status
	UnitDuration *prometheus.HistogramVec // labels: family
	RowsComputed *prometheus.CounterVec   // labels: family

	// Per instrument
	InstrumentsTotal *prometheus.CounterVec // labels: result=processed|skipped|failed
	DroppedRows      prometheus.Counter

	// Per run
	RunsTotal        *prometheus.CounterVec // labels: result=success|failure
	RunDuration      prometheus.Gauge
	LastRunTimestamp prometheus.Gauge
	SuccessRatio     prometheus.Gauge
	CacheHitRate     prometheus.Gauge
	StaleSources     prometheus.Gauge
	Fallbacks        prometheus.Counter

	// Optional sinks
	SinkErrors               *prometheus.CounterVec // labels: sink
	RedisCircuitBreakerState prometheus.Gauge       // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
}

// NewMetrics creates all metrics on a private registry, so several runs in
// one process (tests) never collide on the global one.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		UnitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etfind_units_total",
			Help: "Indicator units processed, by tier, family, cache action and status",
		}, []string{"tier", "family", "action", "status"}),
		UnitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "etfind_unit_duration_seconds",
			Help:    "Wall time of one (tier, family, instrument) unit",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"family"}),
		RowsComputed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etfind_rows_computed_total",
			Help: "Indicator rows computed (not served from cache)",
		}, []string{"family"}),

		InstrumentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etfind_instruments_total",
			Help: "Instruments read from the source directory, by result",
		}, []string{"result"}),
		DroppedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "etfind_source_dropped_rows_total",
			Help: "Source rows dropped during cleaning",
		}),

		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etfind_runs_total",
			Help: "Batch runs, by result against the success-ratio threshold",
		}, []string{"result"}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "etfind_run_duration_seconds",
			Help: "Wall time of the last batch run",
		}),
		LastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "etfind_last_run_timestamp_seconds",
			Help: "Unix time the last batch run finished",
		}),
		SuccessRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "etfind_success_ratio",
			Help: "ok / (ok + failed) units in the last run",
		}),
		CacheHitRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "etfind_cache_hit_rate",
			Help: "Share of units in the last run served from cache unchanged",
		}),
		StaleSources: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "etfind_stale_sources",
			Help: "Instruments whose last bar lags the exchange calendar",
		}),
		Fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "etfind_merge_fallbacks_total",
			Help: "Incremental merges abandoned for a full recompute",
		}),

		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etfind_sink_errors_total",
			Help: "Errors from optional sinks (ledger, redis, postgres, textfile)",
		}, []string{"sink"}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "etfind_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "etfind_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
	}

	m.Registry.MustRegister(
		m.UnitsTotal,
		m.UnitDuration,
		m.RowsComputed,
		m.InstrumentsTotal,
		m.DroppedRows,
		m.RunsTotal,
		m.RunDuration,
		m.LastRunTimestamp,
		m.SuccessRatio,
		m.CacheHitRate,
		m.StaleSources,
		m.Fallbacks,
		m.SinkErrors,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
	)

	return m
}

// ObserveUnit records one finished unit. Safe for concurrent use.
func (m *Metrics) ObserveUnit(o model.UnitOutcome) {
	action := string(o.Action)
	if action == "" {
		action = "none"
	}
	m.UnitsTotal.WithLabelValues(o.Tier, o.Family, action, string(o.Status)).Inc()
	if o.Action == model.ActionRemoved {
		return
	}
	m.UnitDuration.WithLabelValues(o.Family).Observe(o.Duration.Seconds())
	if o.NewRows > 0 {
		m.RowsComputed.WithLabelValues(o.Family).Add(float64(o.NewRows))
	}
	if o.Fallback {
		m.Fallbacks.Inc()
	}
}

// ObserveInstrument records the read/filter result of one instrument.
func (m *Metrics) ObserveInstrument(r model.InstrumentReport) {
	switch {
	case r.Skipped:
		m.InstrumentsTotal.WithLabelValues("skipped").Inc()
	case r.Err != "":
		m.InstrumentsTotal.WithLabelValues("failed").Inc()
	default:
		m.InstrumentsTotal.WithLabelValues("processed").Inc()
	}
	m.DroppedRows.Add(float64(r.Dropped))
}

// ObserveRun records the run-level gauges.
func (m *Metrics) ObserveRun(s *model.RunSummary, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.RunsTotal.WithLabelValues(result).Inc()
	m.RunDuration.Set(s.Finished.Sub(s.Started).Seconds())
	m.LastRunTimestamp.Set(float64(s.Finished.Unix()))
	m.SuccessRatio.Set(s.SuccessRatio())
	m.CacheHitRate.Set(s.HitRate())
	m.StaleSources.Set(float64(s.StaleSources))
}

// SinkError counts a failure of an optional sink.
func (m *Metrics) SinkError(sink string) {
	m.SinkErrors.WithLabelValues(sink).Inc()
}

// WriteTextfile dumps the registry for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}

// HealthStatus represents the state of the batch process.
type HealthStatus struct {
	mu sync.RWMutex

	Running        bool      `json:"running"`
	RunID          string    `json:"run_id"`
	LastRunAt      time.Time `json:"last_run_at"`
	LastRunOK      bool      `json:"last_run_ok"`
	SuccessRatio   float64   `json:"success_ratio"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`

	// Liveness check results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetRunning(runID string) {
	h.mu.Lock()
	h.Running = true
	h.RunID = runID
	h.mu.Unlock()
}

func (h *HealthStatus) SetFinished(s *model.RunSummary, ok bool) {
	h.mu.Lock()
	h.Running = false
	h.LastRunAt = s.Finished
	h.LastRunOK = ok
	h.SuccessRatio = s.SuccessRatio()
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the ledger and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// ServeHTTP handles the /healthz endpoint. A failed last run reports 503.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	switch {
	case h.Running:
		overallStatus = "running"
	case h.LastRunAt.IsZero():
		overallStatus = "idle"
	case !h.LastRunOK:
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		RunID           string  `json:"run_id"`
		LastRunAt       string  `json:"last_run_at"`
		SuccessRatio    float64 `json:"success_ratio"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RunID:           h.RunID,
		LastRunAt:       h.LastRunAt.Format(time.RFC3339),
		SuccessRatio:    h.SuccessRatio,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server over m's registry.
func NewServer(addr string, m *Metrics, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Handler exposes the mux, mainly for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
