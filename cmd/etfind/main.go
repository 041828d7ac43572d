// cmd/etfind computes technical-indicator tables for every ETF daily-bar file
// in the source directory, per liquidity tier, reusing cached results where
// the source has not changed and extending them where only new bars arrived.
//
// Usage:
//
//	go run ./cmd/etfind --source=data/daily --out=data/indicators --families="SMA:5,10,20,60;RSI:6,12,24"
//	go run ./cmd/etfind --history=10
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/config"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/apperr"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/cache"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/indicator"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/logger"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/metrics"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/output"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/pipeline"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/source"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/store/postgres"
	redisstore "github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/store/redis"
	sqlitestore "github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/store/sqlite"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/tier"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitConfig = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	// Flags override the environment
	configFile := flag.String("config", "", "YAML file with families and tiers (ETF_CONFIG_FILE)")
	sourceDir := flag.String("source", "", "Directory of per-instrument daily bar files (ETF_SOURCE_DIR)")
	outDir := flag.String("out", "", "Output root (ETF_OUTPUT_DIR)")
	cacheDir := flag.String("cache", "", "Cache root (ETF_CACHE_DIR)")
	families := flag.String("families", "", `Families, e.g. "SMA:5,10;RSI:6;OBV" (ETF_FAMILIES)`)
	format := flag.String("format", "", "Output format: csv or parquet (ETF_FORMAT)")
	workers := flag.Int("workers", 0, "Concurrent instruments (ETF_WORKERS)")
	history := flag.Int("history", 0, "Print the last N recorded runs and exit")
	unit := flag.String("unit", "", "With --history: print outcomes of CODE:FAMILY instead")
	flag.Parse()

	if *configFile != "" {
		os.Setenv("ETF_CONFIG_FILE", *configFile)
	}
	if *families != "" {
		os.Setenv("ETF_FAMILIES", *families)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Printf("[etfind] config: %v", err)
		return exitConfig
	}
	overrideString(&cfg.SourceDir, *sourceDir)
	overrideString(&cfg.OutputDir, *outDir)
	overrideString(&cfg.CacheDir, *cacheDir)
	overrideString(&cfg.Format, *format)
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if err := cfg.Validate(); err != nil {
		log.Printf("[etfind] config: %v", err)
		return exitConfig
	}

	lg := logger.Init("etfind", logger.ParseLevel(cfg.LogLevel))

	if *history > 0 {
		return printHistory(cfg.SQLitePath, *history, *unit)
	}

	defs, err := indicator.BuildAll(cfg.FamilySpecs, cfg.Precision)
	if err != nil {
		log.Printf("[etfind] families: %v", err)
		return exitConfig
	}
	for _, d := range defs {
		lg.Debug("family", "definition", d.String(), "fingerprint", d.Fingerprint())
	}

	var lists tier.AllowLists
	if cfg.AllowListDir != "" {
		lists = tier.DirAllowLists{Dir: cfg.AllowListDir}
	}
	filter, err := tier.NewFilter(cfg.Tiers, cfg.TurnoverWindow, lists)
	if err != nil {
		log.Printf("[etfind] tiers: %v", err)
		return exitConfig
	}
	out, err := output.NewWriter(cfg.Format, cfg.OutputDir, cfg.Precision)
	if err != nil {
		log.Printf("[etfind] output: %v", err)
		return exitConfig
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	runID := logger.NewRunID()
	ctx = logger.WithRunID(ctx, runID)

	// Metrics + health
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr, prom, health)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			srv.Stop(shutdownCtx)
		}()
	}

	deps := pipeline.Deps{
		Source:      source.Dir{Path: cfg.SourceDir, Ext: "." + strings.TrimPrefix(cfg.SourceExt, ".")},
		Filter:      filter,
		Definitions: defs,
		Cache:       cache.New(cfg.CacheDir, cfg.Precision, cfg.FreshnessTolerance),
		Output:      out,
		Clock:       source.NewSessionClock(cfg.MIC),
		Metrics:     prom,
		Logger:      lg,
	}

	// Optional sinks: a sink that cannot be opened is logged and skipped
	if cfg.SQLitePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			log.Printf("[etfind] sqlite dir: %v", err)
		}
		ledger, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
		if err != nil {
			log.Printf("[etfind] run ledger disabled: %v", err)
			prom.SinkError("sqlite")
		} else {
			defer ledger.Close()
			health.CheckSQLite(ctx, ledger.DB())
			deps.Recorder = ledger
		}
	}
	if cfg.RedisAddr != "" {
		pub, err := redisstore.New(redisstore.WriterConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			LatestTTL: cfg.RedisLatestTTL,
			Precision: cfg.Precision,
		})
		if err != nil {
			log.Printf("[etfind] redis publisher disabled: %v", err)
			prom.SinkError("redis")
		} else {
			defer pub.Close()
			pub.Breaker().OnStateChange = func(from, to redisstore.State) {
				log.Printf("[redis] circuit breaker %s -> %s", from, to)
				prom.RedisCircuitBreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					prom.RedisCircuitBreakerTrips.Inc()
				}
			}
			health.CheckRedis(ctx, pub.Client())
			deps.Publisher = pub
		}
	}
	if cfg.PostgresDSN != "" {
		sink, err := postgres.New(ctx, postgres.Config{DSN: cfg.PostgresDSN, Table: cfg.PostgresTable, Precision: cfg.Precision})
		if err != nil {
			log.Printf("[etfind] postgres sink disabled: %v", err)
			prom.SinkError("postgres")
		} else {
			defer sink.Close()
			deps.Sink = sink
		}
	}

	p, err := pipeline.New(deps, pipeline.Options{
		Workers:         cfg.Workers,
		MinSuccessRatio: cfg.MinSuccessRatio,
		MaxLagSessions:  cfg.MaxLagSessions,
		AllowListOut:    cfg.AllowListOut,
	})
	if err != nil {
		log.Printf("[etfind] %v", err)
		return exitConfig
	}

	health.SetRunning(runID)
	summary, err := p.Run(ctx)
	if err != nil {
		lg.Error("batch aborted", append(logger.LogWithRun(ctx), "error", err, "kind", apperr.KindOf(err))...)
		return exitFailed
	}
	code := p.ExitCode(summary)
	health.SetFinished(summary, code == exitOK)

	if cfg.MetricsTextfile != "" {
		if err := prom.WriteTextfile(cfg.MetricsTextfile); err != nil {
			log.Printf("[etfind] metrics textfile: %v", err)
		}
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		log.Printf("[etfind] interrupted; finished units are kept")
	}

	printSummary(summary)
	return code
}

func overrideString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func printSummary(s *model.RunSummary) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════╗")
	fmt.Println("║        INDICATOR BATCH COMPLETE      ║")
	fmt.Println("╠══════════════════════════════════════╣")
	fmt.Printf("║  Instruments:       %-16d ║\n", s.Instruments)
	fmt.Printf("║  Units ok/failed:   %-16s ║\n", fmt.Sprintf("%d/%d", s.OK, s.Failed))
	fmt.Printf("║  Skipped:           %-16d ║\n", s.Skipped)
	fmt.Printf("║  Removed:           %-16d ║\n", s.Removed)
	fmt.Printf("║  Hit/extend/full:   %-16s ║\n", fmt.Sprintf("%d/%d/%d", s.Hits, s.Extends, s.Full))
	fmt.Printf("║  Stale sources:     %-16d ║\n", s.StaleSources)
	fmt.Printf("║  Success ratio:     %-16s ║\n", fmt.Sprintf("%.4f", s.SuccessRatio()))
	fmt.Printf("║  Duration:          %-16s ║\n", s.Finished.Sub(s.Started).Round(time.Millisecond))
	fmt.Println("╚══════════════════════════════════════╝")
}

func printHistory(dbPath string, n int, unit string) int {
	if dbPath == "" {
		log.Printf("[etfind] --history needs ETF_SQLITE_PATH")
		return exitConfig
	}
	r, err := sqlitestore.NewReader(dbPath)
	if err != nil {
		log.Printf("[etfind] %v", err)
		return exitFailed
	}
	defer r.Close()
	ctx := context.Background()

	if unit != "" {
		code, family, ok := strings.Cut(unit, ":")
		if !ok {
			log.Printf("[etfind] --unit wants CODE:FAMILY, got %q", unit)
			return exitConfig
		}
		recs, err := r.UnitHistory(ctx, code, strings.ToUpper(family), n)
		if err != nil {
			log.Printf("[etfind] %v", err)
			return exitFailed
		}
		for _, u := range recs {
			fmt.Printf("%s  %-12s %-8s %-20s rows=%-6d last=%s %s\n",
				u.RunID, u.Tier, u.Status, u.Action, u.Rows, u.LastDate, u.Reason)
		}
		return exitOK
	}

	runs, err := r.RecentRuns(ctx, n)
	if err != nil {
		log.Printf("[etfind] %v", err)
		return exitFailed
	}
	for _, rec := range runs {
		fmt.Printf("%s  %s  instruments=%-5d ok=%-6d failed=%-4d skipped=%-4d hit/ext/full=%d/%d/%d ratio=%.4f\n",
			rec.RunID, rec.Started.Format(model.TimestampLayout), rec.Instruments, rec.OK, rec.Failed,
			rec.Skipped, rec.Hits, rec.Extends, rec.Full, rec.SuccessRatio)
	}
	return exitOK
}
