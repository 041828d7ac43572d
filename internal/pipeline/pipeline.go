// Package pipeline runs one batch: it lists the instruments, fans them out to
// a bounded pool of workers (one job per instrument, every unit of that
// instrument handled sequentially inside the job), then merges the per-job
// results and feeds the run-level sinks from a single goroutine.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/apperr"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/cache"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/indicator"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/logger"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/merge"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/metrics"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/output"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/source"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/tier"
)

// Source is where instrument bars come from.
type Source interface {
	source.Lister
	source.FreshnessOracle
	Read(code string) ([]model.Bar, source.ReadStats, error)
}

// Deps are the collaborators of a Pipeline. Source, Filter, Definitions,
// Cache and Output are required; the rest are optional.
type Deps struct {
	Source      Source
	Filter      *tier.Filter
	Definitions []*indicator.Definition
	Cache       *cache.Manager
	Output      output.Writer

	Clock     *source.SessionClock
	Metrics   *metrics.Metrics
	Recorder  model.RunRecorder
	Publisher model.LatestPublisher
	Sink      model.TableSink
	Logger    *slog.Logger
}

// Options tune a Pipeline.
type Options struct {
	Workers         int
	MinSuccessRatio float64
	MaxLagSessions  int
	AllowListOut    string // directory for computed allow-lists; empty disables
	Now             func() time.Time
}

// Pipeline is one configured batch. Run may be called repeatedly.
type Pipeline struct {
	d    Deps
	opts Options
	ctrl *merge.Controller
	log  *slog.Logger
}

// New validates deps and returns a Pipeline.
func New(d Deps, opts Options) (*Pipeline, error) {
	switch {
	case d.Source == nil:
		return nil, errors.New("pipeline: source is required")
	case d.Filter == nil:
		return nil, errors.New("pipeline: tier filter is required")
	case len(d.Definitions) == 0:
		return nil, errors.New("pipeline: no indicator definitions")
	case d.Cache == nil || d.Output == nil:
		return nil, errors.New("pipeline: cache and output are required")
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	lg := d.Logger
	if lg == nil {
		lg = slog.Default()
	}
	return &Pipeline{d: d, opts: opts, ctrl: merge.NewController(d.Cache, lg), log: lg}, nil
}

// Succeeded reports whether a run met the success-ratio threshold.
func (p *Pipeline) Succeeded(s *model.RunSummary) bool {
	return s.SuccessRatio() >= p.opts.MinSuccessRatio
}

// Run executes one batch. A listing failure aborts the run; every other
// failure is confined to its instrument or unit and reported in the summary.
// Cancelling ctx stops new instruments from being scheduled.
func (p *Pipeline) Run(ctx context.Context) (*model.RunSummary, error) {
	runID := logger.RunID(ctx)
	if runID == "" {
		runID = logger.NewRunID()
		ctx = logger.WithRunID(ctx, runID)
	}
	started := p.opts.Now()
	calcTime := started.Truncate(time.Second)

	codes, err := p.d.Source.List(ctx)
	if err != nil {
		return nil, apperr.NewDataUnavailable("list instruments", err)
	}
	p.log.Info("batch started", append(logger.LogWithRun(ctx),
		"instruments", len(codes), "families", len(p.d.Definitions), "workers", p.opts.Workers)...)

	// each job owns its slot; nothing is shared between workers
	reports := make([]model.InstrumentReport, len(codes))
	done := make([]bool, len(codes))

	var g errgroup.Group
	g.SetLimit(p.opts.Workers)
	for i, code := range codes {
		if ctx.Err() != nil {
			break
		}
		i, code := i, code
		g.Go(func() error {
			reports[i] = p.processInstrument(ctx, code, calcTime)
			done[i] = true
			return nil
		})
	}
	_ = g.Wait()

	summary := &model.RunSummary{RunID: runID, Started: started}
	notRun := 0
	for i := range reports {
		if !done[i] {
			notRun++
			continue
		}
		summary.Add(reports[i])
	}
	summary.Finished = p.opts.Now()
	if notRun > 0 {
		p.log.Warn("batch cancelled before all instruments were scheduled",
			append(logger.LogWithRun(ctx), "not_run", notRun)...)
	}

	p.finish(ctx, summary)
	return summary, nil
}

// finish feeds every run-level sink. It runs after all workers are done.
func (p *Pipeline) finish(ctx context.Context, s *model.RunSummary) {
	// sinks still get a chance to record a cancelled run
	sinkCtx := context.WithoutCancel(ctx)

	for tierName, fams := range cache.TallyOutcomes(s.Outcomes) {
		if err := p.d.Cache.FlushStats(tierName, fams, s.RunID, s.Finished); err != nil {
			p.sinkFailed(ctx, "cache_meta", err)
		}
	}

	if p.opts.AllowListOut != "" {
		members := tier.Membership{}
		for _, r := range s.Reports {
			members.Add(r.Code, r.Tiers)
		}
		for _, t := range p.d.Filter.Tiers() {
			if err := tier.WriteAllowList(p.opts.AllowListOut, t.Name, members.Sorted(t.Name), t.MinTurnover, s.Finished); err != nil {
				p.sinkFailed(ctx, "allowlist", err)
			}
		}
	}

	ok := p.Succeeded(s)
	if m := p.d.Metrics; m != nil {
		for _, r := range s.Reports {
			m.ObserveInstrument(r)
		}
		m.ObserveRun(s, ok)
	}
	if p.d.Recorder != nil {
		if err := p.d.Recorder.RecordRun(sinkCtx, s); err != nil {
			p.sinkFailed(ctx, "sqlite", err)
		}
	}
	if p.d.Publisher != nil {
		if err := p.d.Publisher.PublishLatest(sinkCtx, s.Outcomes); err != nil {
			p.sinkFailed(ctx, "redis", err)
		} else if err := p.d.Publisher.PublishSummary(sinkCtx, s); err != nil {
			p.sinkFailed(ctx, "redis", err)
		}
	}

	level := slog.LevelInfo
	if !ok {
		level = slog.LevelError
	}
	p.log.Log(ctx, level, "batch finished", append(logger.LogWithRun(ctx),
		"instruments", s.Instruments, "units", s.Units, "ok", s.OK, "failed", s.Failed,
		"skipped", s.Skipped, "removed", s.Removed, "hits", s.Hits, "extends", s.Extends,
		"full", s.Full, "fallbacks", s.Fallbacks, "stale_sources", s.StaleSources,
		"success_ratio", fmt.Sprintf("%.4f", s.SuccessRatio()),
		"duration", s.Finished.Sub(s.Started).Round(time.Millisecond).String())...)
}

func (p *Pipeline) sinkFailed(ctx context.Context, sink string, err error) {
	p.log.Warn("sink failed", append(logger.LogWithRun(ctx), "sink", sink, "error", err)...)
	if p.d.Metrics != nil {
		p.d.Metrics.SinkError(sink)
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ExitCode maps a summary to the process exit status: 0 when the run met
// the success threshold, 1 otherwise.
func (p *Pipeline) ExitCode(s *model.RunSummary) int {
	if p.Succeeded(s) {
		return 0
	}
	log.Printf("[pipeline] success ratio %.4f below threshold %.4f", s.SuccessRatio(), p.opts.MinSuccessRatio)
	return 1
}
