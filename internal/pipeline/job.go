package pipeline

import (
	"context"
	"time"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/apperr"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/logger"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/merge"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
)

// processInstrument is one worker job: read, classify, drop departed tiers,
// then resolve and write every (tier, family) unit in order.
func (p *Pipeline) processInstrument(ctx context.Context, code string, calcTime time.Time) model.InstrumentReport {
	rep := model.InstrumentReport{Code: code}
	attrs := append(logger.LogWithRun(ctx), "code", code)

	bars, stats, err := p.d.Source.Read(code)
	rep.Dropped = stats.Dropped
	if err != nil {
		rep.Err = err.Error()
		rep.ErrKind = string(apperr.KindOf(err))
		rep.Skipped = apperr.IsSkip(err)
		if rep.Skipped {
			p.log.Info("instrument skipped", append(attrs, "reason", err)...)
		} else {
			p.log.Error("instrument read failed", append(attrs, "error", err)...)
		}
		return rep
	}
	rep.Bars = len(bars)
	if stats.Dropped > 0 {
		p.log.Debug("source rows dropped", append(attrs, "dropped", stats.Dropped, "reasons", stats.Reasons)...)
	}

	token, err := p.d.Source.Token(code)
	if err != nil {
		p.log.Warn("no freshness token, treating source as just modified", append(attrs, "error", err)...)
		token = calcTime
	}

	if p.d.Clock != nil {
		rep.LagSessions = p.d.Clock.Lag(model.LastDate(bars), p.opts.Now())
		if p.opts.MaxLagSessions > 0 && rep.LagSessions > p.opts.MaxLagSessions {
			rep.StaleSource = true
			p.log.Warn("source lags exchange calendar", append(attrs,
				"last_bar", model.FormatDate(model.LastDate(bars)), "sessions", rep.LagSessions)...)
		}
	}

	rep.AvgTurnover, rep.Tiers = p.d.Filter.Classify(code, bars)
	member := make(map[string]bool, len(rep.Tiers))
	for _, t := range rep.Tiers {
		member[t] = true
	}

	for _, t := range p.d.Filter.Tiers() {
		if member[t.Name] {
			continue
		}
		for _, def := range p.d.Definitions {
			if o, ok := p.removeUnit(ctx, t.Name, def.Family, code); ok {
				rep.UnitOutcomes = append(rep.UnitOutcomes, o)
			}
		}
	}

	for _, tierName := range rep.Tiers {
		for _, def := range p.d.Definitions {
			req := merge.Request{
				Def: def, Tier: tierName, Code: code, Bars: bars,
				Token: token, CalcTime: calcTime, RunID: logger.RunID(ctx),
			}
			rep.UnitOutcomes = append(rep.UnitOutcomes, p.processUnit(ctx, req))
		}
	}
	return rep
}

// processUnit resolves one unit against the cache, writes the artifact and
// updates the cache. Failures are recorded, never returned.
func (p *Pipeline) processUnit(ctx context.Context, req merge.Request) (o model.UnitOutcome) {
	start := time.Now()
	def := req.Def
	o = model.UnitOutcome{Code: req.Code, Tier: req.Tier, Family: def.Family, Fields: def.Fields, Status: model.UnitOK}
	attrs := append(logger.LogWithRun(ctx), "code", req.Code, "tier", req.Tier, "family", def.Family)
	defer func() {
		o.Duration = time.Since(start)
		if p.d.Metrics != nil {
			p.d.Metrics.ObserveUnit(o)
		}
	}()

	fail := func(msg string, err error) model.UnitOutcome {
		o.Reason = err.Error()
		o.ErrKind = string(apperr.KindOf(err))
		if apperr.IsSkip(err) {
			o.Status = model.UnitSkipped
			p.log.Info(msg, append(attrs, "reason", err)...)
		} else {
			o.Status = model.UnitFailed
			p.log.Error(msg, append(attrs, "error", err)...)
		}
		return o
	}

	res, err := p.ctrl.Resolve(ctx, req)
	if err != nil {
		return fail("unit not computed", err)
	}
	o.Action = res.Action
	o.Reason = res.Reason
	o.Fallback = res.Fallback
	o.NewRows = res.NewRows
	o.Rows = len(res.Table.Rows)
	if last, ok := res.Table.Latest(); ok {
		o.Latest = &last
	}

	if res.Action != model.ActionCacheHit || !fileExists(p.d.Output.Path(req.Tier, def.Family, req.Code)) {
		if _, err := p.d.Output.Write(req.Tier, res.Table); err != nil {
			return fail("write output", err)
		}
	}
	if err := p.ctrl.Commit(req, res); err != nil {
		return fail("update cache", err)
	}

	if p.d.Sink != nil && res.Action != model.ActionCacheHit {
		if err := p.d.Sink.SyncTable(ctx, req.Tier, res.Table); err != nil {
			p.sinkFailed(ctx, "postgres", err)
		}
	}

	p.log.Debug("unit done", append(attrs, "action", res.Action, "state", res.State,
		"rows", o.Rows, "new_rows", o.NewRows, "reason", res.Reason)...)
	return o
}

// removeUnit deletes the artifact, cache entry and mirrored rows of an
// instrument that is no longer in a tier. It reports nothing when there was
// nothing to remove.
func (p *Pipeline) removeUnit(ctx context.Context, tierName, family, code string) (model.UnitOutcome, bool) {
	hadOutput := fileExists(p.d.Output.Path(tierName, family, code))
	hadCache := p.d.Cache.Exists(family, tierName, code)
	if !hadOutput && !hadCache {
		return model.UnitOutcome{}, false
	}
	o := model.UnitOutcome{Code: code, Tier: tierName, Family: family, Status: model.UnitOK,
		Action: model.ActionRemoved, Reason: "left tier"}

	if err := p.d.Output.Remove(tierName, family, code); err != nil {
		o.Status, o.Reason, o.ErrKind = model.UnitFailed, err.Error(), string(apperr.KindOf(err))
	}
	if err := p.d.Cache.Remove(family, tierName, code); err != nil && o.Status == model.UnitOK {
		o.Status, o.Reason, o.ErrKind = model.UnitFailed, err.Error(), string(apperr.KindOf(err))
	}
	if p.d.Sink != nil {
		if err := p.d.Sink.DeleteTable(ctx, tierName, family, code); err != nil {
			p.sinkFailed(ctx, "postgres", err)
		}
	}
	if p.d.Metrics != nil {
		p.d.Metrics.ObserveUnit(o)
	}
	p.log.Info("instrument left tier", append(logger.LogWithRun(ctx), "code", code, "tier", tierName,
		"family", family, "status", o.Status)...)
	return o, true
}
