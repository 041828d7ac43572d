// Package merge decides, per (tier, family, instrument), whether a cached
// table can be reused, extended with the bars that arrived since, or must be
// recomputed, and carries out that decision.
package merge

import (
	"context"
	"log/slog"
	"time"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/apperr"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/cache"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/indicator"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/logger"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
)

// State is the cache state observed for one unit.
type State string

const (
	StateNoCache        State = "NO_CACHE"
	StateValidNoNewData State = "VALID_NO_NEW_DATA"
	StateValidNewData   State = "VALID_NEW_DATA"
	StateInvalid        State = "INVALID"
)

// ActionFor maps a state to the action taken on it.
func ActionFor(s State) model.Action {
	switch s {
	case StateValidNoNewData:
		return model.ActionCacheHit
	case StateValidNewData:
		return model.ActionIncrementalExtend
	default:
		return model.ActionFullRecompute
	}
}

// Request describes one unit of work.
type Request struct {
	Def      *indicator.Definition
	Tier     string
	Code     string
	Bars     []model.Bar // clean, ascending, deduplicated
	Token    time.Time   // source freshness token
	CalcTime time.Time
	RunID    string
}

// Result is the resolved table plus what Commit needs to persist it.
type Result struct {
	Table    *model.Table
	State    State
	Action   model.Action
	Reason   string
	NewRows  int
	Fallback bool // an extend was abandoned for a full recompute

	checkpoint indicator.Checkpoint
	digest     string
}

// Controller resolves units against the cache.
type Controller struct {
	cache *cache.Manager
	log   *slog.Logger
}

// NewController returns a Controller over m. A nil logger uses slog.Default.
func NewController(m *cache.Manager, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{cache: m, log: log}
}

// Classify inspects the cache entry for req and returns its state and, for
// anything other than a usable entry, the reason.
func (c *Controller) Classify(req Request) (State, *cache.Entry, string) {
	entry, err := c.cache.Get(req.Def.Family, req.Tier, req.Code)
	if err != nil {
		return StateInvalid, nil, err.Error()
	}
	if entry == nil {
		return StateNoCache, nil, "no cache entry"
	}
	if ok, reason := c.cache.IsValid(entry, req.Token, req.Def.Fingerprint()); !ok {
		return StateInvalid, entry, reason
	}
	if err := entry.Meta.Checkpoint.Validate(req.Def); err != nil {
		return StateInvalid, entry, "checkpoint: " + err.Error()
	}
	if len(req.Bars) == 0 {
		return StateInvalid, entry, "no raw bars"
	}

	last := entry.Table.LastDate()
	rawMax := model.LastDate(req.Bars)
	switch {
	case rawMax.Before(last):
		return StateInvalid, entry, "raw history ends before cached last date"
	case PrefixDigest(req.Bars, last) != entry.Meta.PrefixDigest:
		return StateInvalid, entry, "history up to cached last date changed"
	case rawMax.Equal(last):
		return StateValidNoNewData, entry, ""
	default:
		return StateValidNewData, entry, ""
	}
}

// Resolve produces the table for req. It does not touch the cache; call
// Commit once the table has been written.
func (c *Controller) Resolve(ctx context.Context, req Request) (*Result, error) {
	state, entry, reason := c.Classify(req)
	res := &Result{State: state, Action: ActionFor(state), Reason: reason}

	switch state {
	case StateValidNoNewData:
		res.Table = entry.Table
		return res, nil

	case StateValidNewData:
		err := c.extend(req, entry, res)
		if err == nil {
			return res, nil
		}
		c.log.Warn("incremental extend abandoned, recomputing",
			append(logger.LogWithRun(ctx),
				"code", req.Code, "tier", req.Tier, "family", req.Def.Family,
				"kind", apperr.KindOf(err), "error", err)...)
		res.Fallback = true
		res.Action = model.ActionFullRecompute
		res.Reason = err.Error()
	}

	if err := c.full(req, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (c *Controller) full(req Request, res *Result) error {
	out := indicator.Compute(req.Def, req.Code, req.Bars, req.CalcTime)
	if out.Status != indicator.StatusOK {
		return apperr.NewInsufficientHistory("not enough bars for "+req.Def.Family).
			With("bars", len(req.Bars)).With("need", req.Def.MinBars)
	}
	t := out.Table
	res.Table = &t
	res.NewRows = len(t.Rows)
	res.checkpoint = out.Checkpoint
	res.digest = PrefixDigest(req.Bars, out.Checkpoint.LastDate)
	return nil
}

func (c *Controller) extend(req Request, entry *cache.Entry, res *Result) error {
	last := entry.Table.LastDate()
	start := len(req.Bars)
	for i, b := range req.Bars {
		if b.Date.After(last) {
			start = i
			break
		}
	}
	fresh := req.Bars[start:]

	out, err := indicator.Extend(req.Def, entry.Meta.Checkpoint, req.Code, fresh, req.CalcTime)
	if err != nil {
		return apperr.New(apperr.KindCacheCorrupt, "extend from checkpoint", err)
	}
	merged := Splice(entry.Table, &out.Table)
	if err := CheckContinuity(merged, req.Bars); err != nil {
		return err
	}
	res.Table = merged
	res.NewRows = len(out.Table.Rows)
	res.checkpoint = out.Checkpoint
	res.digest = PrefixDigest(req.Bars, out.Checkpoint.LastDate)
	return nil
}

// Commit stores a recomputed or extended table. Cache hits are left as they are.
func (c *Controller) Commit(req Request, res *Result) error {
	if res.Action == model.ActionCacheHit {
		return nil
	}
	return c.cache.Put(&cache.Entry{
		Table: res.Table,
		Meta: cache.Meta{
			Tier:           req.Tier,
			Fingerprint:    req.Def.Fingerprint(),
			FreshnessToken: req.Token,
			PrefixDigest:   res.digest,
			Checkpoint:     res.checkpoint,
			RunID:          req.RunID,
			UpdatedAt:      req.CalcTime,
		},
	})
}

// Splice appends fresh rows to the cached prefix. Where dates collide the
// fresh row wins.
func Splice(cached, fresh *model.Table) *model.Table {
	out := &model.Table{Family: cached.Family, Code: cached.Code, Fields: cached.Fields}
	if fresh.Code != "" {
		out.Code = fresh.Code
	}
	cut := len(cached.Rows)
	if len(fresh.Rows) > 0 {
		first := fresh.Rows[0].Date
		for i, r := range cached.Rows {
			if !r.Date.Before(first) {
				cut = i
				break
			}
		}
	}
	out.Rows = make([]model.Row, 0, cut+len(fresh.Rows))
	out.Rows = append(out.Rows, cached.Rows[:cut]...)
	out.Rows = append(out.Rows, fresh.Rows...)
	return out
}

// CheckContinuity requires the merged table to have exactly one row per raw
// bar, in the same order.
func CheckContinuity(t *model.Table, bars []model.Bar) error {
	if len(t.Rows) != len(bars) {
		return apperr.NewMergeContinuity("merged row count differs from raw bars").
			With("rows", len(t.Rows)).With("bars", len(bars))
	}
	for i, r := range t.Rows {
		if !r.Date.Equal(bars[i].Date) {
			return apperr.NewMergeContinuity("merged dates diverge from raw dates").
				With("row", i).With("date", model.FormatDate(r.Date))
		}
	}
	return nil
}
