package model

import "time"

// Action is what the merge controller decided for a unit.
type Action string

const (
	ActionNone              Action = ""
	ActionFullRecompute     Action = "full_recompute"
	ActionCacheHit          Action = "cache_hit"
	ActionIncrementalExtend Action = "incremental_extend"
	ActionRemoved           Action = "removed"
)

// UnitStatus is the final state of one (instrument, tier, family) unit.
type UnitStatus string

const (
	UnitOK      UnitStatus = "ok"
	UnitSkipped UnitStatus = "skipped"
	UnitFailed  UnitStatus = "failed"
)

// UnitOutcome records what happened to one unit in a run.
type UnitOutcome struct {
	Code     string
	Tier     string
	Family   string
	Status   UnitStatus
	Action   Action
	Reason   string // cache-miss reason, skip reason or error text
	ErrKind  string
	Rows     int // rows in the resulting table
	NewRows  int // rows computed in this run
	Fallback bool
	Fields   []string
	Latest   *Row
	Duration time.Duration
}

// InstrumentReport is the per-instrument part of a run: read statistics and the
// tier decisions, shared by all of its units.
type InstrumentReport struct {
	Code         string
	Bars         int
	Dropped      int
	AvgTurnover  float64 // 万元
	Tiers        []string
	StaleSource  bool
	LagSessions  int
	Err          string
	ErrKind      string
	Skipped      bool
	UnitOutcomes []UnitOutcome
}

// RunSummary aggregates one batch run. It is built by a single goroutine after
// all workers have finished.
type RunSummary struct {
	RunID       string
	Started     time.Time
	Finished    time.Time
	Instruments int

	Units   int
	OK      int
	Failed  int
	Skipped int
	Removed int

	Hits      int
	Extends   int
	Full      int
	Fallbacks int

	DroppedRows  int
	StaleSources int

	Reports  []InstrumentReport
	Outcomes []UnitOutcome
}

// Add folds one instrument report into the summary.
func (s *RunSummary) Add(r InstrumentReport) {
	s.Instruments++
	s.DroppedRows += r.Dropped
	if r.StaleSource {
		s.StaleSources++
	}
	s.Reports = append(s.Reports, r)
	if len(r.UnitOutcomes) == 0 {
		switch {
		case r.Skipped:
			s.Skipped++
		case r.Err != "":
			s.Failed++
		}
	}
	for _, o := range r.UnitOutcomes {
		s.Outcomes = append(s.Outcomes, o)
		if o.Action == ActionRemoved {
			s.Removed++
			if o.Status == UnitFailed {
				s.Failed++
			}
			continue
		}
		s.Units++
		switch o.Status {
		case UnitOK:
			s.OK++
		case UnitFailed:
			s.Failed++
		case UnitSkipped:
			s.Skipped++
		}
		switch o.Action {
		case ActionCacheHit:
			s.Hits++
		case ActionIncrementalExtend:
			s.Extends++
		case ActionFullRecompute:
			s.Full++
		}
		if o.Fallback {
			s.Fallbacks++
		}
	}
}

// SuccessRatio is ok / (ok + failed); skipped units do not count. A run with
// nothing attempted is a success.
func (s *RunSummary) SuccessRatio() float64 {
	attempted := s.OK + s.Failed
	if attempted == 0 {
		return 1
	}
	return float64(s.OK) / float64(attempted)
}

// HitRate is the share of computed units served from cache without work.
func (s *RunSummary) HitRate() float64 {
	n := s.Hits + s.Extends + s.Full
	if n == 0 {
		return 0
	}
	return float64(s.Hits) / float64(n)
}
