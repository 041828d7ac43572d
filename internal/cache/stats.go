package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/apperr"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/output"
)

// FamilyStats are the cumulative counters of one family within a tier.
type FamilyStats struct {
	Units          int       `json:"units"`
	Hits           int       `json:"hits"`
	Misses         int       `json:"misses"`
	Extends        int       `json:"extends"`
	FullRecomputes int       `json:"full_recomputes"`
	Failures       int       `json:"failures"`
	Removed        int       `json:"removed"`
	LastRunID      string    `json:"last_run_id,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HitRate is hits over all lookups.
func (s *FamilyStats) HitRate() float64 {
	n := s.Hits + s.Misses
	if n == 0 {
		return 0
	}
	return float64(s.Hits) / float64(n)
}

// TierMeta is the aggregate metadata record of one tier.
type TierMeta struct {
	Tier      string                  `json:"tier"`
	Families  map[string]*FamilyStats `json:"families"`
	LastRunID string                  `json:"last_run_id,omitempty"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// TallyOutcomes groups unit outcomes into per-tier, per-family counters for
// one run. Extends and full recomputes both count as misses.
func TallyOutcomes(outcomes []model.UnitOutcome) map[string]map[string]*FamilyStats {
	out := make(map[string]map[string]*FamilyStats)
	for _, o := range outcomes {
		if o.Tier == "" || o.Family == "" {
			continue
		}
		byFam, ok := out[o.Tier]
		if !ok {
			byFam = make(map[string]*FamilyStats)
			out[o.Tier] = byFam
		}
		s, ok := byFam[o.Family]
		if !ok {
			s = &FamilyStats{}
			byFam[o.Family] = s
		}
		switch o.Action {
		case model.ActionRemoved:
			s.Removed++
			continue
		case model.ActionCacheHit:
			s.Hits++
		case model.ActionIncrementalExtend:
			s.Misses++
			s.Extends++
		case model.ActionFullRecompute:
			s.Misses++
			s.FullRecomputes++
		}
		s.Units++
		if o.Status == model.UnitFailed {
			s.Failures++
		}
	}
	return out
}

func (m *Manager) tierMetaPath(tier string) string {
	return filepath.Join(m.root, tier, "cache_meta.json")
}

// LoadTierMeta reads the aggregate record of a tier; a missing file yields an empty record.
func (m *Manager) LoadTierMeta(tier string) (*TierMeta, error) {
	meta := &TierMeta{Tier: tier, Families: make(map[string]*FamilyStats)}
	raw, err := os.ReadFile(m.tierMetaPath(tier))
	if errors.Is(err, fs.ErrNotExist) {
		return meta, nil
	}
	if err != nil {
		return nil, apperr.NewIO("read tier meta", err)
	}
	if err := json.Unmarshal(raw, meta); err != nil {
		return nil, apperr.NewCacheCorrupt("decode tier meta", err)
	}
	if meta.Families == nil {
		meta.Families = make(map[string]*FamilyStats)
	}
	return meta, nil
}

// FlushStats adds one run's counters to the tier's aggregate record. It must
// only be called by the coordinator after all workers are done.
func (m *Manager) FlushStats(tier string, run map[string]*FamilyStats, runID string, now time.Time) error {
	meta, err := m.LoadTierMeta(tier)
	if err != nil {
		// a corrupt aggregate is rebuilt from this run
		meta = &TierMeta{Tier: tier, Families: make(map[string]*FamilyStats)}
	}
	for fam, s := range run {
		cur, ok := meta.Families[fam]
		if !ok {
			cur = &FamilyStats{}
			meta.Families[fam] = cur
		}
		cur.Units += s.Units
		cur.Hits += s.Hits
		cur.Misses += s.Misses
		cur.Extends += s.Extends
		cur.FullRecomputes += s.FullRecomputes
		cur.Failures += s.Failures
		cur.Removed += s.Removed
		cur.LastRunID = runID
		cur.UpdatedAt = now
	}
	meta.LastRunID = runID
	meta.UpdatedAt = now

	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return apperr.NewIO("encode tier meta", err)
	}
	if err := output.WriteFileAtomic(m.tierMetaPath(tier), raw); err != nil {
		return apperr.NewIO("write tier meta", err)
	}
	return nil
}
