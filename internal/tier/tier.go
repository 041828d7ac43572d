// Package tier assigns instruments to liquidity tiers.
//
// Membership is decided every run from the trailing average turnover of the
// instrument, optionally intersected with a per-tier allow-list produced by an
// upstream screening step.
package tier

import (
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
)

// DefaultWindow is the number of trailing bars averaged for turnover.
const DefaultWindow = 60

// Tier is one liquidity bucket.
type Tier struct {
	Name        string  `yaml:"name"`
	MinTurnover float64 `yaml:"min_turnover"` // average daily turnover, 万元
}

// DefaultTiers are the thresholds used by the daily screening.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "3000万门槛", MinTurnover: 3000},
		{Name: "5000万门槛", MinTurnover: 5000},
	}
}

// Validate rejects empty, duplicate or negative tiers.
func Validate(tiers []Tier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("no tiers configured")
	}
	seen := make(map[string]bool, len(tiers))
	for _, t := range tiers {
		if t.Name == "" {
			return fmt.Errorf("tier with empty name")
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate tier %q", t.Name)
		}
		if t.MinTurnover < 0 || math.IsNaN(t.MinTurnover) {
			return fmt.Errorf("tier %q: negative threshold %v", t.Name, t.MinTurnover)
		}
		seen[t.Name] = true
	}
	return nil
}

// AvgTurnover returns the mean turnover of the last window bars in 万元.
// Upstream turnover is in 千元. Shorter histories average what is available.
func AvgTurnover(bars []model.Bar, window int) float64 {
	if len(bars) == 0 || window <= 0 {
		return 0
	}
	start := len(bars) - window
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, b := range bars[start:] {
		sum += b.Turnover
	}
	return sum / float64(len(bars)-start) / 10
}

// Filter classifies instruments. It is read-only after construction and safe
// for concurrent use.
type Filter struct {
	tiers  []Tier
	window int
	lists  map[string]map[string]bool // tier → allowed codes; absent tier means no list
}

// NewFilter loads the allow-lists for every tier once.
func NewFilter(tiers []Tier, window int, provider AllowLists) (*Filter, error) {
	if err := Validate(tiers); err != nil {
		return nil, err
	}
	if window <= 0 {
		window = DefaultWindow
	}
	f := &Filter{tiers: tiers, window: window, lists: make(map[string]map[string]bool)}
	if provider == nil {
		return f, nil
	}
	for _, t := range tiers {
		set, ok, err := provider.Load(t.Name)
		if err != nil {
			return nil, fmt.Errorf("allow-list %s: %w", t.Name, err)
		}
		if ok {
			f.lists[t.Name] = set
			log.Printf("[tier] %s: allow-list with %d codes", t.Name, len(set))
		}
	}
	return f, nil
}

// Tiers returns the configured tiers.
func (f *Filter) Tiers() []Tier { return f.tiers }

// Classify returns the trailing average turnover and the names of every tier
// the instrument currently qualifies for, in configuration order.
func (f *Filter) Classify(code string, bars []model.Bar) (float64, []string) {
	avg := AvgTurnover(bars, f.window)
	var out []string
	for _, t := range f.tiers {
		if avg < t.MinTurnover {
			continue
		}
		if set, ok := f.lists[t.Name]; ok && !set[NormalizeCode(code)] {
			continue
		}
		out = append(out, t.Name)
	}
	return avg, out
}

// Membership collects tier → codes from classification results, for WriteAllowLists.
type Membership map[string][]string

// Add records code under each tier.
func (m Membership) Add(code string, tiers []string) {
	for _, t := range tiers {
		m[t] = append(m[t], code)
	}
}

// Sorted returns the codes of one tier in ascending order.
func (m Membership) Sorted(tier string) []string {
	codes := append([]string(nil), m[tier]...)
	sort.Strings(codes)
	return codes
}
