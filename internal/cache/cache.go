// Package cache stores computed indicator tables per (tier, family, instrument)
// together with the metadata needed to decide whether they can be reused:
// parameter fingerprint, source freshness token, the digest of the raw bars
// that produced them and the engine checkpoint at their last date.
package cache

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/apperr"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/indicator"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/output"
)

// DefaultTolerance is how far a source may move past the cached freshness
// token before the entry is distrusted.
const DefaultTolerance = 30 * 24 * time.Hour

// Meta is the per-entry metadata record.
type Meta struct {
	Code           string               `json:"code"`
	Tier           string               `json:"tier"`
	Family         string               `json:"family"`
	Fields         []string             `json:"fields"`
	DefinedFields  []string             `json:"defined_fields"` // columns holding a value at Put
	LastDate       string               `json:"last_date"`
	RowCount       int                  `json:"row_count"`
	Fingerprint    string               `json:"fingerprint"`
	FreshnessToken time.Time            `json:"freshness_token"`
	PrefixDigest   string               `json:"prefix_digest"`
	Checkpoint     indicator.Checkpoint `json:"checkpoint"`
	RunID          string               `json:"run_id,omitempty"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// Entry is a cached table plus its metadata.
type Entry struct {
	Table *model.Table
	Meta  Meta
}

// Manager owns the cache directory.
type Manager struct {
	root      string
	precision int32
	tolerance time.Duration
}

// New returns a Manager rooted at root. A zero tolerance selects DefaultTolerance.
func New(root string, precision int32, tolerance time.Duration) *Manager {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Manager{root: root, precision: precision, tolerance: tolerance}
}

func (m *Manager) dir(tier, family string) string {
	return filepath.Join(m.root, tier, family)
}

func (m *Manager) rowsPath(family, tier, code string) string {
	return filepath.Join(m.dir(tier, family), code+".csv")
}

func (m *Manager) metaPath(family, tier, code string) string {
	return filepath.Join(m.dir(tier, family), code+".meta.json")
}

// Get loads an entry. A missing entry returns (nil, nil); an unreadable one
// returns a CacheCorrupt error.
func (m *Manager) Get(family, tier, code string) (*Entry, error) {
	metaRaw, err := os.ReadFile(m.metaPath(family, tier, code))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.NewCacheCorrupt("read cache meta", err)
	}
	var meta Meta
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		return nil, apperr.NewCacheCorrupt("decode cache meta", err)
	}

	rowsRaw, err := os.ReadFile(m.rowsPath(family, tier, code))
	if err != nil {
		return nil, apperr.NewCacheCorrupt("read cache rows", err)
	}
	tbl, err := output.DecodeCSV(bytes.NewReader(rowsRaw), family)
	if err != nil {
		return nil, apperr.NewCacheCorrupt("decode cache rows", err)
	}
	if tbl.Code == "" {
		tbl.Code = code
	}
	return &Entry{Table: tbl, Meta: meta}, nil
}

// Put replaces an entry wholesale. Rows are written before metadata, so an
// interrupted Put leaves an entry that fails validation instead of a
// plausible-looking mix.
func (m *Manager) Put(e *Entry) error {
	t := e.Table
	if t == nil || len(t.Rows) == 0 {
		return fmt.Errorf("cache put %s/%s: empty table", e.Meta.Family, e.Meta.Code)
	}
	e.Meta.Family = t.Family
	e.Meta.Code = t.Code
	e.Meta.Fields = t.Fields
	e.Meta.RowCount = len(t.Rows)
	e.Meta.LastDate = model.FormatDate(t.LastDate())
	e.Meta.DefinedFields = definedFields(t)

	data, err := output.EncodeCSV(t, m.precision)
	if err != nil {
		return apperr.NewIO("encode cache rows", err)
	}
	metaRaw, err := json.MarshalIndent(e.Meta, "", "  ")
	if err != nil {
		return apperr.NewIO("encode cache meta", err)
	}
	if err := output.WriteFileAtomic(m.rowsPath(t.Family, e.Meta.Tier, t.Code), data); err != nil {
		return apperr.NewIO("write cache rows", err)
	}
	if err := output.WriteFileAtomic(m.metaPath(t.Family, e.Meta.Tier, t.Code), metaRaw); err != nil {
		return apperr.NewIO("write cache meta", err)
	}
	return nil
}

// Remove deletes an entry; a missing entry is not an error.
func (m *Manager) Remove(family, tier, code string) error {
	for _, p := range []string{m.metaPath(family, tier, code), m.rowsPath(family, tier, code)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return apperr.NewIO("remove cache entry", err)
		}
	}
	return nil
}

// Exists reports whether an entry's metadata is present.
func (m *Manager) Exists(family, tier, code string) bool {
	_, err := os.Stat(m.metaPath(family, tier, code))
	return err == nil
}

// IsValid decides whether e may be reused for a source with the given
// freshness token and a definition with the given fingerprint. The reason is
// empty for a valid entry.
func (m *Manager) IsValid(e *Entry, token time.Time, fingerprint string) (bool, string) {
	if e == nil || e.Table == nil {
		return false, "no cache entry"
	}
	if e.Meta.Fingerprint != fingerprint {
		return false, "fingerprint mismatch"
	}
	if token.After(e.Meta.FreshnessToken.Add(m.tolerance)) {
		return false, fmt.Sprintf("source changed %s after cache, beyond tolerance %s",
			token.Sub(e.Meta.FreshnessToken).Round(time.Second), m.tolerance)
	}
	if reason := checkStructure(e); reason != "" {
		return false, reason
	}
	return true, ""
}

func checkStructure(e *Entry) string {
	t := e.Table
	if len(t.Rows) == 0 {
		return "empty table"
	}
	if !sameStrings(t.Fields, e.Meta.Fields) {
		return "column set differs from metadata"
	}
	if len(t.Rows) != e.Meta.RowCount {
		return fmt.Sprintf("row count %d, metadata says %d", len(t.Rows), e.Meta.RowCount)
	}
	if model.FormatDate(t.LastDate()) != e.Meta.LastDate {
		return "last date differs from metadata"
	}
	if e.Meta.Checkpoint.Bars == 0 || model.FormatDate(e.Meta.Checkpoint.LastDate) != e.Meta.LastDate {
		return "checkpoint missing or misaligned"
	}
	for i, r := range t.Rows {
		if len(r.Values) != len(t.Fields) {
			return "ragged row"
		}
		if i > 0 && !r.Date.After(t.Rows[i-1].Date) {
			return "dates not strictly increasing"
		}
	}

	// A column may legitimately never get a value (a flat series has no
	// Bollinger position); it is only lost data if it had one when stored.
	// Metadata without the list predates it and every column must hold a value.
	expected := e.Meta.DefinedFields
	if expected == nil {
		expected = t.Fields
	}
	have := definedFields(t)
	for _, f := range expected {
		if indexOf(t.Fields, f) < 0 {
			return "metadata names unknown column " + f
		}
		if indexOf(have, f) < 0 {
			return "column " + f + " is entirely null"
		}
	}
	return ""
}

// definedFields lists the columns of t with at least one non-null value.
// The result is never nil.
func definedFields(t *model.Table) []string {
	defined := make([]bool, len(t.Fields))
	for _, r := range t.Rows {
		for j, v := range r.Values {
			if j < len(defined) && !model.IsNull(v) {
				defined[j] = true
			}
		}
	}
	out := make([]string, 0, len(t.Fields))
	for j, ok := range defined {
		if ok {
			out = append(out, t.Fields[j])
		}
	}
	return out
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
