// Package source reads the per-instrument daily bar files and answers the
// questions the batch asks about them: which instruments exist, how fresh each
// file is, and how far behind the exchange calendar its last bar lies.
package source

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/apperr"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
)

// Canonical column names.
const (
	ColDate      = "date"
	ColCode      = "code"
	ColOpen      = "open"
	ColHigh      = "high"
	ColLow       = "low"
	ColClose     = "close"
	ColPrevClose = "prev_close"
	ColChange    = "change"
	ColChangePct = "change_pct"
	ColVolume    = "volume"
	ColTurnover  = "turnover"
)

// headerAliases maps normalized upstream headers to canonical names.
var headerAliases = map[string]string{
	"日期": ColDate, "交易日期": ColDate, "date": ColDate, "trade_date": ColDate,
	"代码": ColCode, "code": ColCode,
	"开盘价": ColOpen, "开盘价(元)": ColOpen, "open": ColOpen,
	"最高价": ColHigh, "最高价(元)": ColHigh, "high": ColHigh,
	"最低价": ColLow, "最低价(元)": ColLow, "low": ColLow,
	"收盘价": ColClose, "收盘价(元)": ColClose, "close": ColClose,
	"上日收盘": ColPrevClose, "上日收盘(元)": ColPrevClose, "前收盘": ColPrevClose, "prev_close": ColPrevClose, "pre_close": ColPrevClose,
	"涨跌": ColChange, "涨跌(元)": ColChange, "change": ColChange,
	"涨幅%": ColChangePct, "涨跌幅": ColChangePct, "涨跌幅%": ColChangePct, "change_pct": ColChangePct, "pct_chg": ColChangePct,
	"成交量(手数)": ColVolume, "成交量(手)": ColVolume, "成交量": ColVolume, "volume": ColVolume, "vol": ColVolume,
	"成交额(千元)": ColTurnover, "成交额": ColTurnover, "turnover": ColTurnover, "amount": ColTurnover,
}

var requiredColumns = []string{ColDate, ColOpen, ColHigh, ColLow, ColClose, ColVolume}

// NormalizeHeader maps one raw header cell to its canonical name, or "" if unknown.
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.ReplaceAll(h, "（", "(")
	h = strings.ReplaceAll(h, "）", ")")
	h = strings.ReplaceAll(h, " ", "")
	h = strings.ToLower(strings.TrimSpace(h))
	return headerAliases[h]
}

// ReadStats counts what happened to the rows of one file.
type ReadStats struct {
	Rows       int            // data rows seen
	Dropped    int            // malformed rows removed
	Duplicates int            // rows replaced by a later row with the same date
	Reasons    map[string]int // drop reason → count
}

func (s *ReadStats) drop(reason string) {
	s.Dropped++
	if s.Reasons == nil {
		s.Reasons = make(map[string]int)
	}
	s.Reasons[reason]++
}

// ReadFile loads and cleans the bar file at path.
func ReadFile(path, code string) ([]model.Bar, ReadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ReadStats{}, apperr.NewDataUnavailable("source file missing", err).With("code", code)
		}
		return nil, ReadStats{}, apperr.NewIO("open source file", err).With("code", code)
	}
	defer f.Close()
	return Parse(f, code)
}

// Parse reads a daily bar CSV, maps localized headers, normalizes dates and
// drops rows with non-positive prices or non-numeric volume. The result is
// sorted ascending by date with duplicate dates collapsed (last row wins).
func Parse(r io.Reader, code string) ([]model.Bar, ReadStats, error) {
	var stats ReadStats
	cr := csv.NewReader(bufio.NewReader(r))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, stats, apperr.NewDataUnavailable("source file empty", nil).With("code", code)
	}
	if err != nil {
		return nil, stats, apperr.NewDataUnavailable("source header unreadable", err).With("code", code)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		if name := NormalizeHeader(h); name != "" {
			if _, dup := cols[name]; !dup {
				cols[name] = i
			}
		}
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, stats, apperr.NewDataUnavailable(fmt.Sprintf("source missing column %q", c), nil).With("code", code)
		}
	}

	byDate := make(map[time.Time]model.Bar)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			stats.Rows++
			stats.drop("csv")
			continue
		}
		stats.Rows++
		bar, reason := parseRecord(rec, cols, code)
		if reason != "" {
			stats.drop(reason)
			continue
		}
		if _, seen := byDate[bar.Date]; seen {
			stats.Duplicates++
		}
		byDate[bar.Date] = bar
	}

	if len(byDate) == 0 {
		return nil, stats, apperr.NewDataUnavailable("no valid rows", nil).With("code", code).With("dropped", stats.Dropped)
	}

	bars := make([]model.Bar, 0, len(byDate))
	for _, b := range byDate {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, stats, nil
}

func parseRecord(rec []string, cols map[string]int, code string) (model.Bar, string) {
	cell := func(name string) (string, bool) {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return "", false
		}
		return strings.TrimSpace(rec[i]), true
	}
	num := func(name string) (float64, bool) {
		s, ok := cell(name)
		if !ok || s == "" {
			return 0, false
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return v, true
	}
	optional := func(name string) (float64, bool) {
		s, ok := cell(name)
		if !ok || s == "" || s == "-" {
			return 0, true
		}
		return num(name)
	}

	var b model.Bar
	b.Code = code
	ds, _ := cell(ColDate)
	d, err := model.ParseDate(ds)
	if err != nil {
		return b, "date"
	}
	b.Date = d

	var ok bool
	for _, p := range []struct {
		col string
		dst *float64
	}{{ColOpen, &b.Open}, {ColHigh, &b.High}, {ColLow, &b.Low}, {ColClose, &b.Close}} {
		if *p.dst, ok = num(p.col); !ok || *p.dst <= 0 {
			return b, "price"
		}
	}
	if b.Volume, ok = num(ColVolume); !ok || b.Volume < 0 {
		return b, "volume"
	}
	if b.Turnover, ok = optional(ColTurnover); !ok || b.Turnover < 0 {
		return b, "turnover"
	}
	if b.PrevClose, ok = optional(ColPrevClose); !ok || b.PrevClose < 0 {
		b.PrevClose = 0
	}
	if b.Change, ok = optional(ColChange); !ok {
		b.Change = 0
	}
	if b.ChangePct, ok = optional(ColChangePct); !ok {
		b.ChangePct = 0
	}
	return b, ""
}
