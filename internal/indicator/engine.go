package indicator

import (
	"fmt"
	"time"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
)

// Status reports how a computation ended.
type Status string

const (
	StatusOK           Status = "ok"
	StatusInsufficient Status = "insufficient_data"
)

// Result is the output of Compute or Extend.
type Result struct {
	Table      model.Table
	Checkpoint Checkpoint
	Status     Status
}

// Compute runs def over the full bar series. It is pure: the same bars and
// calcTime always give identical rows. One row is emitted per bar; fields
// still in warm-up are Null. Fewer than def.MinBars bars gives an empty table
// with StatusInsufficient.
func Compute(def *Definition, code string, bars []model.Bar, calcTime time.Time) Result {
	res := Result{Table: newTable(def, code)}
	if len(bars) == 0 || len(bars) < def.MinBars {
		res.Status = StatusInsufficient
		return res
	}
	c := def.build()
	res.Table.Rows = run(def, c, code, bars, calcTime)
	res.Checkpoint = snapshotCalculator(def, c, len(bars), model.LastDate(bars))
	res.Status = StatusOK
	return res
}

// Extend continues a previous computation from its checkpoint over the bars
// that follow it. The returned rows cover only the new bars.
func Extend(def *Definition, cp Checkpoint, code string, bars []model.Bar, calcTime time.Time) (Result, error) {
	c, err := restoreCalculator(def, cp)
	if err != nil {
		return Result{}, fmt.Errorf("restore %s checkpoint: %w", def.Family, err)
	}
	if len(bars) > 0 && !bars[0].Date.After(cp.LastDate) {
		return Result{}, fmt.Errorf("extend %s: bar %s not after checkpoint %s",
			def.Family, model.FormatDate(bars[0].Date), model.FormatDate(cp.LastDate))
	}

	res := Result{Table: newTable(def, code), Status: StatusOK}
	res.Table.Rows = run(def, c, code, bars, calcTime)
	last := cp.LastDate
	if len(bars) > 0 {
		last = model.LastDate(bars)
	}
	res.Checkpoint = snapshotCalculator(def, c, cp.Bars+len(bars), last)
	return res, nil
}

func newTable(def *Definition, code string) model.Table {
	return model.Table{Family: def.Family, Code: code, Fields: def.Fields}
}

func run(def *Definition, c calculator, code string, bars []model.Bar, calcTime time.Time) []model.Row {
	rows := make([]model.Row, len(bars))
	out := make([]float64, len(def.Fields))
	for i, b := range bars {
		c.update(b, out)
		vals := make([]float64, len(out))
		for j, v := range out {
			vals[j] = model.Round(v, def.Precision)
		}
		rows[i] = model.Row{Code: code, Date: b.Date, Values: vals, CalcTime: calcTime}
	}
	return rows
}
