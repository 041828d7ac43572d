package model

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultPrecision is the number of decimals kept on every indicator value.
const DefaultPrecision int32 = 8

// Row is one dated row of an indicator table. Values align with Table.Fields;
// undefined entries hold Null.
type Row struct {
	Code     string
	Date     time.Time
	Values   []float64
	CalcTime time.Time
}

// Table is the ascending-by-date indicator output of one family for one instrument.
type Table struct {
	Family string
	Code   string
	Fields []string
	Rows   []Row
}

// LastDate returns the date of the last row, or the zero time when empty.
func (t *Table) LastDate() time.Time {
	if len(t.Rows) == 0 {
		return time.Time{}
	}
	return t.Rows[len(t.Rows)-1].Date
}

// Latest returns the most recent row.
func (t *Table) Latest() (Row, bool) {
	if len(t.Rows) == 0 {
		return Row{}, false
	}
	return t.Rows[len(t.Rows)-1], true
}

// Header returns the column names of the persisted form of the table.
func (t *Table) Header() []string {
	h := make([]string, 0, len(t.Fields)+3)
	h = append(h, "instrument_code", "date")
	h = append(h, t.Fields...)
	return append(h, "calc_timestamp")
}

// Round rounds v half away from zero to prec decimals. Null stays Null and
// infinities become Null.
func Round(v float64, prec int32) float64 {
	if IsNull(v) || math.IsInf(v, 0) {
		return Null
	}
	f, _ := decimal.NewFromFloat(v).Round(prec).Float64()
	return f
}

// FormatValue renders v with exactly prec decimals, or "" when undefined.
func FormatValue(v float64, prec int32) string {
	if IsNull(v) || math.IsInf(v, 0) {
		return ""
	}
	return decimal.NewFromFloat(v).StringFixed(prec)
}
