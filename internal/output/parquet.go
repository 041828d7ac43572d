package output

import (
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/apperr"
	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
)

// LongRow is the parquet layout: one row per (date, field), newest date first,
// fields in definition order. Undefined values are stored as nulls.
type LongRow struct {
	InstrumentCode string   `parquet:"instrument_code"`
	Date           string   `parquet:"date"`
	Field          string   `parquet:"field"`
	Value          *float64 `parquet:"value,optional"`
	CalcTimestamp  string   `parquet:"calc_timestamp"`
}

// ParquetWriter writes tables in long form with parquet-go.
type ParquetWriter struct {
	Root      string
	Precision int32
}

func (w *ParquetWriter) Extension() string { return "parquet" }

func (w *ParquetWriter) Path(tier, family, code string) string {
	return artifactPath(w.Root, tier, family, code, w.Extension())
}

// LongRows flattens t in output order.
func LongRows(t *model.Table, precision int32) []LongRow {
	rows := make([]LongRow, 0, len(t.Rows)*len(t.Fields))
	for i := len(t.Rows) - 1; i >= 0; i-- {
		r := t.Rows[i]
		date := model.FormatDate(r.Date)
		ts := r.CalcTime.Format(model.TimestampLayout)
		for j, f := range t.Fields {
			lr := LongRow{InstrumentCode: r.Code, Date: date, Field: f, CalcTimestamp: ts}
			if v := model.Round(r.Values[j], precision); !model.IsNull(v) {
				lr.Value = &v
			}
			rows = append(rows, lr)
		}
	}
	return rows
}

func (w *ParquetWriter) Write(tier string, t *model.Table) (string, error) {
	path := w.Path(tier, t.Family, t.Code)
	rows := LongRows(t, w.Precision)
	return path, withRetry(path, func() error { return writeParquetAtomic(path, rows) })
}

func (w *ParquetWriter) Remove(tier, family, code string) error {
	return removeIfExists(w.Path(tier, family, code))
}

func writeParquetAtomic(path string, rows []LongRow) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if err := parquet.Write(tmp, rows); err != nil {
		tmp.Close()
		os.Remove(name)
		return apperr.NewIO("encode parquet", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}
