package output

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gumayusi1111/new-fund-etf-Data-clear-sub002/internal/model"
)

// EncodeCSV renders a table newest first with fixed decimals. Equal tables
// always encode to equal bytes.
func EncodeCSV(t *model.Table, precision int32) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Header()); err != nil {
		return nil, err
	}
	rec := make([]string, len(t.Fields)+3)
	for i := len(t.Rows) - 1; i >= 0; i-- {
		r := t.Rows[i]
		if len(r.Values) != len(t.Fields) {
			return nil, fmt.Errorf("row %s has %d values for %d fields", model.FormatDate(r.Date), len(r.Values), len(t.Fields))
		}
		rec[0] = r.Code
		rec[1] = model.FormatDate(r.Date)
		for j, v := range r.Values {
			rec[2+j] = model.FormatValue(v, precision)
		}
		rec[len(rec)-1] = r.CalcTime.Format(model.TimestampLayout)
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// DecodeCSV parses what EncodeCSV produced. Rows come back ascending by date.
func DecodeCSV(r io.Reader, family string) (*model.Table, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	n := len(header)
	if n < 3 || header[0] != "instrument_code" || header[1] != "date" || header[n-1] != "calc_timestamp" {
		return nil, fmt.Errorf("unexpected header %s", strings.Join(header, ","))
	}
	t := &model.Table{Family: family, Fields: append([]string(nil), header[2:n-1]...)}

	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		d, err := model.ParseDate(rec[1])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ct, err := time.ParseInLocation(model.TimestampLayout, rec[n-1], time.UTC)
		if err != nil {
			return nil, fmt.Errorf("line %d: calc_timestamp: %w", line, err)
		}
		row := model.Row{Code: rec[0], Date: d, CalcTime: ct, Values: make([]float64, n-3)}
		for j := range row.Values {
			s := rec[2+j]
			if s == "" {
				row.Values[j] = model.Null
				continue
			}
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d field %s: %w", line, t.Fields[j], err)
			}
			row.Values[j] = v
		}
		if t.Code == "" {
			t.Code = row.Code
		}
		t.Rows = append(t.Rows, row)
	}
	sort.SliceStable(t.Rows, func(i, j int) bool { return t.Rows[i].Date.Before(t.Rows[j].Date) })
	return t, nil
}
