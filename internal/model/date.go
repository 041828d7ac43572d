package model

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical text form of a bar date.
const DateLayout = "2006-01-02"

// TimestampLayout is the text form of calc_timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

var dateLayouts = []string{"20060102", DateLayout, "2006/01/02", "2006.01.02"}

// ParseDate normalizes the date encodings seen in upstream files
// (20240105, 2024-01-05, 2024/01/05, 2024.01.05, optionally followed by a time)
// to a UTC-midnight calendar date.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " T"); i > 0 {
		s = s[:i]
	}
	// Excel exports sometimes leave integral dates as "20240105.0"
	s = strings.TrimSuffix(s, ".0")
	for _, layout := range dateLayouts {
		if len(s) != len(layout) {
			continue
		}
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// FormatDate renders a calendar date in DateLayout.
func FormatDate(t time.Time) string { return t.Format(DateLayout) }
