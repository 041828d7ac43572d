package model

import (
	"math"
	"time"
)

// Bar is one cleaned daily bar of an instrument.
// Prices are in CNY, Volume in lots (手) and Turnover in thousand CNY (千元),
// matching the units of the upstream daily files.
type Bar struct {
	Code      string    `json:"code"`
	Date      time.Time `json:"date"` // calendar date, UTC midnight
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	PrevClose float64   `json:"prev_close"`
	Change    float64   `json:"change"`
	ChangePct float64   `json:"change_pct"`
	Volume    float64   `json:"volume"`
	Turnover  float64   `json:"turnover"`
}

// Null is the in-memory representation of an undefined indicator value.
var Null = math.NaN()

// IsNull reports whether v is an undefined value.
func IsNull(v float64) bool { return math.IsNaN(v) }

// SafeDiv returns num/den, or Null when den is zero or either side is undefined.
func SafeDiv(num, den float64) float64 {
	if IsNull(num) || IsNull(den) || den == 0 {
		return Null
	}
	q := num / den
	if math.IsInf(q, 0) {
		return Null
	}
	return q
}

// LastDate returns the date of the last bar, or the zero time for an empty series.
func LastDate(bars []Bar) time.Time {
	if len(bars) == 0 {
		return time.Time{}
	}
	return bars[len(bars)-1].Date
}
