package source

import (
	"log"
	"time"

	"github.com/scmhub/calendar"
)

// maxLagScan bounds the day-by-day walk for very stale files.
const maxLagScan = 400

// SessionClock counts exchange sessions between two calendar dates.
type SessionClock struct {
	cal *calendar.Calendar
	loc *time.Location
}

// NewSessionClock loads the exchange calendar for a MIC code such as "xshg".
// Unknown codes fall back to a Monday to Friday calendar.
func NewSessionClock(mic string) *SessionClock {
	cal := calendar.GetCalendar(mic)
	if cal == nil {
		log.Printf("[source] no calendar for MIC %q, using weekday fallback", mic)
		return &SessionClock{loc: time.UTC}
	}
	return &SessionClock{cal: cal, loc: cal.Loc}
}

// IsSession reports whether the calendar date d is a trading day.
func (c *SessionClock) IsSession(d time.Time) bool {
	local := time.Date(d.Year(), d.Month(), d.Day(), 12, 0, 0, 0, c.loc)
	if c.cal == nil {
		wd := local.Weekday()
		return wd != time.Saturday && wd != time.Sunday
	}
	return c.cal.IsBusinessDay(local)
}

// SessionsBetween counts trading days in (from, to]. It is 0 when to is not
// after from and saturates after maxLagScan calendar days.
func (c *SessionClock) SessionsBetween(from, to time.Time) int {
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	to = time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	n := 0
	for d, i := from.AddDate(0, 0, 1), 0; !d.After(to) && i < maxLagScan; d, i = d.AddDate(0, 0, 1), i+1 {
		if c.IsSession(d) {
			n++
		}
	}
	return n
}

// Lag is the number of sessions the last bar date trails the run date.
// The run date itself is only counted once its session has closed (15:00 local).
func (c *SessionClock) Lag(lastBar, now time.Time) int {
	local := now.In(c.loc)
	runDate := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	if local.Hour() < 15 {
		runDate = runDate.AddDate(0, 0, -1)
	}
	return c.SessionsBetween(lastBar, runDate)
}
