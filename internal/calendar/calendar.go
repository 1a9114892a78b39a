// Package calendar answers schedule questions for the strangle pipeline:
// which expiry to trade, whether the venue is open, and whether a macro
// release blocks new entries right now.
package calendar

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// expiryLayout is the venue-native expiry format.
const expiryLayout = "20060102"

// Calendar holds the trading schedule for one timezone.
type Calendar struct {
	loc      *time.Location
	holidays map[string]bool
	fomc     map[string]bool
	cpi      map[string]bool
}

// New builds a Calendar. Dates are YYYY-MM-DD strings; entries that fail to
// parse are dropped.
func New(loc *time.Location, holidays, fomc, cpi []string) *Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{
		loc:      loc,
		holidays: dateSet(holidays),
		fomc:     dateSet(fomc),
		cpi:      dateSet(cpi),
	}
}

func dateSet(dates []string) map[string]bool {
	set := make(map[string]bool, len(dates))
	for _, d := range dates {
		if _, err := time.Parse(dateLayout, d); err == nil {
			set[d] = true
		}
	}
	return set
}

func (c *Calendar) key(t time.Time) string {
	return t.In(c.loc).Format(dateLayout)
}

// IsHoliday reports whether the date falls on a configured holiday.
func (c *Calendar) IsHoliday(t time.Time) bool {
	return c.holidays[c.key(t)]
}

// IsBusinessDay reports whether the date is a non-holiday weekday.
func (c *Calendar) IsBusinessDay(t time.Time) bool {
	day := t.In(c.loc)
	if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		return false
	}
	return !c.holidays[c.key(day)]
}

// NextBusinessDay returns the first business day strictly after t.
func (c *Calendar) NextBusinessDay(t time.Time) time.Time {
	day := t.In(c.loc)
	for {
		day = day.AddDate(0, 0, 1)
		if c.IsBusinessDay(day) {
			return day
		}
	}
}

// NextExpiry returns the venue-native expiry date (YYYYMMDD) for a contract
// entered at t. Symbols on a Monday/Wednesday/Friday weekly cycle get the
// next such listing; everything else gets the next business day.
func (c *Calendar) NextExpiry(t time.Time, mwfCycle bool) string {
	day := c.NextBusinessDay(t)
	if mwfCycle {
		for !isMWF(day.Weekday()) || !c.IsBusinessDay(day) {
			day = day.AddDate(0, 0, 1)
		}
	}
	return day.Format(expiryLayout)
}

func isMWF(w time.Weekday) bool {
	return w == time.Monday || w == time.Wednesday || w == time.Friday
}

// Macro release times, eastern. New entries hold off until a few minutes
// after the print so the first reaction is in the market.
var (
	fomcClear = clock{14, 5} // statement at 14:00
	cpiClear  = clock{8, 35} // release at 08:30
)

type clock struct{ hour, min int }

func (c *Calendar) afterClock(now time.Time, cl clock) bool {
	local := now.In(c.loc)
	return local.Hour() > cl.hour || (local.Hour() == cl.hour && local.Minute() >= cl.min)
}

// EventGate reports whether a new entry at now, held through expiry
// (YYYYMMDD), is allowed. Any FOMC or CPI release date inside the holding
// window blocks entry, not just a release today: a position opened the
// afternoon before a print would still be exposed to it. A release earlier
// today clears once its print window has passed.
func (c *Calendar) EventGate(now time.Time, expiry string) (bool, string) {
	today := c.key(now)
	last := today
	if d, err := time.ParseInLocation(expiryLayout, expiry, c.loc); err == nil {
		last = d.Format(dateLayout)
	}
	if d, ok := c.pendingEvent(c.fomc, today, last, now, fomcClear); ok {
		return false, fmt.Sprintf("FOMC release %s inside holding window through %s", d, last)
	}
	if d, ok := c.pendingEvent(c.cpi, today, last, now, cpiClear); ok {
		return false, fmt.Sprintf("CPI release %s inside holding window through %s", d, last)
	}
	return true, ""
}

// pendingEvent returns the earliest event date in [today, last] that still
// blocks entry at now. A same-day event stops blocking after its clear time.
func (c *Calendar) pendingEvent(set map[string]bool, today, last string, now time.Time, cl clock) (string, bool) {
	blocking := ""
	for d := range set {
		if d < today || d > last {
			continue
		}
		if d == today && c.afterClock(now, cl) {
			continue
		}
		if blocking == "" || d < blocking {
			blocking = d
		}
	}
	return blocking, blocking != ""
}

// IsFuturesSessionOpen reports whether the CME-style electronic session is
// open: Sunday 18:00 through Friday 17:00 local, with a daily 17:00-18:00
// maintenance break, minus holidays.
func (c *Calendar) IsFuturesSessionOpen(now time.Time) bool {
	local := now.In(c.loc)
	if c.holidays[c.key(local)] {
		return false
	}

	minutes := local.Hour()*60 + local.Minute()
	const sessionBreakStart = 17 * 60
	const sessionBreakEnd = 18 * 60

	switch local.Weekday() {
	case time.Saturday:
		return false
	case time.Sunday:
		return minutes >= sessionBreakEnd
	case time.Friday:
		return minutes < sessionBreakStart
	default:
		return minutes < sessionBreakStart || minutes >= sessionBreakEnd
	}
}
