package ledger

import "time"

// =============================================================================
// PERIOD - Inclusive date window for summaries
// =============================================================================

// Period is an inclusive window [Start, End] compared by calendar day, so a
// transaction at 18:00 on the last day of the month is still inside.
type Period struct {
	Start time.Time
	End   time.Time
}

// MonthPeriod returns the calendar month containing t.
func MonthPeriod(t time.Time) Period {
	return Period{
		Start: StartOfMonth(t.Year(), t.Month(), t.Location()),
		End:   EndOfMonth(t.Year(), t.Month(), t.Location()),
	}
}

func StartOfMonth(year int, month time.Month, loc *time.Location) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, loc)
}

func EndOfMonth(year int, month time.Month, loc *time.Location) time.Time {
	return time.Date(year, month+1, 1, 0, 0, 0, 0, loc).AddDate(0, 0, -1)
}

// Contains returns true if t falls on a day within [Start, End].
func (p Period) Contains(t time.Time) bool {
	d := DayOf(t)
	return !d.Before(DayOf(p.Start)) && !d.After(DayOf(p.End))
}

// Valid reports whether End is not before Start.
func (p Period) Valid() bool {
	return !DayOf(p.End).Before(DayOf(p.Start))
}

func (p Period) String() string {
	return "[" + p.Start.Format(DateLayout) + ", " + p.End.Format(DateLayout) + "]"
}

// inWindow treats a nil window as "all time".
func inWindow(window *Period, t time.Time) bool {
	return window == nil || window.Contains(t)
}

// DateLayout is the calendar-day format used on the wire and in storage.
const DateLayout = "2006-01-02"

// DayOf drops the clock, keeping the calendar day of t. Stores persist
// dates this way so ordering never depends on the time of day.
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts a calendar day or an RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
