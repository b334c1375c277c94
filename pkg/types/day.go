package types

import (
	"fmt"
	"time"
)

// DayLayout is the canonical text form of a Day.
const DayLayout = "2006-01-02"

// Day is a calendar date with no time-of-day and no zone. Two Days are equal
// with == when they name the same date.
type Day struct {
	year  int
	month time.Month
	day   int
}

// NewDay returns the Day for the given date, normalizing overflow the same way
// time.Date does (e.g. June 31 becomes July 1).
func NewDay(year int, month time.Month, day int) Day {
	return DayOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DayOf returns the wall-clock date of t in t's own location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{year: y, month: m, day: d}
}

// Today returns the current date in loc. A nil loc means UTC.
func Today(loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	return DayOf(time.Now().In(loc))
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid day %q: %w", s, err)
	}
	return DayOf(t), nil
}

func (d Day) Year() int         { return d.year }
func (d Day) Month() time.Month { return d.month }
func (d Day) DayOfMonth() int   { return d.day }
func (d Day) IsZero() bool      { return d == Day{} }
func (d Day) Before(o Day) bool { return d.Compare(o) < 0 }
func (d Day) After(o Day) bool  { return d.Compare(o) > 0 }
func (d Day) AddDays(n int) Day { return NewDay(d.year, d.month, d.day+n) }

func (d Day) Weekday() time.Weekday {
	return d.Time().Weekday()
}

// Time returns midnight UTC of the day.
func (d Day) Time() time.Time {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC)
}

// Compare returns -1, 0 or 1 depending on whether d is before, equal to or after o.
func (d Day) Compare(o Day) int {
	switch {
	case d.year != o.year:
		return cmpInt(d.year, o.year)
	case d.month != o.month:
		return cmpInt(int(d.month), int(o.month))
	default:
		return cmpInt(d.day, o.day)
	}
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func (d Day) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.year, int(d.month), d.day)
}

// MarshalText encodes the day as YYYY-MM-DD.
func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText decodes YYYY-MM-DD. An empty value leaves the zero Day.
func (d *Day) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Day{}
		return nil
	}
	parsed, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DayRange returns every day from start through end inclusive. It returns an
// empty slice when end is before start.
func DayRange(start, end Day) []Day {
	if end.Before(start) {
		return []Day{}
	}
	days := make([]Day, 0, DaysBetween(start, end)+1)
	for d := start; !d.After(end); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

// DaysBetween returns the number of days from start to end, negative when end
// is before start.
func DaysBetween(start, end Day) int {
	return int(end.Time().Sub(start.Time()).Hours() / 24)
}

// MonthBounds returns the first and last day of the given month.
func MonthBounds(year int, month time.Month) (Day, Day) {
	first := NewDay(year, month, 1)
	return first, NewDay(year, month+1, 0)
}
