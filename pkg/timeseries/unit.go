package timeseries

import (
	"fmt"
	"strings"
	"time"
)

// Unit is the calendar unit of a bucket.
type Unit int

const (
	Day Unit = iota
	Week
	Month
	Year
)

func (u Unit) String() string {
	switch u {
	case Day:
		return "Day"
	case Week:
		return "Week"
	case Month:
		return "Month"
	case Year:
		return "Year"
	default:
		return fmt.Sprintf("Unit(%d)", int(u))
	}
}

// ParseUnit parses a unit name, ignoring case.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day", "days":
		return Day, nil
	case "week", "weeks":
		return Week, nil
	case "month", "months":
		return Month, nil
	case "year", "years":
		return Year, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, s)
	}
}

// start returns the first day of the unit containing d.
func (u Unit) start(d time.Time) time.Time {
	switch u {
	case Week:
		return d.AddDate(0, 0, -((int(d.Weekday()) + 6) % 7))
	case Month:
		return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
	case Year:
		return time.Date(d.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return d
	}
}

// add moves d, which must be the first day of a unit, by n units.
func (u Unit) add(d time.Time, n int) time.Time {
	switch u {
	case Week:
		return d.AddDate(0, 0, 7*n)
	case Month:
		return d.AddDate(0, n, 0)
	case Year:
		return d.AddDate(n, 0, 0)
	default:
		return d.AddDate(0, 0, n)
	}
}

// end returns the last day of the unit containing d.
func (u Unit) end(d time.Time) time.Time {
	return u.add(u.start(d), 1).AddDate(0, 0, -1)
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
