package timeseries

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Options controls how partial buckets at the edges are handled.
type Options struct {
	// Forward anchors day windows at the first day instead of the last, so
	// the partial bucket ends up at the end of the series.
	Forward bool
	// Padding fills a partial edge bucket with zero days instead of
	// dropping it.
	Padding bool
}

// Accumulate sums the daily series into buckets of window units.
//
// Day buckets are runs of window consecutive days anchored at the last day,
// or at the first day with Forward. Week, Month and Year buckets follow the
// calendar (weeks start on Monday); with a window above one, consecutive
// calendar buckets are then grouped the same way day buckets are. Without
// Padding partial edge buckets are dropped together with their amounts.
//
// Only a daily series can be accumulated, except that a window equal to
// the number of points always collapses the series into a single point.
func (s *Series) Accumulate(window int, unit Unit, opts Options) error {
	if window <= 0 {
		return ErrInvalidWindow
	}
	if unit < Day || unit > Year {
		return fmt.Errorf("%w: %v", ErrUnknownUnit, unit)
	}
	if len(s.points) == 0 {
		s.unit, s.window = unit, window
		return nil
	}

	if unit == Day && window == len(s.points) {
		s.points = []Point{{Date: s.points[0].Date, Amount: s.Total()}}
		s.window *= window
		return nil
	}
	if s.unit != Day || s.window != 1 {
		return fmt.Errorf("%w: %d %s per point", ErrNotDaily, s.window, s.unit)
	}

	points := s.points
	if unit != Day {
		points = s.calendarBuckets(unit, opts.Padding)
		if len(points) == 0 {
			return fmt.Errorf("%w: no complete %s in %d days", ErrWindowTooLarge, unit, len(s.points))
		}
	}

	grouped, err := group(points, window, unit, opts)
	if err != nil {
		return err
	}
	s.points, s.unit, s.window = grouped, unit, window
	return nil
}

// calendarBuckets sums the daily points into whole calendar units. Partial
// units at either edge are padded with zero days or dropped.
func (s *Series) calendarBuckets(unit Unit, padding bool) []Point {
	first, last := s.points[0].Date, s.points[len(s.points)-1].Date

	from, to := unit.start(first), unit.start(last)
	if !padding {
		if !from.Equal(first) {
			from = unit.add(from, 1)
		}
		if !unit.end(last).Equal(last) {
			to = unit.add(to, -1)
		}
	}

	var out []Point
	for d := from; !d.After(to); d = unit.add(d, 1) {
		out = append(out, Point{Date: d, Amount: decimal.Zero})
	}
	if len(out) == 0 {
		return nil
	}
	for _, p := range s.points {
		if p.Date.Before(from) {
			continue
		}
		i := index(from, unit.start(p.Date), unit)
		if i >= len(out) {
			break
		}
		out[i].Amount = out[i].Amount.Add(p.Amount)
	}
	return out
}

// index counts the units between from and d, both unit starts.
func index(from, d time.Time, unit Unit) int {
	switch unit {
	case Week:
		return int(d.Sub(from).Hours()/24) / 7
	case Month:
		return (d.Year()-from.Year())*12 + int(d.Month()) - int(from.Month())
	case Year:
		return d.Year() - from.Year()
	default:
		return int(d.Sub(from).Hours() / 24)
	}
}

// group sums consecutive runs of window points. The remainder is padded with
// zero points or dropped, at the start unless opts.Forward is set.
func group(points []Point, window int, unit Unit, opts Options) ([]Point, error) {
	if window == 1 {
		return points, nil
	}

	if r := len(points) % window; r != 0 {
		switch {
		case opts.Padding && opts.Forward:
			last := points[len(points)-1].Date
			for i := 1; i <= window-r; i++ {
				points = append(points, Point{Date: unit.add(last, i), Amount: decimal.Zero})
			}
		case opts.Padding:
			first := points[0].Date
			pad := make([]Point, 0, window-r+len(points))
			for i := window - r; i > 0; i-- {
				pad = append(pad, Point{Date: unit.add(first, -i), Amount: decimal.Zero})
			}
			points = append(pad, points...)
		case opts.Forward:
			points = points[:len(points)-r]
		default:
			points = points[r:]
		}
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: window %d", ErrWindowTooLarge, window)
	}

	out := make([]Point, 0, len(points)/window)
	for i := 0; i < len(points); i += window {
		sum := decimal.Zero
		for _, p := range points[i : i+window] {
			sum = sum.Add(p.Amount)
		}
		out = append(out, Point{Date: points[i].Date, Amount: sum})
	}
	return out, nil
}
