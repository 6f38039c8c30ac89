// Package timeseries turns irregular dated amounts into dense daily series
// and re-buckets them by day, week, month or year.
package timeseries

import (
	"errors"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidWindow  = errors.New("window must be positive")
	ErrWindowTooLarge = errors.New("window larger than series")
	ErrNotDaily       = errors.New("series is already accumulated")
	ErrUnknownUnit    = errors.New("unknown unit")
)

// Point is one bucket of a series. Date is the bucket's first day.
type Point struct {
	Date   time.Time
	Amount decimal.Decimal
}

// Series is a gapless sequence of points with a uniform step.
// Accumulate and MovingAverage modify the series in place.
type Series struct {
	points []Point
	unit   Unit
	window int
}

type options struct {
	start, end time.Time
	hasRange   bool
}

// Option configures New.
type Option func(*options)

// WithRange extends the series with zero days so that it covers at least
// [start, end]. Observations outside the range are kept.
func WithRange(start, end time.Time) Option {
	return func(o *options) {
		o.start, o.end = day(start), day(end)
		o.hasRange = true
	}
}

// New builds a dense daily series. Observations on the same day are summed
// and missing days between the first and last day are filled with zero.
func New(obs []Point, opts ...Option) *Series {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	sums := make(map[time.Time]decimal.Decimal, len(obs))
	var (
		first, last time.Time
		seen        bool
	)
	for _, p := range obs {
		d := day(p.Date)
		sums[d] = sums[d].Add(p.Amount)
		if !seen || d.Before(first) {
			first = d
		}
		if !seen || d.After(last) {
			last = d
		}
		seen = true
	}
	if o.hasRange {
		if !seen || o.start.Before(first) {
			first = o.start
		}
		if !seen || o.end.After(last) {
			last = o.end
		}
		seen = true
	}

	s := &Series{unit: Day, window: 1}
	if !seen || last.Before(first) {
		return s
	}
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		s.points = append(s.points, Point{Date: d, Amount: sums[d]})
	}
	return s
}

// Len returns the number of points.
func (s *Series) Len() int { return len(s.points) }

// Unit returns the unit of the last accumulation, Day for a fresh series.
func (s *Series) Unit() Unit { return s.unit }

// Window returns the number of units per point.
func (s *Series) Window() int { return s.window }

// Points returns a copy of the points.
func (s *Series) Points() []Point { return slices.Clone(s.points) }

// X returns the point dates.
func (s *Series) X() []time.Time {
	x := make([]time.Time, len(s.points))
	for i, p := range s.points {
		x[i] = p.Date
	}
	return x
}

// Y returns the point amounts.
func (s *Series) Y() []decimal.Decimal {
	y := make([]decimal.Decimal, len(s.points))
	for i, p := range s.points {
		y[i] = p.Amount
	}
	return y
}

// Total returns the sum of all points.
func (s *Series) Total() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.points {
		total = total.Add(p.Amount)
	}
	return total
}

// Mean returns the average point amount, zero for an empty series.
func (s *Series) Mean() decimal.Decimal {
	if len(s.points) == 0 {
		return decimal.Zero
	}
	return s.Total().Div(decimal.NewFromInt(int64(len(s.points))))
}

// MovingAverage replaces each point with the mean of itself and the
// window-1 points before it. The first window-1 points are dropped.
func (s *Series) MovingAverage(window int) error {
	if window <= 0 {
		return ErrInvalidWindow
	}
	if window > len(s.points) {
		return ErrWindowTooLarge
	}

	n := decimal.NewFromInt(int64(window))
	out := make([]Point, 0, len(s.points)-window+1)
	sum := decimal.Zero
	for i, p := range s.points {
		sum = sum.Add(p.Amount)
		if i >= window {
			sum = sum.Sub(s.points[i-window].Amount)
		}
		if i >= window-1 {
			out = append(out, Point{Date: p.Date, Amount: sum.Div(n)})
		}
	}
	s.points = out
	return nil
}
