package timeseries

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func pt(y int, m time.Month, d int, amount int64) Point {
	return Point{Date: date(y, m, d), Amount: decimal.NewFromInt(amount)}
}

// sample is spread over the turn of the year with a duplicate date.
func sample() []Point {
	return []Point{
		pt(2020, 12, 23, 200),
		pt(2020, 12, 24, 50),
		pt(2020, 12, 30, 200),
		pt(2020, 12, 30, 400),
		pt(2020, 12, 31, -300),
		pt(2021, 1, 2, 100),
	}
}

func TestNew(t *testing.T) {
	s := New(sample())

	if got := s.Len(); got != 11 {
		t.Errorf("Len(): got %d, want 11", got)
	}
	if got, want := s.Total(), decimal.NewFromInt(650); !got.Equal(want) {
		t.Errorf("Total(): got %v, want %v", got, want)
	}

	x := s.X()
	for i := 1; i < len(x); i++ {
		if got := x[i].Sub(x[i-1]); got != 24*time.Hour {
			t.Fatalf("step %d: got %v, want 24h", i, got)
		}
	}
	if got, want := s.Y()[7], decimal.NewFromInt(600); !got.Equal(want) {
		t.Errorf("2020-12-30: got %v, want %v", got, want)
	}
}

func TestNewUnsorted(t *testing.T) {
	obs := sample()
	obs[0], obs[5] = obs[5], obs[0]
	s := New(obs)

	if got, want := s.X()[0], date(2020, 12, 23); !got.Equal(want) {
		t.Errorf("first date: got %v, want %v", got, want)
	}
	if got, want := s.Total(), decimal.NewFromInt(650); !got.Equal(want) {
		t.Errorf("Total(): got %v, want %v", got, want)
	}
}

func TestNewWithRange(t *testing.T) {
	tests := []struct {
		name       string
		obs        []Point
		start, end time.Time
		wantLen    int
		wantFirst  time.Time
	}{
		{"extends both ends", sample(), date(2020, 12, 20), date(2021, 1, 5), 17, date(2020, 12, 20)},
		{"never trims", sample(), date(2020, 12, 25), date(2020, 12, 28), 11, date(2020, 12, 23)},
		{"empty input", nil, date(2021, 1, 1), date(2021, 1, 31), 31, date(2021, 1, 1)},
		{"first day of year one", nil, date(1, 1, 1), date(1, 1, 2), 2, date(1, 1, 1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := New(tc.obs, WithRange(tc.start, tc.end))
			if s.Len() != tc.wantLen {
				t.Fatalf("Len(): got %d, want %d", s.Len(), tc.wantLen)
			}
			if got := s.X()[0]; !got.Equal(tc.wantFirst) {
				t.Errorf("first date: got %v, want %v", got, tc.wantFirst)
			}
		})
	}
}

func TestNewYearOne(t *testing.T) {
	s := New([]Point{
		{Date: date(1, 1, 1), Amount: decimal.NewFromInt(5)},
		{Date: date(1, 1, 3), Amount: decimal.NewFromInt(7)},
	})
	if s.Len() != 3 {
		t.Fatalf("Len(): got %d, want 3", s.Len())
	}
	if got, want := s.X()[0], date(1, 1, 1); !got.Equal(want) {
		t.Errorf("first date: got %v, want %v", got, want)
	}
	if got, want := s.Total(), decimal.NewFromInt(12); !got.Equal(want) {
		t.Errorf("Total(): got %v, want %v", got, want)
	}
}

func TestNewEmpty(t *testing.T) {
	s := New(nil)
	if s.Len() != 0 {
		t.Errorf("Len(): got %d, want 0", s.Len())
	}
	if !s.Mean().IsZero() {
		t.Errorf("Mean(): got %v, want 0", s.Mean())
	}
	if err := s.Accumulate(1, Month, Options{}); err != nil {
		t.Errorf("Accumulate() on empty series: %v", err)
	}
}

func TestMovingAverage(t *testing.T) {
	s := New([]Point{
		pt(2021, 1, 1, 1),
		pt(2021, 1, 2, 2),
		pt(2021, 1, 3, 3),
		pt(2021, 1, 4, 4),
		pt(2021, 1, 5, 8),
	})

	if err := s.MovingAverage(3); err != nil {
		t.Fatalf("MovingAverage() error = %v", err)
	}

	want := []Point{pt(2021, 1, 3, 2), pt(2021, 1, 4, 3), pt(2021, 1, 5, 5)}
	got := s.Points()
	if len(got) != len(want) {
		t.Fatalf("len: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if !got[i].Date.Equal(want[i].Date) || !got[i].Amount.Equal(want[i].Amount) {
			t.Errorf("point %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestMovingAverageErrors(t *testing.T) {
	tests := []struct {
		window int
		want   error
	}{
		{0, ErrInvalidWindow},
		{-2, ErrInvalidWindow},
		{12, ErrWindowTooLarge},
	}
	for _, tc := range tests {
		s := New(sample())
		if err := s.MovingAverage(tc.window); !errors.Is(err, tc.want) {
			t.Errorf("MovingAverage(%d): got %v, want %v", tc.window, err, tc.want)
		}
	}
}

func TestParseUnit(t *testing.T) {
	tests := []struct {
		in      string
		want    Unit
		wantErr bool
	}{
		{"Day", Day, false},
		{"week", Week, false},
		{"MONTH", Month, false},
		{"years", Year, false},
		{"fortnight", 0, true},
	}
	for _, tc := range tests {
		got, err := ParseUnit(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseUnit(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if err != nil && !errors.Is(err, ErrUnknownUnit) {
			t.Errorf("ParseUnit(%q): got %v, want %v", tc.in, err, ErrUnknownUnit)
		}
		if got != tc.want {
			t.Errorf("ParseUnit(%q): got %v, want %v", tc.in, got, tc.want)
		}
	}
}
