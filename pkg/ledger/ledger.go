// Package ledger holds the transactions of one or more accounts, tags them
// with a tag hierarchy and extracts filtered time series from them.
package ledger

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/homeplotter/pkg/api"
	"github.com/ArionMiles/homeplotter/pkg/tagger"
	"github.com/ArionMiles/homeplotter/pkg/timeseries"
)

var (
	ErrUnsupportedColumn   = errors.New("unsupported column")
	ErrUnsupportedOperator = errors.New("unsupported operator")
	ErrUnsupportedType     = errors.New("unsupported value type")
	ErrInvalidLevel        = errors.New("invalid tag level")
	ErrScaleConflict       = errors.New("conflicting account scales")
	ErrInvalidFactor       = errors.New("scale factor must be non-zero")
	ErrUnknownAccount      = errors.New("unknown account")
)

// Range is an inclusive span of days.
type Range struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of days between Start and End.
func (r Range) Days() int {
	return int(r.End.Sub(r.Start).Hours() / 24)
}

// Config holds the dependencies of a Ledger.
type Config struct {
	// Hierarchy tags the records. A nil hierarchy leaves them untagged.
	Hierarchy *tagger.Hierarchy
	// Scales registers the scale of each account. Accounts without an
	// entry get a scale of one.
	Scales api.Scales
	// KeepTags keeps the tags already on the records instead of retagging
	// them, as for a previously saved ledger.
	KeepTags bool
}

// Ledger is a date-sorted set of transactions with a filtered view.
// It is not safe for concurrent use.
type Ledger struct {
	logger    *slog.Logger
	hierarchy *tagger.Hierarchy
	scales    api.Scales

	records   []*api.Transaction
	dateRange Range

	selected []*api.Transaction
	fRange   Range
}

// New creates a ledger from copies of records.
func New(records []*api.Transaction, cfg Config, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}

	l := &Ledger{
		logger:    logger.With("component", "ledger"),
		hierarchy: cfg.Hierarchy,
		scales:    cfg.Scales.Clone(),
		records:   cloneAll(records),
	}
	for _, r := range l.records {
		r.Date = api.Day(r.Date)
		if _, ok := l.scales[r.Account]; !ok {
			l.scales[r.Account] = decimal.NewFromInt(1)
		}
	}
	if !cfg.KeepTags {
		l.retag()
	}
	l.sort()
	return l
}

func cloneAll(records []*api.Transaction) []*api.Transaction {
	out := make([]*api.Transaction, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// sort orders the records by date, recomputes the date range and resets the
// filter.
func (l *Ledger) sort() {
	slices.SortStableFunc(l.records, func(a, b *api.Transaction) int {
		return a.Date.Compare(b.Date)
	})
	l.dateRange = Range{}
	if n := len(l.records); n > 0 {
		l.dateRange = Range{Start: l.records[0].Date, End: l.records[n-1].Date}
	}
	l.ResetFilter()
}

func (l *Ledger) retag() {
	for _, r := range l.records {
		if l.hierarchy == nil {
			r.Tags = []string{}
			continue
		}
		r.Tags = l.hierarchy.Match(r.Text)
	}
}

// Clone returns an independent copy of the ledger, including its current
// selection. The hierarchy is shared.
func (l *Ledger) Clone() *Ledger {
	c := *l
	c.scales = l.scales.Clone()
	c.records = make([]*api.Transaction, len(l.records))
	copies := make(map[*api.Transaction]*api.Transaction, len(l.records))
	for i, r := range l.records {
		c.records[i] = r.Clone()
		copies[r] = c.records[i]
	}
	c.selected = make([]*api.Transaction, len(l.selected))
	for i, r := range l.selected {
		c.selected[i] = copies[r]
	}
	return &c
}

// ResetFilter drops every filter applied so far.
func (l *Ledger) ResetFilter() {
	l.selected = slices.Clone(l.records)
	l.fRange = l.dateRange
}

// Hierarchy returns the hierarchy used for tagging.
func (l *Ledger) Hierarchy() *tagger.Hierarchy { return l.hierarchy }

// Len returns the number of selected records.
func (l *Ledger) Len() int { return len(l.selected) }

// Records returns copies of the selected records in date order.
func (l *Ledger) Records() []*api.Transaction { return cloneAll(l.selected) }

// All returns copies of every record, ignoring filters.
func (l *Ledger) All() []*api.Transaction { return cloneAll(l.records) }

// DateRange returns the date range of the selection. Date filters narrow
// it even when no record sits on the new edge.
func (l *Ledger) DateRange() Range { return l.fRange }

// Scales returns a copy of the scale registry.
func (l *Ledger) Scales() api.Scales { return l.scales.Clone() }

// Scale returns the scale of account.
func (l *Ledger) Scale(account string) (decimal.Decimal, error) {
	s, ok := l.scales[account]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownAccount, account)
	}
	return s, nil
}

// Total returns the sum of the selected amounts.
func (l *Ledger) Total() decimal.Decimal {
	total := decimal.Zero
	for _, r := range l.selected {
		total = total.Add(r.Amount)
	}
	return total
}

// Timeseries returns the dense daily series of the selection, spanning the
// selection's date range.
func (l *Ledger) Timeseries() *timeseries.Series {
	obs := make([]timeseries.Point, len(l.selected))
	for i, r := range l.selected {
		obs[i] = timeseries.Point{Date: r.Date, Amount: r.Amount}
	}
	if len(l.records) == 0 {
		return timeseries.New(obs)
	}
	return timeseries.New(obs, timeseries.WithRange(l.fRange.Start, l.fRange.End))
}

// Average returns the mean amount per unit over the whole units of the
// selection. It is zero when no whole unit is covered.
func (l *Ledger) Average(unit timeseries.Unit) (decimal.Decimal, error) {
	ts := l.Timeseries()
	if err := ts.Accumulate(1, unit, timeseries.Options{}); err != nil {
		if errors.Is(err, timeseries.ErrWindowTooLarge) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("averaging per %s: %w", unit, err)
	}
	return ts.Mean(), nil
}

// Retag replaces the hierarchy and retags every record.
func (l *Ledger) Retag(h *tagger.Hierarchy) {
	l.hierarchy = h
	l.retag()
	l.ResetFilter()
}

// Rescale returns a copy of the ledger with amounts and scales multiplied
// by factor. Unscaled amounts are kept. Halving a shared account is
// Rescale(0.5).
func (l *Ledger) Rescale(factor decimal.Decimal) (*Ledger, error) {
	if factor.IsZero() {
		return nil, ErrInvalidFactor
	}

	out := &Ledger{
		logger:    l.logger,
		hierarchy: l.hierarchy,
		scales:    make(api.Scales, len(l.scales)),
		records:   cloneAll(l.records),
	}
	for _, r := range out.records {
		r.Amount = r.Amount.Mul(factor)
	}
	for name, s := range l.scales {
		out.scales[name] = s.Mul(factor)
	}
	out.sort()
	return out, nil
}

// Merge returns a ledger holding the records of both ledgers. The scale
// registries are joined and must agree on shared accounts. The receiver's
// hierarchy is kept, or other's if the receiver has none, and every record
// is retagged with it.
func (l *Ledger) Merge(other *Ledger) (*Ledger, error) {
	scales := l.scales.Clone()
	for name, s := range other.scales {
		if mine, ok := scales[name]; ok && !mine.Equal(s) {
			return nil, fmt.Errorf("%w: account %q has scale %s and %s", ErrScaleConflict, name, mine, s)
		}
		scales[name] = s
	}

	h := l.hierarchy
	if h == nil {
		h = other.hierarchy
	}

	out := &Ledger{
		logger:    l.logger,
		hierarchy: h,
		scales:    scales,
		records:   append(cloneAll(l.records), cloneAll(other.records)...),
	}
	out.retag()
	out.sort()
	return out, nil
}

// Update re-imports account from freshly read records. The records are
// scaled and tagged, and replace every record of the account dated on or
// after the earliest of them.
func (l *Ledger) Update(account string, records []*api.Transaction) error {
	scale, err := l.Scale(account)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	fresh := cloneAll(records)
	cutoff := time.Time{}
	for _, r := range fresh {
		r.Date = api.Day(r.Date)
		r.Account = account
		r.Amount = r.AmountUnscaled.Mul(scale)
		if l.hierarchy != nil {
			r.Tags = l.hierarchy.Match(r.Text)
		} else {
			r.Tags = []string{}
		}
		if cutoff.IsZero() || r.Date.Before(cutoff) {
			cutoff = r.Date
		}
	}

	kept := l.records[:0]
	dropped := 0
	for _, r := range l.records {
		if r.Account == account && !r.Date.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, r)
	}
	l.records = append(kept, fresh...)
	l.sort()

	l.logger.Info("Updated account",
		"account", account,
		"from", cutoff.Format(time.DateOnly),
		"replaced", dropped,
		"added", len(fresh))
	return nil
}
