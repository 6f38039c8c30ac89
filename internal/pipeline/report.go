package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ArionMiles/homeplotter/pkg/api"
	"github.com/ArionMiles/homeplotter/pkg/ledger"
	"github.com/ArionMiles/homeplotter/pkg/timeseries"
)

// SeriesOptions selects records and shapes the resulting series.
type SeriesOptions struct {
	Where []ledger.Predicate
	// Window is the bucket size in Unit. Zero keeps the daily series.
	Window        int
	Unit          timeseries.Unit
	Padding       bool
	Forward       bool
	MovingAverage int
}

// Series filters a copy of l and returns its accumulated time series as a
// two column table.
func Series(l *ledger.Ledger, opts SeriesOptions) (*api.Table, error) {
	sel, err := Select(l, opts.Where)
	if err != nil {
		return nil, err
	}

	ts := sel.Timeseries()
	if opts.Window > 0 {
		err := ts.Accumulate(opts.Window, opts.Unit, timeseries.Options{
			Padding: opts.Padding,
			Forward: opts.Forward,
		})
		if err != nil {
			return nil, fmt.Errorf("accumulating %d %s: %w", opts.Window, opts.Unit, err)
		}
	}
	if opts.MovingAverage > 0 {
		if err := ts.MovingAverage(opts.MovingAverage); err != nil {
			return nil, fmt.Errorf("moving average of %d: %w", opts.MovingAverage, err)
		}
	}

	table := &api.Table{Header: []string{ledger.ColumnDate, ledger.ColumnAmount}}
	for _, p := range ts.Points() {
		table.Rows = append(table.Rows, []string{p.Date.Format(time.DateOnly), p.Amount.StringFixed(2)})
	}
	return table, nil
}

// Select returns a copy of l narrowed by every predicate.
func Select(l *ledger.Ledger, where []ledger.Predicate) (*ledger.Ledger, error) {
	sel := l.Clone()
	for _, p := range where {
		if err := sel.Filter(p); err != nil {
			return nil, err
		}
	}
	return sel, nil
}

// Output names a writer plugin and where it writes.
type Output struct {
	Format    string `json:"-"`
	FilePath  string `json:"filePath"`
	Encoding  string `json:"encoding,omitempty"`
	Separator string `json:"separator,omitempty"`
}

// ExportTable writes table through the writer plugin named by out.
func (r *Runner) ExportTable(out Output, table *api.Table) error {
	w, err := r.writer(out)
	if err != nil {
		return err
	}
	if err := w.WriteTable(table); err != nil {
		_ = w.Close()
		return fmt.Errorf("writing %s: %w", out.FilePath, err)
	}
	return w.Close()
}

// ExportLedger writes the selected records of l through the writer plugin
// named by out.
func (r *Runner) ExportLedger(out Output, l *ledger.Ledger) error {
	w, err := r.writer(out)
	if err != nil {
		return err
	}
	if err := w.Write(l.Records()); err != nil {
		_ = w.Close()
		return fmt.Errorf("writing %s: %w", out.FilePath, err)
	}
	if err := w.Close(); err != nil {
		return err
	}

	r.logger.Info("Saved ledger", "format", out.Format, "path", out.FilePath, "records", l.Len())
	return nil
}

func (r *Runner) writer(out Output) (api.Exporter, error) {
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encoding writer config: %w", err)
	}
	w, err := r.registry.CreateWriter(out.Format, raw,
		r.logger.With("component", "writer", "plugin", out.Format))
	if err != nil {
		return nil, fmt.Errorf("creating %s writer: %w", out.Format, err)
	}
	return w, nil
}
