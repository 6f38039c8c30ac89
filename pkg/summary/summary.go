// Package summary renders the monthly tag summary report: one row per tag
// group, one column per month.
package summary

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/homeplotter/pkg/api"
	"github.com/ArionMiles/homeplotter/pkg/ledger"
	"github.com/ArionMiles/homeplotter/pkg/timeseries"
)

// DefaultOther names the group of tags below the limit.
const DefaultOther = "Other"

// Config holds the report parameters.
type Config struct {
	// Limit is the monthly average a tag must exceed to get its own row.
	Limit decimal.Decimal
	// Start drops records before it. Zero keeps the whole selection.
	Start time.Time
	// Other names the merged group. Defaults to DefaultOther.
	Other string
}

// Build groups the tags of the ledger's selection with TagsByAverage and
// accumulates each group into padded months starting at cfg.Start. The
// header row is "Tag" followed by the bucket dates. The ledger is left
// unchanged.
func Build(l *ledger.Ledger, cfg Config) (*api.Table, error) {
	if cfg.Other == "" {
		cfg.Other = DefaultOther
	}

	groups, err := l.TagsByAverage(cfg.Limit, cfg.Other)
	if err != nil {
		return nil, fmt.Errorf("grouping tags: %w", err)
	}

	x, _, err := series(l, nil, cfg)
	if err != nil {
		return nil, err
	}

	table := &api.Table{Header: []string{"Tag"}, Rows: [][]string{}}
	for _, d := range x {
		table.Header = append(table.Header, d.Format(time.DateOnly))
	}

	for _, g := range groups {
		_, y, err := series(l, g.Tags, cfg)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", g.Name, err)
		}
		row := []string{g.Name}
		for _, v := range y {
			row = append(row, v.StringFixed(2))
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// series accumulates the records carrying any of tags, or every record when
// tags is nil.
func series(l *ledger.Ledger, tags []string, cfg Config) ([]time.Time, []decimal.Decimal, error) {
	c := l.Clone()
	if tags != nil {
		if err := c.Filter(ledger.Predicate{Column: ledger.ColumnTags, Operator: "any", Value: tags}); err != nil {
			return nil, nil, err
		}
	}
	if !cfg.Start.IsZero() {
		if err := c.Filter(ledger.Predicate{Column: ledger.ColumnDate, Operator: ">=", Value: cfg.Start}); err != nil {
			return nil, nil, err
		}
	}

	ts := c.Timeseries()
	if err := ts.Accumulate(1, timeseries.Month, timeseries.Options{Padding: true}); err != nil {
		return nil, nil, fmt.Errorf("accumulating per month: %w", err)
	}
	return ts.X(), ts.Y(), nil
}
