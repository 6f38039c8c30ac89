package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/homeplotter/internal/pipeline"
	"github.com/ArionMiles/homeplotter/pkg/summary"
	"github.com/ArionMiles/homeplotter/pkg/timeseries"
)

// runSeries filters the ledger and exports its time series, or prints the
// average per unit with -avg.
func runSeries(ctx context.Context, args []string, out io.Writer) error {
	fs, configPath := newFlagSet("series", out)
	var where whereFlag
	fs.Var(&where, "where", `Filter "<column> <operator> <value>", repeatable`)
	unitName := fs.String("unit", "month", "Bucket unit: day, week, month or year")
	window := fs.Int("window", 1, "Bucket size in units, 0 keeps the daily series")
	padding := fs.Bool("padding", false, "Keep partial edge buckets")
	forward := fs.Bool("forward", false, "Anchor day windows at the first day")
	ma := fs.Int("ma", 0, "Moving average over this many buckets")
	avg := fs.Bool("avg", false, "Print the average per unit instead of exporting")
	format := fs.String("format", "csv", "Output format: csv or json")
	outPath := fs.String("out", "", "Output file (default: <output_dir>/series.<format>)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	unit, err := timeseries.ParseUnit(*unitName)
	if err != nil {
		return err
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	l, err := a.loadLedger(ctx)
	if err != nil {
		return err
	}

	if *avg {
		sel, err := pipeline.Select(l, where)
		if err != nil {
			return err
		}
		mean, err := sel.Average(unit)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Average per %s: %s\n", unit, mean.StringFixed(2))
		return nil
	}

	table, err := pipeline.Series(l, pipeline.SeriesOptions{
		Where:         where,
		Window:        *window,
		Unit:          unit,
		Padding:       *padding,
		Forward:       *forward,
		MovingAverage: *ma,
	})
	if err != nil {
		return err
	}

	o, err := a.output(*format, *outPath, "series", "")
	if err != nil {
		return err
	}
	if err := a.runner.ExportTable(o, table); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %d points to %s\n", len(table.Rows), o.FilePath)
	return nil
}

// runSummary exports the monthly summary of the tag groups.
func runSummary(ctx context.Context, args []string, out io.Writer) error {
	fs, configPath := newFlagSet("summary", out)
	var where whereFlag
	fs.Var(&where, "where", `Filter "<column> <operator> <value>", repeatable`)
	limit := fs.String("limit", "1000", "Monthly average above which a tag is reported on its own")
	start := fs.String("start", "", "First day of the report, YYYY-MM-DD (default: whole range)")
	other := fs.String("other", summary.DefaultOther, "Name of the merged group")
	format := fs.String("format", "csv", "Output format: csv or json")
	outPath := fs.String("out", "", "Output file (default: <output_dir>/summary.<format>)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := summary.Config{Other: *other}
	var err error
	if cfg.Limit, err = decimal.NewFromString(*limit); err != nil {
		return fmt.Errorf("invalid -limit %q: %w", *limit, err)
	}
	if *start != "" {
		if cfg.Start, err = time.Parse(time.DateOnly, *start); err != nil {
			return fmt.Errorf("invalid -start %q: %w", *start, err)
		}
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	l, err := a.loadLedger(ctx)
	if err != nil {
		return err
	}
	if l, err = pipeline.Select(l, where); err != nil {
		return err
	}

	table, err := summary.Build(l, cfg)
	if err != nil {
		return err
	}

	o, err := a.output(*format, *outPath, "summary", ",")
	if err != nil {
		return err
	}
	if err := a.runner.ExportTable(o, table); err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %d groups to %s\n", len(table.Rows), o.FilePath)
	return nil
}

// runSave writes the selected records of the tagged ledger to a file that
// can be configured as an account again.
func runSave(ctx context.Context, args []string, out io.Writer) error {
	fs, configPath := newFlagSet("save", out)
	var where whereFlag
	fs.Var(&where, "where", `Filter "<column> <operator> <value>", repeatable`)
	format := fs.String("format", "csv", "Output format: csv or json")
	outPath := fs.String("out", "", "Output file (default: <output_dir>/ledger.<format>)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	l, err := a.loadLedger(ctx)
	if err != nil {
		return err
	}
	if l, err = pipeline.Select(l, where); err != nil {
		return err
	}

	o, err := a.output(*format, *outPath, "ledger", "")
	if err != nil {
		return err
	}
	if err := a.runner.ExportLedger(o, l); err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved %d transactions to %s\n", l.Len(), o.FilePath)
	return nil
}
