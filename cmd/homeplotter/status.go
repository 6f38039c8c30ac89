package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ArionMiles/homeplotter/pkg/config"
	"github.com/ArionMiles/homeplotter/pkg/logging"
	csvreader "github.com/ArionMiles/homeplotter/pkg/reader/csv"
	"github.com/ArionMiles/homeplotter/pkg/tagger"
)

// runStatus checks the configuration, the tag file, every account file and
// the database.
func runStatus(ctx context.Context, args []string, out io.Writer) error {
	fs, configPath := newFlagSet("status", out)
	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintln(out, "=== homeplotter status ===")
	fmt.Fprintln(out)

	allGood := true

	fmt.Fprintf(out, "Config file (%s): ", *configPath)
	a, err := newApp(*configPath)
	if err != nil {
		fmt.Fprintf(out, "✗ %v\n", err)
		printFinalStatus(out, false)
		return nil
	}
	fmt.Fprintln(out, "✓ Loaded")

	checkTagFile(out, a.cfg, &allGood)
	checkAccounts(out, a.cfg, &allGood)
	checkDatabase(ctx, out, a, &allGood)

	printFinalStatus(out, allGood)
	return nil
}

func checkTagFile(out io.Writer, cfg *config.Config, allGood *bool) {
	fmt.Fprintf(out, "Tag file (%s): ", cfg.TagFile)
	h, err := tagger.Load(cfg.TagFile, cfg.Mode())
	if err != nil {
		fmt.Fprintf(out, "✗ %v\n", err)
		*allGood = false
		return
	}

	patterns := 0
	for _, t := range h.Tags() {
		patterns += len(h.Patterns(t))
	}
	fmt.Fprintf(out, "✓ %d tags, %d patterns (%s mode)\n", len(h.Tags()), patterns, h.Mode())
}

func checkAccounts(out io.Writer, cfg *config.Config, allGood *bool) {
	if len(cfg.Accounts) == 0 {
		fmt.Fprintln(out, "Accounts: - none configured")
		return
	}

	layouts := make([]csvreader.Layout, len(cfg.Layouts))
	for i, l := range cfg.Layouts {
		layouts[i] = csvreader.Layout(l)
	}

	fmt.Fprintln(out, "Accounts:")
	for _, acc := range cfg.Accounts {
		fmt.Fprintf(out, "  %s (%s): ", acc.Name, acc.File)
		if _, err := os.Stat(acc.File); os.IsNotExist(err) {
			fmt.Fprintln(out, "✗ Not found")
			*allGood = false
			continue
		}

		r := csvreader.New(csvreader.Config{
			FilePath: acc.File,
			Account:  acc.Name,
			Layouts:  layouts,
		}, logging.Discard())
		records, err := r.Read()
		if err != nil {
			fmt.Fprintf(out, "✗ %v\n", err)
			*allGood = false
			continue
		}

		kind := "bank export"
		if r.Saved() {
			kind = "saved ledger"
		}
		fmt.Fprintf(out, "✓ %d transactions (%s, scale %s)\n", len(records), kind, acc.ScaleValue())
	}
}

func checkDatabase(ctx context.Context, out io.Writer, a *app, allGood *bool) {
	if a.cfg.DBPath == "" {
		fmt.Fprintln(out, "Database: - not configured")
		return
	}

	fmt.Fprintf(out, "Database (%s): ", a.cfg.DBPath)
	if _, err := os.Stat(a.cfg.DBPath); os.IsNotExist(err) {
		fmt.Fprintln(out, "⚠ Not created yet (run 'homeplotter import')")
		return
	}

	stats, err := a.runner.Stats(ctx, a.cfg)
	if err != nil {
		fmt.Fprintf(out, "✗ %v\n", err)
		*allGood = false
		return
	}
	if stats.Transactions == 0 {
		fmt.Fprintln(out, "✓ Empty")
		return
	}
	fmt.Fprintf(out, "✓ %d transactions in %d accounts, %d untagged, %s to %s\n",
		stats.Transactions, stats.Accounts, stats.Untagged,
		stats.First.Format(time.DateOnly), stats.Last.Format(time.DateOnly))
}

func printFinalStatus(out io.Writer, allGood bool) {
	fmt.Fprintln(out)
	if allGood {
		fmt.Fprintln(out, "Status: ✓ Ready")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Run 'homeplotter import' to store the accounts, or 'homeplotter summary' for a report.")
	} else {
		fmt.Fprintln(out, "Status: ✗ Configuration issues detected")
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Fix the issues above, then run 'homeplotter status' again.")
	}
}
