package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ArionMiles/homeplotter/internal/pipeline"
	"github.com/ArionMiles/homeplotter/pkg/ledger"
)

// runImport reads every configured account into the SQLite database.
func runImport(ctx context.Context, args []string, out io.Writer) error {
	fs, configPath := newFlagSet("import", out)
	reset := fs.Bool("reset", false, "empty the database before importing")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	h, err := a.runner.Hierarchy(a.cfg)
	if err != nil {
		return err
	}

	if *reset {
		if err := a.runner.Reset(ctx, a.cfg); err != nil {
			return fmt.Errorf("resetting database: %w", err)
		}
		fmt.Fprintf(out, "Emptied %s\n", a.cfg.DBPath)
	}

	res, err := a.runner.Import(ctx, a.cfg, h)
	if err != nil {
		return fmt.Errorf("importing: %w", err)
	}

	fmt.Fprintf(out, "Imported %d transactions into %s (%d already stored)\n", res.Inserted, a.cfg.DBPath, res.Skipped)
	if res.Removed > 0 {
		fmt.Fprintf(out, "Replaced %d transactions no longer in the bank exports\n", res.Removed)
	}
	return nil
}

func (a *app) loadLedger(ctx context.Context) (*ledger.Ledger, error) {
	h, err := a.runner.Hierarchy(a.cfg)
	if err != nil {
		return nil, err
	}
	return a.runner.Load(ctx, a.cfg, h)
}

// output resolves the writer settings of a command. An empty path writes
// name.format into the configured output directory.
func (a *app) output(format, path, name, separator string) (pipeline.Output, error) {
	format = strings.ToLower(format)
	if path == "" {
		path = filepath.Join(a.cfg.OutputDir, name+"."+format)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return pipeline.Output{}, fmt.Errorf("creating output directory: %w", err)
		}
	}

	return pipeline.Output{
		Format:    format,
		FilePath:  path,
		Encoding:  a.cfg.OutputEncoding,
		Separator: separator,
	}, nil
}

// whereFlag collects repeated -where predicates.
type whereFlag []ledger.Predicate

func (w *whereFlag) String() string {
	if w == nil {
		return ""
	}
	parts := make([]string, len(*w))
	for i, p := range *w {
		parts[i] = p.String()
	}
	return strings.Join(parts, "; ")
}

func (w *whereFlag) Set(s string) error {
	p, err := ledger.ParsePredicate(s)
	if err != nil {
		return err
	}
	*w = append(*w, p)
	return nil
}
