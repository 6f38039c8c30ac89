// Package pipeline wires readers, the ledger, the SQLite store and the
// exporters together.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/homeplotter/internal/plugins"
	"github.com/ArionMiles/homeplotter/pkg/api"
	"github.com/ArionMiles/homeplotter/pkg/config"
	"github.com/ArionMiles/homeplotter/pkg/ledger"
	csvreaderplugin "github.com/ArionMiles/homeplotter/pkg/plugins/readers/csv"
	"github.com/ArionMiles/homeplotter/pkg/store/sqlite"
	"github.com/ArionMiles/homeplotter/pkg/tagger"
	"github.com/ArionMiles/homeplotter/pkg/writer/buffered"
)

var (
	ErrNoAccounts = errors.New("no accounts configured")
	ErrNoDatabase = errors.New("db_path is not configured")
)

// ReaderPlugin is the reader used for account files.
const ReaderPlugin = "csv"

// Runner loads ledgers and exports reports.
type Runner struct {
	registry  *plugins.Registry
	logger    *slog.Logger
	batchSize int
}

// New creates a new pipeline runner.
func New(registry *plugins.Registry, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		registry:  registry,
		logger:    logger,
		batchSize: buffered.DefaultBatchSize,
	}
}

// Hierarchy loads the tag hierarchy named by the configuration.
func (r *Runner) Hierarchy(cfg *config.Config) (*tagger.Hierarchy, error) {
	h, err := tagger.Load(cfg.TagFile, cfg.Mode())
	if err != nil {
		return nil, fmt.Errorf("loading tag hierarchy: %w", err)
	}
	r.logger.Debug("loaded tag hierarchy", "file", cfg.TagFile, "mode", h.Mode(), "tags", len(h.Tags()))
	return h, nil
}

// Load reads every configured account, scales it and merges them into one
// ledger tagged with h. Without accounts the ledger is read from the store.
func (r *Runner) Load(ctx context.Context, cfg *config.Config, h *tagger.Hierarchy) (*ledger.Ledger, error) {
	if len(cfg.Accounts) == 0 {
		if cfg.DBPath == "" {
			return nil, ErrNoAccounts
		}
		return r.LoadStored(ctx, cfg, h)
	}

	var merged *ledger.Ledger
	for _, a := range cfg.Accounts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		l, err := r.readAccount(a, cfg.Layouts, h)
		if err != nil {
			return nil, fmt.Errorf("account %q: %w", a.Name, err)
		}
		if merged == nil {
			merged = l
			continue
		}
		if merged, err = merged.Merge(l); err != nil {
			return nil, fmt.Errorf("merging account %q: %w", a.Name, err)
		}
	}

	rng := merged.DateRange()
	r.logger.Info("Loaded ledger",
		"accounts", len(cfg.Accounts),
		"records", merged.Len(),
		"from", rng.Start.Format(time.DateOnly),
		"to", rng.End.Format(time.DateOnly))
	return merged, nil
}

func (r *Runner) readAccount(a config.Account, layouts []config.Layout, h *tagger.Hierarchy) (*ledger.Ledger, error) {
	readerCfg := csvreaderplugin.Config{FilePath: a.File, Account: a.Name}
	for _, l := range layouts {
		readerCfg.Layouts = append(readerCfg.Layouts, csvreaderplugin.Layout(l))
	}
	raw, err := json.Marshal(readerCfg)
	if err != nil {
		return nil, fmt.Errorf("encoding reader config: %w", err)
	}

	reader, err := r.registry.CreateReader(ReaderPlugin, raw,
		r.logger.With("component", "reader", "plugin", ReaderPlugin, "account", a.Name))
	if err != nil {
		return nil, fmt.Errorf("creating reader: %w", err)
	}
	records, err := reader.Read()
	if err != nil {
		return nil, err
	}

	if s, ok := reader.(interface{ Saved() bool }); ok && s.Saved() {
		// Saved ledgers are already scaled.
		return ledger.New(records, ledger.Config{Hierarchy: h, Scales: savedScales(records)}, r.logger), nil
	}

	l := ledger.New(records, ledger.Config{Hierarchy: h, Scales: api.Scales{a.Name: decimal.NewFromInt(1)}}, r.logger)
	return l.Rescale(a.ScaleValue())
}

// savedScales recovers the scale of every account in a saved ledger from
// its first record with a non-zero unscaled amount.
func savedScales(records []*api.Transaction) api.Scales {
	scales := api.Scales{}
	for _, rec := range records {
		if _, ok := scales[rec.Account]; ok || rec.AmountUnscaled.IsZero() {
			continue
		}
		scales[rec.Account] = rec.Amount.Div(rec.AmountUnscaled)
	}
	for _, rec := range records {
		if _, ok := scales[rec.Account]; !ok {
			scales[rec.Account] = decimal.NewFromInt(1)
		}
	}
	return scales
}

// LoadStored builds a ledger from the SQLite store, retagged with h.
func (r *Runner) LoadStored(ctx context.Context, cfg *config.Config, h *tagger.Hierarchy) (*ledger.Ledger, error) {
	store, err := r.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	scales, err := store.Scales(ctx)
	if err != nil {
		return nil, err
	}
	records, err := store.Transactions(ctx, "")
	if err != nil {
		return nil, err
	}

	r.logger.Info("Loaded stored ledger", "path", cfg.DBPath, "records", len(records))
	return ledger.New(records, ledger.Config{Hierarchy: h, Scales: scales}, r.logger), nil
}

// Import reads the configured accounts and stores the tagged transactions,
// the scales and the hierarchy. Transactions already stored are retagged
// with h. Stored transactions of an account dated on or after its earliest
// imported day are replaced, so a reserved transaction booked on a later
// day is not counted twice. Transactions are committed in batches of whole
// days.
func (r *Runner) Import(ctx context.Context, cfg *config.Config, h *tagger.Hierarchy) (sqlite.ImportResult, error) {
	if len(cfg.Accounts) == 0 {
		return sqlite.ImportResult{}, ErrNoAccounts
	}
	l, err := r.Load(ctx, cfg, h)
	if err != nil {
		return sqlite.ImportResult{}, err
	}

	store, err := r.openStore(ctx, cfg)
	if err != nil {
		return sqlite.ImportResult{}, err
	}
	defer store.Close()

	if err := store.SaveScales(ctx, l.Scales()); err != nil {
		return sqlite.ImportResult{}, err
	}
	if h != nil {
		if err := store.SaveHierarchy(ctx, h); err != nil {
			return sqlite.ImportResult{}, err
		}
		if _, err := store.Retag(ctx, h); err != nil {
			return sqlite.ImportResult{}, err
		}
	}

	var res sqlite.ImportResult
	records := l.All()
	byAccount := map[string][]*api.Transaction{}
	for _, t := range records {
		byAccount[t.Account] = append(byAccount[t.Account], t)
	}
	for _, account := range slices.Sorted(maps.Keys(byAccount)) {
		txs := byAccount[account]
		n, err := store.DeleteAccountFrom(ctx, account, txs[0].Date, txs)
		if err != nil {
			return res, fmt.Errorf("account %q: %w", account, err)
		}
		res.Removed += n
	}

	batches := buffered.New(func(ctx context.Context, batch []*api.Transaction) error {
		got, err := store.Import(ctx, batch)
		res.Inserted += got.Inserted
		res.Skipped += got.Skipped
		return err
	}, buffered.Config{BatchSize: r.batchSize, Boundary: buffered.NewDay}, r.logger.With("component", "import"))

	if err := batches.Write(ctx, records); err != nil {
		return res, err
	}
	if err := batches.Flush(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// Reset empties the store, keeping its schema.
func (r *Runner) Reset(ctx context.Context, cfg *config.Config) error {
	store, err := r.openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Reset(ctx); err != nil {
		return err
	}
	r.logger.Info("Reset store", "path", cfg.DBPath)
	return nil
}

// Stats opens the store and summarises its content.
func (r *Runner) Stats(ctx context.Context, cfg *config.Config) (sqlite.Stats, error) {
	store, err := r.openStore(ctx, cfg)
	if err != nil {
		return sqlite.Stats{}, err
	}
	defer store.Close()
	return store.Stats(ctx)
}

func (r *Runner) openStore(ctx context.Context, cfg *config.Config) (*sqlite.Store, error) {
	if cfg.DBPath == "" {
		return nil, ErrNoDatabase
	}
	store, err := sqlite.Open(ctx, sqlite.Config{Path: cfg.DBPath}, r.logger.With("component", "store"))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return store, nil
}
