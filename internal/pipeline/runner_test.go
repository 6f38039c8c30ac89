package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/homeplotter/internal/plugins"
	"github.com/ArionMiles/homeplotter/pkg/api"
	"github.com/ArionMiles/homeplotter/pkg/config"
	"github.com/ArionMiles/homeplotter/pkg/ledger"
	"github.com/ArionMiles/homeplotter/pkg/logging"
	csvreaderplugin "github.com/ArionMiles/homeplotter/pkg/plugins/readers/csv"
	csvplugin "github.com/ArionMiles/homeplotter/pkg/plugins/writers/csv"
	jsonplugin "github.com/ArionMiles/homeplotter/pkg/plugins/writers/json"
	"github.com/ArionMiles/homeplotter/pkg/store/sqlite"
	"github.com/ArionMiles/homeplotter/pkg/timeseries"
)

func testRunner(t *testing.T) *Runner {
	t.Helper()
	r := plugins.NewRegistry()
	if err := r.RegisterReader(&csvreaderplugin.Plugin{}); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterWriter(&csvplugin.Plugin{}); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterWriter(&jsonplugin.Plugin{}); err != nil {
		t.Fatal(err)
	}
	return New(r, logging.Discard())
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.TagFile = filepath.Join("testdata", "tags.yaml")
	cfg.DBPath = filepath.Join(t.TempDir(), "homeplotter.db")
	cfg.Accounts = []config.Account{
		{Name: "personal", File: filepath.Join("testdata", "personal.csv")},
		{Name: "joint", File: filepath.Join("testdata", "joint.csv"), Scale: "0.5"},
	}
	return &cfg
}

func load(t *testing.T, r *Runner, cfg *config.Config) *ledger.Ledger {
	t.Helper()
	h, err := r.Hierarchy(cfg)
	if err != nil {
		t.Fatalf("Hierarchy() error = %v", err)
	}
	l, err := r.Load(context.Background(), cfg, h)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return l
}

func TestLoadScalesAndTags(t *testing.T) {
	l := load(t, testRunner(t), testConfig(t))

	if got, want := l.Len(), 5; got != want {
		t.Fatalf("got %d records, want %d", got, want)
	}
	if got, want := l.Total(), decimal.NewFromInt(-520); !got.Equal(want) {
		t.Errorf("total: got %s, want %s", got, want)
	}
	scale, err := l.Scale("joint")
	if err != nil {
		t.Fatal(err)
	}
	if want := decimal.RequireFromString("0.5"); !scale.Equal(want) {
		t.Errorf("joint scale: got %s, want %s", scale, want)
	}

	for _, rec := range l.Records() {
		if rec.Text == "Willys" {
			if !rec.HasTag("Willys") || !rec.HasTag("Mat") {
				t.Errorf("got tags %v, want Willys and Mat", rec.Tags)
			}
			if want := decimal.NewFromInt(-150); !rec.Amount.Equal(want) {
				t.Errorf("scaled amount: got %s, want %s", rec.Amount, want)
			}
			if want := decimal.NewFromInt(-300); !rec.AmountUnscaled.Equal(want) {
				t.Errorf("unscaled amount: got %s, want %s", rec.AmountUnscaled, want)
			}
		}
	}
}

func TestLoadWithoutAccounts(t *testing.T) {
	r := testRunner(t)
	cfg := testConfig(t)
	cfg.Accounts = nil
	cfg.DBPath = ""

	_, err := r.Load(context.Background(), cfg, nil)
	if !errors.Is(err, ErrNoAccounts) {
		t.Errorf("got %v, want %v", err, ErrNoAccounts)
	}
}

func TestLoadMissingFile(t *testing.T) {
	r := testRunner(t)
	cfg := testConfig(t)
	cfg.Accounts = append(cfg.Accounts, config.Account{Name: "gone", File: filepath.Join("testdata", "gone.csv")})

	if _, err := r.Load(context.Background(), cfg, nil); err == nil {
		t.Error("expected error for missing account file")
	}
}

func TestImportAndLoadStored(t *testing.T) {
	ctx := context.Background()
	r := testRunner(t)
	cfg := testConfig(t)
	h, err := r.Hierarchy(cfg)
	if err != nil {
		t.Fatal(err)
	}

	res, err := r.Import(ctx, cfg, h)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if res.Inserted != 5 || res.Skipped != 0 {
		t.Errorf("first import: got %+v, want 5 inserted", res)
	}

	res, err = r.Import(ctx, cfg, h)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if res.Inserted != 0 || res.Skipped != 5 {
		t.Errorf("second import: got %+v, want 5 skipped", res)
	}

	stats, err := r.Stats(ctx, cfg)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Transactions != 5 || stats.Accounts != 2 {
		t.Errorf("got %+v, want 5 transactions in 2 accounts", stats)
	}

	cfg.Accounts = nil
	l, err := r.Load(ctx, cfg, h)
	if err != nil {
		t.Fatalf("Load() from store error = %v", err)
	}
	if got, want := l.Total(), decimal.NewFromInt(-520); !got.Equal(want) {
		t.Errorf("stored total: got %s, want %s", got, want)
	}
}

func TestImportBatchesKeepDuplicates(t *testing.T) {
	ctx := context.Background()
	r := testRunner(t)
	r.batchSize = 1

	dir := t.TempDir()
	path := filepath.Join(dir, "cash.csv")
	content := "Datum;Text;Belopp\n2021-03-01;Kaffe;-30\n2021-03-01;Kaffe;-30\n2021-03-02;Kaffe;-30\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(t)
	cfg.Accounts = []config.Account{{Name: "cash", File: path}}

	for i, want := range []sqlite.ImportResult{{Inserted: 3}, {Skipped: 3}} {
		got, err := r.Import(ctx, cfg, nil)
		if err != nil {
			t.Fatalf("Import() error = %v", err)
		}
		if got != want {
			t.Errorf("import %d: got %+v, want %+v", i+1, got, want)
		}
	}
}

func TestImportReplacesBookedReservation(t *testing.T) {
	ctx := context.Background()
	r := testRunner(t)

	path := filepath.Join(t.TempDir(), "bank.csv")
	cfg := testConfig(t)
	cfg.Accounts = []config.Account{{Name: "bank", File: path}}

	exports := []struct {
		content string
		want    sqlite.ImportResult
	}{
		{"Datum;Text;Belopp\n2021-03-01;Hyra;-5000\nReserverat;ICA;-100\n", sqlite.ImportResult{Inserted: 2}},
		{"Datum;Text;Belopp\n2021-03-01;Hyra;-5000\n2021-03-02;ICA;-100\n", sqlite.ImportResult{Inserted: 1, Skipped: 1, Removed: 1}},
	}
	for i, e := range exports {
		if err := os.WriteFile(path, []byte(e.content), 0o600); err != nil {
			t.Fatal(err)
		}
		got, err := r.Import(ctx, cfg, nil)
		if err != nil {
			t.Fatalf("Import() error = %v", err)
		}
		if got != e.want {
			t.Errorf("import %d: got %+v, want %+v", i+1, got, e.want)
		}
	}

	stats, err := r.Stats(ctx, cfg)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Transactions != 2 {
		t.Errorf("got %d stored transactions, want 2", stats.Transactions)
	}
	if want := decimal.NewFromInt(-5100); !stats.Total.Equal(want) {
		t.Errorf("stored total: got %s, want %s", stats.Total, want)
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	r := testRunner(t)
	cfg := testConfig(t)

	if _, err := r.Import(ctx, cfg, nil); err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if err := r.Reset(ctx, cfg); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	stats, err := r.Stats(ctx, cfg)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.Transactions != 0 || stats.Accounts != 0 {
		t.Errorf("got %+v, want an empty store", stats)
	}

	cfg.DBPath = ""
	if err := r.Reset(ctx, cfg); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("got %v, want %v", err, ErrNoDatabase)
	}
}

func TestImportWithoutDatabase(t *testing.T) {
	r := testRunner(t)
	cfg := testConfig(t)
	cfg.DBPath = ""

	_, err := r.Import(context.Background(), cfg, nil)
	if !errors.Is(err, ErrNoDatabase) {
		t.Errorf("got %v, want %v", err, ErrNoDatabase)
	}
}

func TestSeries(t *testing.T) {
	l := load(t, testRunner(t), testConfig(t))

	tests := []struct {
		name string
		opts SeriesOptions
		want [][]string
	}{
		{
			name: "monthly food",
			opts: SeriesOptions{
				Where:   []ledger.Predicate{{Column: ledger.ColumnTags, Operator: "any", Value: []string{"Mat"}}},
				Window:  1,
				Unit:    timeseries.Month,
				Padding: true,
			},
			want: [][]string{{"2021-01-01", "-350.00"}, {"2021-02-01", "-100.00"}},
		},
		{
			name: "yearly account",
			opts: SeriesOptions{
				Where: []ledger.Predicate{
					{Column: ledger.ColumnAccount, Operator: "==", Value: "joint"},
					{Column: ledger.ColumnAmount, Operator: "<", Value: decimal.NewFromInt(-100)},
				},
				Window:  1,
				Unit:    timeseries.Year,
				Padding: true,
			},
			want: [][]string{{"2021-01-01", "-150.00"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Series(l, tt.opts)
			if err != nil {
				t.Fatalf("Series() error = %v", err)
			}
			if !reflect.DeepEqual(got.Rows, tt.want) {
				t.Errorf("got %v, want %v", got.Rows, tt.want)
			}
		})
	}

	if l.Len() != 5 {
		t.Errorf("Series changed the ledger selection: got %d records, want 5", l.Len())
	}
}

func TestSeriesErrors(t *testing.T) {
	l := load(t, testRunner(t), testConfig(t))

	if _, err := Series(l, SeriesOptions{Where: []ledger.Predicate{{Column: "bank", Operator: "==", Value: "x"}}}); err == nil {
		t.Error("expected error for unknown column")
	}
	if _, err := Series(l, SeriesOptions{MovingAverage: 1000}); !errors.Is(err, timeseries.ErrWindowTooLarge) {
		t.Errorf("got %v, want %v", err, timeseries.ErrWindowTooLarge)
	}
}

func TestExportLedgerReload(t *testing.T) {
	r := testRunner(t)
	cfg := testConfig(t)
	l := load(t, r, cfg)

	path := filepath.Join(t.TempDir(), "ledger.csv")
	if err := r.ExportLedger(Output{Format: "csv", FilePath: path}, l); err != nil {
		t.Fatalf("ExportLedger() error = %v", err)
	}

	cfg.Accounts = []config.Account{{Name: "saved", File: path}}
	saved := load(t, r, cfg)
	if got, want := saved.Total(), l.Total(); !got.Equal(want) {
		t.Errorf("reloaded total: got %s, want %s", got, want)
	}
	scale, err := saved.Scale("joint")
	if err != nil {
		t.Fatal(err)
	}
	if want := decimal.RequireFromString("0.5"); !scale.Equal(want) {
		t.Errorf("recovered joint scale: got %s, want %s", scale, want)
	}
}

func TestExportTable(t *testing.T) {
	r := testRunner(t)
	table := &api.Table{Header: []string{"a"}, Rows: [][]string{{"1"}}}

	if err := r.ExportTable(Output{Format: "json", FilePath: filepath.Join(t.TempDir(), "t.json")}, table); err != nil {
		t.Errorf("ExportTable() error = %v", err)
	}
	if err := r.ExportTable(Output{Format: "xlsx", FilePath: "t.xlsx"}, table); err == nil {
		t.Error("expected error for unknown writer")
	}
}
