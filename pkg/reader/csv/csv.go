// Package csv implements a Reader for semicolon-separated bank exports and
// for ledgers previously saved by the csv writer.
package csv

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ArionMiles/homeplotter/pkg/api"
	"github.com/ArionMiles/homeplotter/pkg/ledger"
)

var (
	ErrUnsupportedLayout = errors.New("unsupported csv file structure")
	ErrInvalidDate       = errors.New("invalid date")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrMalformedRow      = errors.New("malformed row")
)

// Reserved marks a transaction that has not been booked yet. It is dated
// today.
const Reserved = "Reserverat"

// Layout names the header columns holding the date, amount and text of a
// bank export.
type Layout struct {
	Date   string
	Amount string
	Text   string
}

// DefaultLayouts are tried after the configured ones. The second entry is
// the first one read as Latin-1 by the bank's own export tool.
var DefaultLayouts = []Layout{
	{Date: "Bokföringsdag", Amount: "Belopp", Text: "Rubrik"},
	{Date: "BokfÃ¶ringsdag", Amount: "Belopp", Text: "Rubrik"},
	{Date: "Datum", Amount: "Belopp", Text: "Text"},
}

// Config holds configuration for the CSV reader.
type Config struct {
	// FilePath is the path to the CSV file.
	FilePath string
	// Account names the records of a bank export. Defaults to the file name
	// without its extension. Saved ledgers keep their own account column.
	Account string
	// Layouts are tried before DefaultLayouts.
	Layouts []Layout
	// Now dates reserved transactions. Defaults to time.Now.
	Now func() time.Time
}

// Reader reads transactions from a CSV file.
type Reader struct {
	filePath string
	account  string
	layouts  []Layout
	now      func() time.Time
	saved    bool
	logger   *slog.Logger
}

// New creates a new CSV reader.
func New(cfg Config, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}

	account := cfg.Account
	if account == "" {
		base := filepath.Base(cfg.FilePath)
		account = strings.TrimSuffix(base, filepath.Ext(base))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Reader{
		filePath: cfg.FilePath,
		account:  account,
		layouts:  append(slices.Clone(cfg.Layouts), DefaultLayouts...),
		now:      now,
		logger:   logger,
	}
}

// Saved reports whether the last Read loaded a saved ledger rather than a
// bank export.
func (r *Reader) Saved() bool { return r.saved }

// Read reads every transaction in the file.
func (r *Reader) Read() ([]*api.Transaction, error) {
	f, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("opening csv file: %w", err)
	}
	defer f.Close()

	records, err := r.decode(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", r.filePath, err)
	}

	r.logger.Info("Read transactions",
		"file", r.filePath,
		"account", r.account,
		"saved_ledger", r.saved,
		"count", len(records))
	return records, nil
}

func (r *Reader) decode(in io.Reader) ([]*api.Transaction, error) {
	// Strips a UTF-8 BOM and decodes UTF-16 files that start with one.
	dec := transform.NewReader(in, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	cr := csv.NewReader(dec)
	cr.Comma = ';'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrUnsupportedLayout)
		}
		return nil, fmt.Errorf("reading header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	r.saved = slices.Equal(header, ledger.Columns)
	if r.saved {
		return r.decodeSaved(cr)
	}

	cols, err := r.columns(header)
	if err != nil {
		return nil, err
	}
	return r.decodeExport(cr, cols)
}

type columns struct{ date, amount, text int }

func (r *Reader) columns(header []string) (columns, error) {
	for _, l := range r.layouts {
		c := columns{
			date:   slices.Index(header, l.Date),
			amount: slices.Index(header, l.Amount),
			text:   slices.Index(header, l.Text),
		}
		if c.date >= 0 && c.amount >= 0 && c.text >= 0 {
			return c, nil
		}
	}
	return columns{}, fmt.Errorf("%w: header %q", ErrUnsupportedLayout, header)
}

func (r *Reader) decodeExport(cr *csv.Reader, c columns) ([]*api.Transaction, error) {
	need := max(c.date, c.amount, c.text) + 1

	var out []*api.Transaction
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		if len(row) < need {
			return nil, fmt.Errorf("line %d: %w: got %d fields, want at least %d", line, ErrMalformedRow, len(row), need)
		}

		date, err := ParseDate(row[c.date], r.now)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		amount, err := ParseAmount(row[c.amount])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		out = append(out, &api.Transaction{
			Date:           date,
			Amount:         amount,
			Text:           row[c.text],
			Tags:           []string{},
			AmountUnscaled: amount,
			Account:        r.account,
		})
	}
}

func (r *Reader) decodeSaved(cr *csv.Reader) ([]*api.Transaction, error) {
	var out []*api.Transaction
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		line, _ := cr.FieldPos(0)
		if len(row) != len(ledger.Columns) {
			return nil, fmt.Errorf("line %d: %w: got %d fields, want %d", line, ErrMalformedRow, len(row), len(ledger.Columns))
		}

		t, err := decodeSavedRow(row)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, t)
	}
}

func decodeSavedRow(row []string) (*api.Transaction, error) {
	date, err := time.Parse(time.DateOnly, row[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, row[0])
	}
	amount, err := decimal.NewFromString(row[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, row[1])
	}
	unscaled, err := decimal.NewFromString(row[4])
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, row[4])
	}
	tags, err := parseTags(row[3])
	if err != nil {
		return nil, err
	}

	return &api.Transaction{
		Date:           date,
		Amount:         amount,
		Text:           row[2],
		Tags:           tags,
		AmountUnscaled: unscaled,
		Account:        row[5],
	}, nil
}

// parseTags reads a tag list saved as a JSON array. Older files quote the
// tags with single quotes.
func parseTags(s string) ([]string, error) {
	tags := []string{}
	if strings.TrimSpace(s) == "" {
		return tags, nil
	}
	if err := json.Unmarshal([]byte(s), &tags); err == nil {
		return tags, nil
	}
	if err := json.Unmarshal([]byte(strings.ReplaceAll(s, "'", `"`)), &tags); err != nil {
		return nil, fmt.Errorf("%w: tags %q", ErrMalformedRow, s)
	}
	return tags, nil
}

// ParseDate parses the date formats found in bank exports: 2006-01-02,
// 2006/01/02 and 2006.01.02. Reserved dates resolve to now.
func ParseDate(s string, now func() time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)

	layout := "2006.01.02"
	switch {
	case s == Reserved:
		return api.Day(now()), nil
	case strings.Contains(s, "-"):
		layout = time.DateOnly
	case strings.Contains(s, "/"):
		layout = "2006/01/02"
	}

	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

var amountCleaner = strings.NewReplacer(",", ".", " ", "", "\u00a0", "", "kr", "")

// ParseAmount parses an amount written with a decimal comma, optional
// thousands spaces and an optional "kr" suffix.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(amountCleaner.Replace(strings.TrimSpace(s)))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}
