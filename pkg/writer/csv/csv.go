// Package csv implements a Writer that saves ledgers and report tables as
// CSV files.
package csv

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ArionMiles/homeplotter/pkg/api"
	"github.com/ArionMiles/homeplotter/pkg/ledger"
)

// Supported output encodings.
const (
	EncodingUTF8  = "utf-8"
	EncodingUTF16 = "utf-16"
)

// Writer writes transactions or report tables to a CSV file.
type Writer struct {
	filePath string
	file     *os.File
	encoder  io.WriteCloser
	writer   *csv.Writer
	mu       sync.Mutex
	header   bool
	logger   *slog.Logger
}

// Config holds configuration for the CSV writer.
type Config struct {
	// FilePath is the path to the CSV output file. It is truncated.
	FilePath string
	// Encoding is EncodingUTF8 (default) or EncodingUTF16. UTF-16 output
	// starts with a byte order mark.
	Encoding string
	// Comma is the field separator, ';' by default.
	Comma rune
}

// New creates a new CSV writer.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Comma == 0 {
		cfg.Comma = ';'
	}

	encoding := strings.ToLower(cfg.Encoding)
	if encoding != "" && encoding != EncodingUTF8 && encoding != EncodingUTF16 {
		return nil, fmt.Errorf("unsupported csv encoding %q", cfg.Encoding)
	}

	file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening csv file: %w", err)
	}

	w := &Writer{
		filePath: cfg.FilePath,
		file:     file,
		logger:   logger,
	}

	var out io.Writer = file
	if encoding == EncodingUTF16 {
		w.encoder = transform.NewWriter(file, unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder())
		out = w.encoder
	}
	w.writer = csv.NewWriter(out)
	w.writer.Comma = cfg.Comma

	logger.Info("csv writer initialized", "file", cfg.FilePath, "encoding", encoding)
	return w, nil
}

// Write writes transactions in the saved-ledger layout. The header row is
// written before the first batch.
func (w *Writer) Write(transactions []*api.Transaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.header {
		if err := w.writer.Write(ledger.Columns); err != nil {
			return fmt.Errorf("writing csv header: %w", err)
		}
		w.header = true
	}

	for _, t := range transactions {
		tags := t.Tags
		if tags == nil {
			tags = []string{}
		}
		encoded, err := json.Marshal(tags)
		if err != nil {
			return fmt.Errorf("encoding tags: %w", err)
		}

		record := []string{
			t.Date.Format(time.DateOnly),
			t.Amount.String(),
			t.Text,
			string(encoded),
			t.AmountUnscaled.String(),
			t.Account,
		}
		if err := w.writer.Write(record); err != nil {
			return fmt.Errorf("writing csv record: %w", err)
		}
	}

	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}

	w.logger.Debug("wrote transactions to csv", "count", len(transactions))
	return nil
}

// WriteTable writes a report table, header first.
func (w *Writer) WriteTable(table *api.Table) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Write(table.Header); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	if err := w.writer.WriteAll(table.Rows); err != nil {
		return fmt.Errorf("writing csv rows: %w", err)
	}

	w.logger.Debug("wrote table to csv", "rows", len(table.Rows))
	return nil
}

// Close flushes pending output and closes the CSV file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("flushing csv: %w", err)
	}
	if w.encoder != nil {
		if err := w.encoder.Close(); err != nil {
			_ = w.file.Close()
			return fmt.Errorf("flushing encoder: %w", err)
		}
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing csv file: %w", err)
	}

	w.logger.Info("csv writer closed", "file", w.filePath)
	return nil
}
