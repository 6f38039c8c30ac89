// Package json implements a Writer that writes transactions and report
// tables to a JSON file.
package json

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/ArionMiles/homeplotter/pkg/api"
)

// Writer writes transactions to a JSON file. Every write rewrites the
// whole file.
type Writer struct {
	filePath     string
	transactions []*api.Transaction
	mu           sync.Mutex
	logger       *slog.Logger
}

// Config holds configuration for the JSON writer.
type Config struct {
	// FilePath is the path to the JSON output file.
	FilePath string
	// Append keeps the transactions already in the file.
	Append bool
}

// New creates a new JSON writer.
func New(cfg Config, logger *slog.Logger) (*Writer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	w := &Writer{
		filePath:     cfg.FilePath,
		transactions: make([]*api.Transaction, 0),
		logger:       logger,
	}

	if cfg.Append {
		if err := w.loadExisting(); err != nil {
			return nil, fmt.Errorf("loading existing transactions: %w", err)
		}
	}

	logger.Info("json writer initialized", "file", cfg.FilePath, "existing_count", len(w.transactions))
	return w, nil
}

// loadExisting loads existing transactions from the JSON file if it exists.
func (w *Writer) loadExisting() error {
	data, err := os.ReadFile(w.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, &w.transactions)
}

// Write appends transactions and rewrites the JSON file.
func (w *Writer) Write(transactions []*api.Transaction) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.transactions = append(w.transactions, transactions...)

	if err := w.save(w.transactions); err != nil {
		return err
	}

	w.logger.Debug("wrote transactions to json",
		"batch_count", len(transactions),
		"total_count", len(w.transactions),
	)
	return nil
}

// WriteTable replaces the file content with the table.
func (w *Writer) WriteTable(table *api.Table) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.save(table); err != nil {
		return err
	}

	w.logger.Debug("wrote table to json", "rows", len(table.Rows))
	return nil
}

func (w *Writer) save(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling json: %w", err)
	}

	if err := os.WriteFile(w.filePath, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("writing json file: %w", err)
	}
	return nil
}

// TransactionCount returns the total number of transactions written.
func (w *Writer) TransactionCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.transactions)
}

// Close is a no-op; every write is already on disk.
func (w *Writer) Close() error {
	return nil
}
