// Package csv provides a plugin wrapper for the bank export CSV reader.
package csv

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ArionMiles/homeplotter/pkg/api"
	csvreader "github.com/ArionMiles/homeplotter/pkg/reader/csv"
)

// Plugin implements the ReaderPlugin interface for CSV files.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "csv"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Read transactions from a bank export or a saved ledger CSV file"
}

// ConfigSchema returns a JSON schema describing the plugin's configuration.
func (p *Plugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"filePath": map[string]any{
				"type":        "string",
				"description": "Path to the CSV file",
			},
			"account": map[string]any{
				"type":        "string",
				"description": "Account name of the records (default: file name)",
			},
			"layouts": map[string]any{
				"type":        "array",
				"description": "Extra header layouts mapping date, amount and text columns",
			},
		},
		"required": []string{"filePath"},
	}
}

// Layout maps header names to the date, amount and text columns.
type Layout struct {
	Date   string `json:"date"`
	Amount string `json:"amount"`
	Text   string `json:"text"`
}

// Config represents the CSV reader configuration.
type Config struct {
	FilePath string   `json:"filePath"`
	Account  string   `json:"account,omitempty"`
	Layouts  []Layout `json:"layouts,omitempty"`
}

// NewReader creates a new CSV reader instance.
func (p *Plugin) NewReader(configData json.RawMessage, logger *slog.Logger) (api.Reader, error) {
	var cfg Config
	if err := json.Unmarshal(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling csv config: %w", err)
	}

	if cfg.FilePath == "" {
		return nil, fmt.Errorf("filePath is required")
	}

	readerCfg := csvreader.Config{
		FilePath: cfg.FilePath,
		Account:  cfg.Account,
	}
	for _, l := range cfg.Layouts {
		readerCfg.Layouts = append(readerCfg.Layouts, csvreader.Layout(l))
	}

	return csvreader.New(readerCfg, logger), nil
}
