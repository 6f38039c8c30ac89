// Package csv provides a plugin wrapper for the CSV writer.
package csv

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ArionMiles/homeplotter/pkg/api"
	csvwriter "github.com/ArionMiles/homeplotter/pkg/writer/csv"
)

// Plugin implements the WriterPlugin interface for CSV files.
type Plugin struct{}

// Name returns the plugin name.
func (p *Plugin) Name() string {
	return "csv"
}

// Description returns a human-readable description.
func (p *Plugin) Description() string {
	return "Write ledgers and reports to a CSV file"
}

// ConfigSchema returns a JSON schema describing the plugin's configuration.
func (p *Plugin) ConfigSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"filePath": map[string]any{
				"type":        "string",
				"description": "Path to the CSV output file",
			},
			"encoding": map[string]any{
				"type":        "string",
				"description": "Output encoding, utf-8 or utf-16 (default: utf-8)",
				"default":     csvwriter.EncodingUTF8,
			},
			"separator": map[string]any{
				"type":        "string",
				"description": "Field separator (default: ;)",
				"default":     ";",
			},
		},
		"required": []string{"filePath"},
	}
}

// Config represents the CSV writer configuration.
type Config struct {
	FilePath  string `json:"filePath"`
	Encoding  string `json:"encoding,omitempty"`
	Separator string `json:"separator,omitempty"`
}

// NewWriter creates a new CSV writer instance.
func (p *Plugin) NewWriter(configData json.RawMessage, logger *slog.Logger) (api.Exporter, error) {
	var cfg Config
	if err := json.Unmarshal(configData, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling csv config: %w", err)
	}

	if cfg.FilePath == "" {
		return nil, fmt.Errorf("filePath is required")
	}

	writerCfg := csvwriter.Config{
		FilePath: cfg.FilePath,
		Encoding: cfg.Encoding,
	}
	if cfg.Separator != "" {
		sep := []rune(cfg.Separator)
		if len(sep) != 1 {
			return nil, fmt.Errorf("separator must be a single character, got %q", cfg.Separator)
		}
		writerCfg.Comma = sep[0]
	}

	return csvwriter.New(writerCfg, logger)
}
