// Package config loads the homeplotter configuration from a JSON or YAML
// file, a .env file and HOMEPLOTTER_ environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	kJson "github.com/knadh/koanf/parsers/json"
	kYaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"

	"github.com/ArionMiles/homeplotter/pkg/tagger"
)

// EnvPrefix prefixes every environment variable read by Load.
// HOMEPLOTTER_DB_PATH sets db_path, HOMEPLOTTER_OUTPUT_DIR sets output_dir.
const EnvPrefix = "HOMEPLOTTER_"

// DefaultFile is the config file used when none is given.
const DefaultFile = "homeplotter.yaml"

// Account describes one bank export and the scale applied to it.
type Account struct {
	Name string `koanf:"name"`
	File string `koanf:"file"`
	// Scale is a decimal multiplier, "1" when empty.
	Scale string `koanf:"scale"`
}

// Layout maps the header names of a bank export to ledger columns.
type Layout struct {
	Date   string `koanf:"date"`
	Amount string `koanf:"amount"`
	Text   string `koanf:"text"`
}

// Config holds the application configuration.
type Config struct {
	// TagFile is the JSON or YAML tag hierarchy definition.
	TagFile string `koanf:"tag_file"`
	// TagMode is "tag" or "categorize".
	TagMode  string    `koanf:"tag_mode"`
	Accounts []Account `koanf:"accounts"`
	Layouts  []Layout  `koanf:"layouts"`

	// DBPath enables SQLite persistence when set.
	DBPath    string `koanf:"db_path"`
	OutputDir string `koanf:"output_dir"`
	// OutputEncoding is "utf-8" or "utf-16".
	OutputEncoding string `koanf:"output_encoding"`
	LogLevel       string `koanf:"log_level"`
}

// Default returns the configuration used for keys missing from every source.
func Default() Config {
	return Config{
		TagFile:        "tags.json",
		TagMode:        tagger.ModeTag.String(),
		OutputDir:      "output",
		OutputEncoding: "utf-8",
		LogLevel:       "INFO",
	}
}

// Load reads the config file at path, then overlays HOMEPLOTTER_ environment
// variables. A missing file is not an error when path is DefaultFile or
// empty. A .env file in the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if path == "" {
		path = DefaultFile
	}

	if err := k.Load(file.Provider(path), parser(path)); err != nil {
		if !errors.Is(err, os.ErrNotExist) || path != DefaultFile {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parser(path string) koanf.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return kYaml.Parser()
	default:
		return kJson.Parser()
	}
}

// envKey maps HOMEPLOTTER_TAG_FILE to tag_file.
func envKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	var errs []string

	if c.TagFile == "" {
		errs = append(errs, "tag_file cannot be empty")
	}
	if _, err := tagger.ParseMode(c.TagMode); err != nil {
		errs = append(errs, fmt.Sprintf("invalid tag_mode %q: must be 'tag' or 'categorize'", c.TagMode))
	}

	seen := make(map[string]bool, len(c.Accounts))
	for i, a := range c.Accounts {
		if a.Name == "" {
			errs = append(errs, fmt.Sprintf("accounts[%d]: name cannot be empty", i))
		} else if seen[a.Name] {
			errs = append(errs, fmt.Sprintf("accounts[%d]: duplicate account name %q", i, a.Name))
		}
		seen[a.Name] = true

		if a.File == "" {
			errs = append(errs, fmt.Sprintf("accounts[%d]: file cannot be empty", i))
		}
		if a.Scale != "" {
			s, err := decimal.NewFromString(a.Scale)
			if err != nil {
				errs = append(errs, fmt.Sprintf("accounts[%d]: invalid scale %q: must be a number", i, a.Scale))
			} else if s.IsZero() {
				errs = append(errs, fmt.Sprintf("accounts[%d]: scale cannot be zero", i))
			}
		}
	}

	for i, l := range c.Layouts {
		if l.Date == "" || l.Amount == "" || l.Text == "" {
			errs = append(errs, fmt.Sprintf("layouts[%d]: date, amount and text columns are required", i))
		}
	}

	validEncodings := []string{"utf-8", "utf-16"}
	if !slices.Contains(validEncodings, strings.ToLower(c.OutputEncoding)) {
		errs = append(errs, fmt.Sprintf("invalid output_encoding %q: must be one of %v", c.OutputEncoding, validEncodings))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// Mode returns the parsed tag mode.
func (c *Config) Mode() tagger.Mode {
	m, _ := tagger.ParseMode(c.TagMode)
	return m
}

// ScaleValue returns the scale of the account, one when unset or invalid.
func (a Account) ScaleValue() decimal.Decimal {
	if a.Scale == "" {
		return decimal.NewFromInt(1)
	}
	s, err := decimal.NewFromString(a.Scale)
	if err != nil {
		return decimal.NewFromInt(1)
	}
	return s
}

// Account returns the account with the given name.
func (c *Config) Account(name string) (Account, bool) {
	for _, a := range c.Accounts {
		if a.Name == name {
			return a, true
		}
	}
	return Account{}, false
}
