package tagger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// ReadDefinition reads a tag definition from a JSON or YAML file, chosen by
// the file extension.
func ReadDefinition(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tag file: %w", err)
	}

	var def Definition
	if isYAML(path) {
		err = yaml.Unmarshal(data, &def)
	} else {
		err = json.Unmarshal(data, &def)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing tag file %s: %w", path, err)
	}
	return def, nil
}

// Load reads a tag file and builds a hierarchy in the given mode.
func Load(path string, mode Mode) (*Hierarchy, error) {
	def, err := ReadDefinition(path)
	if err != nil {
		return nil, err
	}
	h, err := New(def, mode)
	if err != nil {
		return nil, fmt.Errorf("building hierarchy from %s: %w", path, err)
	}
	return h, nil
}

// Save writes the hierarchy to path as JSON or YAML, chosen by the file
// extension.
func (h *Hierarchy) Save(path string) error {
	data, err := h.Encode(isYAML(path))
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing tag file: %w", err)
	}
	return nil
}

// Encode renders the hierarchy as indented JSON, or as YAML when asYAML is set.
func (h *Hierarchy) Encode(asYAML bool) ([]byte, error) {
	def := h.Definition()
	if def == nil {
		def = Definition{}
	}

	if asYAML {
		data, err := yaml.Marshal(def)
		if err != nil {
			return nil, fmt.Errorf("encoding tags as yaml: %w", err)
		}
		return data, nil
	}

	raw, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("encoding tags as json: %w", err)
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("indenting tags json: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
