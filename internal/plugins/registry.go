// Package plugins provides a plugin registry for readers and exporters.
package plugins

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/ArionMiles/homeplotter/pkg/api"
)

var (
	ErrDuplicatePlugin = errors.New("plugin already registered")
	ErrUnknownPlugin   = errors.New("plugin not found")
)

// Plugin is the part every plugin kind shares.
type Plugin interface {
	// Name is the key the plugin is selected by, e.g. "csv".
	Name() string
	Description() string
	// ConfigSchema returns a JSON schema describing the plugin's configuration.
	ConfigSchema() map[string]any
}

// ReaderPlugin builds transaction readers.
type ReaderPlugin interface {
	Plugin
	NewReader(config json.RawMessage, logger *slog.Logger) (api.Reader, error)
}

// WriterPlugin builds exporters for ledgers and tables.
type WriterPlugin interface {
	Plugin
	NewWriter(config json.RawMessage, logger *slog.Logger) (api.Exporter, error)
}

// catalog holds the plugins of one kind by name.
type catalog[P Plugin] struct {
	kind    string
	plugins map[string]P
}

func newCatalog[P Plugin](kind string) catalog[P] {
	return catalog[P]{kind: kind, plugins: make(map[string]P)}
}

func (c catalog[P]) add(p P) error {
	if _, ok := c.plugins[p.Name()]; ok {
		return fmt.Errorf("%w: %s %q", ErrDuplicatePlugin, c.kind, p.Name())
	}
	c.plugins[p.Name()] = p
	return nil
}

func (c catalog[P]) get(name string) (P, error) {
	p, ok := c.plugins[name]
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s %q, have %v", ErrUnknownPlugin, c.kind, name, slices.Sorted(maps.Keys(c.plugins)))
	}
	return p, nil
}

func (c catalog[P]) list() []P {
	out := make([]P, 0, len(c.plugins))
	for _, name := range slices.Sorted(maps.Keys(c.plugins)) {
		out = append(out, c.plugins[name])
	}
	return out
}

// Registry manages available reader and writer plugins.
type Registry struct {
	readers catalog[ReaderPlugin]
	writers catalog[WriterPlugin]
}

// NewRegistry creates an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		readers: newCatalog[ReaderPlugin]("reader"),
		writers: newCatalog[WriterPlugin]("writer"),
	}
}

// RegisterReader registers a reader plugin. Names are unique per kind.
func (r *Registry) RegisterReader(plugin ReaderPlugin) error { return r.readers.add(plugin) }

// RegisterWriter registers a writer plugin. Names are unique per kind.
func (r *Registry) RegisterWriter(plugin WriterPlugin) error { return r.writers.add(plugin) }

func (r *Registry) GetReader(name string) (ReaderPlugin, error) { return r.readers.get(name) }

func (r *Registry) GetWriter(name string) (WriterPlugin, error) { return r.writers.get(name) }

// ListReaders returns the reader plugins sorted by name.
func (r *Registry) ListReaders() []ReaderPlugin { return r.readers.list() }

// ListWriters returns the writer plugins sorted by name.
func (r *Registry) ListWriters() []WriterPlugin { return r.writers.list() }

// CreateReader builds a reader from the named plugin.
func (r *Registry) CreateReader(name string, config json.RawMessage, logger *slog.Logger) (api.Reader, error) {
	p, err := r.readers.get(name)
	if err != nil {
		return nil, err
	}
	return p.NewReader(config, logger)
}

// CreateWriter builds an exporter from the named plugin.
func (r *Registry) CreateWriter(name string, config json.RawMessage, logger *slog.Logger) (api.Exporter, error) {
	p, err := r.writers.get(name)
	if err != nil {
		return nil, err
	}
	return p.NewWriter(config, logger)
}
