// Package config provides read-only, dotted-path configuration lookup over
// a jsonvalue.Value tree loaded from the CLI's JSON config file.
package config

import (
	"fmt"
	"os"

	"github.com/convoyrt/convoy/internal/jsonvalue"
)

// Config is a read-only view over a parsed JSON config document.
type Config struct {
	root jsonvalue.Value
}

// Load reads and parses the JSON file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return FromBytes(data), nil
}

// FromBytes builds a Config directly from raw JSON, for tests and
// programmatic construction.
func FromBytes(data []byte) *Config {
	return &Config{root: jsonvalue.ParseBytes(data)}
}

// Section returns the sub-tree at path as a Config, for passing a scoped
// view down to a component (e.g. the "telegram" or "claude" subsection).
func (c *Config) Section(path string) *Config {
	return &Config{root: c.root.Get(path)}
}

// Root returns the whole parsed document as a jsonvalue.Value, for
// components (like the plugin registry's InitAll) that want the full tree
// rather than one dotted path.
func (c *Config) Root() jsonvalue.Value {
	return c.root
}

// Value returns the raw jsonvalue.Value at path.
func (c *Config) Value(path string) jsonvalue.Value {
	return c.root.Get(path)
}

// String returns the string at path, or def if absent.
func (c *Config) String(path, def string) string {
	return c.root.Get(path).AsString(def)
}

// Int returns the integer at path, or def if absent.
func (c *Config) Int(path string, def int64) int64 {
	return c.root.Get(path).AsInt(def)
}

// Bool returns the boolean at path, or def if absent.
func (c *Config) Bool(path string, def bool) bool {
	return c.root.Get(path).AsBool(def)
}

// Float returns the float at path, or def if absent.
func (c *Config) Float(path string, def float64) float64 {
	return c.root.Get(path).AsFloat(def)
}

// Has reports whether path is present.
func (c *Config) Has(path string) bool {
	return c.root.Has(path)
}

// PluginEntry describes one entry of the "plugins" config key, which may be
// given either as a bare name (ordered list form) or as an object keyed by
// name with an optional {enabled} field.
type PluginEntry struct {
	Name    string
	Enabled bool
}

// Plugins parses the "plugins" key into an ordered list of entries,
// accepting either the array-of-names form or the object-with-enabled-flags
// form described in spec.md §6.
func (c *Config) Plugins() []PluginEntry {
	v := c.root.Get("plugins")
	if v.IsArray() {
		items := v.Array()
		out := make([]PluginEntry, 0, len(items))
		for _, item := range items {
			out = append(out, PluginEntry{Name: item.AsString(""), Enabled: true})
		}
		return out
	}
	if v.IsObject() {
		keys := v.Keys()
		out := make([]PluginEntry, 0, len(keys))
		for _, name := range keys {
			entry := v.Get(name)
			enabled := true
			if entry.Has("enabled") {
				enabled = entry.Get("enabled").AsBool(true)
			}
			out = append(out, PluginEntry{Name: name, Enabled: enabled})
		}
		return out
	}
	return nil
}
