package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Entry describes one candidate model and its request quotas.
// A zero RPM or RPD means that dimension is unmetered.
type Entry struct {
	Name string `yaml:"name"`
	RPM  int    `yaml:"rpm"`
	RPD  int    `yaml:"rpd"`
}

// Unmetered reports whether the entry has no quota in either dimension.
func (e Entry) Unmetered() bool {
	return e.RPM == 0 && e.RPD == 0
}

// Catalog is the explicit model catalog handed to the tracker, sequencer and
// orchestrator. Constructed once at startup; no package-level state.
type Catalog struct {
	Models        []Entry  `yaml:"models"`
	DefaultModel  string   `yaml:"default_model"`
	FallbackOrder []string `yaml:"fallback_order"`
}

// Default returns the compiled-in catalog used when no catalog file is
// configured. Quotas mirror the provider's published free-tier limits.
func Default() *Catalog {
	return &Catalog{
		Models: []Entry{
			{Name: "gemini-2.5-flash", RPM: 10, RPD: 250},
			{Name: "gemini-2.5-flash-lite", RPM: 15, RPD: 1000},
			{Name: "gemini-2.5-pro", RPM: 5, RPD: 100},
		},
		DefaultModel:  "gemini-2.5-flash",
		FallbackOrder: []string{"gemini-2.5-flash", "gemini-2.5-flash-lite", "gemini-2.5-pro"},
	}
}

// Load parses a YAML catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks internal consistency.
func (c *Catalog) Validate() error {
	if len(c.Models) == 0 {
		return fmt.Errorf("catalog has no models")
	}
	seen := make(map[string]struct{}, len(c.Models))
	for _, m := range c.Models {
		if m.Name == "" {
			return fmt.Errorf("catalog entry with empty name")
		}
		if _, dup := seen[m.Name]; dup {
			return fmt.Errorf("duplicate catalog entry: %s", m.Name)
		}
		if m.RPM < 0 || m.RPD < 0 {
			return fmt.Errorf("model %s: negative quota", m.Name)
		}
		seen[m.Name] = struct{}{}
	}
	if c.DefaultModel == "" {
		c.DefaultModel = c.Models[0].Name
	}
	if _, ok := seen[c.DefaultModel]; !ok {
		return fmt.Errorf("default model %s not in catalog", c.DefaultModel)
	}
	return nil
}

// Limit returns the quota entry for a model. Unknown models get a zero entry,
// which the tracker treats as unmetered.
func (c *Catalog) Limit(name string) Entry {
	for _, m := range c.Models {
		if m.Name == name {
			return m
		}
	}
	return Entry{Name: name}
}

// Names returns all catalog model names in declaration order.
func (c *Catalog) Names() []string {
	out := make([]string, 0, len(c.Models))
	for _, m := range c.Models {
		out = append(out, m.Name)
	}
	return out
}

// ResolveOrder returns the deduplicated fallback order with the default model
// always first, even if absent from the configured fallback list.
func (c *Catalog) ResolveOrder() []string {
	order := make([]string, 0, len(c.FallbackOrder)+1)
	seen := make(map[string]struct{}, len(c.FallbackOrder)+1)
	if c.DefaultModel != "" {
		order = append(order, c.DefaultModel)
		seen[c.DefaultModel] = struct{}{}
	}
	for _, name := range c.FallbackOrder {
		if _, dup := seen[name]; dup {
			continue
		}
		order = append(order, name)
		seen[name] = struct{}{}
	}
	return order
}
