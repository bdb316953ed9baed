package backend

import (
	_ "embed"
	"fmt"
	"maps"

	"gopkg.in/yaml.v3"

	"github.com/seantiz/modelrouter/internal/model"
)

//go:embed characteristics.yaml
var defaultCatalogYAML []byte

// Catalog holds human-readable characteristics per backend id, including
// the virtual ensemble backend. It is immutable after construction.
type Catalog struct {
	entries map[string]model.Characteristics
}

// ParseCatalog decodes a YAML document mapping backend ids to characteristics.
func ParseCatalog(data []byte) (*Catalog, error) {
	entries := make(map[string]model.Characteristics)
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return &Catalog{entries: entries}, nil
}

// DefaultCatalog returns the catalog describing the built-in backends.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalogYAML)
	if err != nil {
		panic(err) // embedded document is part of the binary
	}
	return c
}

// Lookup returns the characteristics of id.
func (c *Catalog) Lookup(id string) (model.Characteristics, bool) {
	if c == nil {
		return model.Characteristics{}, false
	}
	ch, ok := c.entries[id]
	return ch, ok
}

// Explanation returns the canned routing explanation for id, falling back to
// a generic sentence for backends without a catalog entry.
func (c *Catalog) Explanation(id string) string {
	if ch, ok := c.Lookup(id); ok && ch.Explanation != "" {
		return ch.Explanation
	}
	return fmt.Sprintf("Using %s model", id)
}

// All returns a copy of every catalog entry.
func (c *Catalog) All() map[string]model.Characteristics {
	if c == nil {
		return map[string]model.Characteristics{}
	}
	return maps.Clone(c.entries)
}
