package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog is the declarative connector catalog. Operators maintain it as
// a YAML file; the seed command reconciles it into the database.
type Catalog struct {
	Connectors []CatalogConnector `yaml:"connectors"`
}

// CatalogConnector describes one connector entry in the catalog.
type CatalogConnector struct {
	Name             string              `yaml:"name"`
	AdapterCode      string              `yaml:"adapter_code"`
	Type             string              `yaml:"type"`
	Capabilities     []string            `yaml:"capabilities"`
	Enabled          bool                `yaml:"enabled"`
	FrequencyDays    int                 `yaml:"frequency_days"`
	LoginURLEditable bool                `yaml:"login_url_editable"`
	CustomProps      map[string]any      `yaml:"custom_props"`
	FileActions      []CatalogFileAction `yaml:"file_actions"`
}

// CatalogFileAction is a connector-default post-processing rule.
type CatalogFileAction struct {
	DocumentType string `yaml:"document_type"`
	Action       string `yaml:"action"`
}

// LoadCatalog parses and validates the connector catalog at path.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	var cat Catalog
	if err := yaml.Unmarshal(raw, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Validate checks catalog entries for the mistakes operators actually make:
// duplicate adapter codes, missing capabilities, unknown connector types.
func (c *Catalog) Validate() error {
	seen := make(map[string]bool, len(c.Connectors))
	for i, conn := range c.Connectors {
		if conn.Name == "" {
			return fmt.Errorf("connector %d: name is required", i)
		}
		if conn.AdapterCode == "" {
			return fmt.Errorf("connector %q: adapter_code is required", conn.Name)
		}
		if seen[conn.AdapterCode] {
			return fmt.Errorf("connector %q: duplicate adapter_code %q", conn.Name, conn.AdapterCode)
		}
		seen[conn.AdapterCode] = true
		if conn.Type != "vendor" && conn.Type != "accounting" {
			return fmt.Errorf("connector %q: type must be vendor or accounting, got %q", conn.Name, conn.Type)
		}
		if len(conn.Capabilities) == 0 {
			return fmt.Errorf("connector %q: at least one capability is required", conn.Name)
		}
	}
	return nil
}
