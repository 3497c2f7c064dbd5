package core

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CategoryRule matches an item description against keywords, in priority
// order. The first rule with a matching keyword wins.
type CategoryRule struct {
	ID       int      `yaml:"id"`
	Keywords []string `yaml:"keywords"`
}

// Mappings is the immutable lookup configuration injected into a Normalizer.
// The zero value is not usable; start from DefaultMappings or LoadMappings.
type Mappings struct {
	// DefaultState is used when the city field carries no state segment.
	DefaultState string `yaml:"default_state"`

	// PlantRoutes maps the numeric tag of a "Plant NNNN" header to a route.
	PlantRoutes  map[int]int `yaml:"plant_routes"`
	DefaultRoute int         `yaml:"default_route"`

	// Frequencies maps statement frequency codes to service labels.
	Frequencies      map[string]string `yaml:"frequencies"`
	DefaultFrequency string            `yaml:"default_frequency"`

	// Categories derive a catalog category from the item description.
	Categories        []CategoryRule `yaml:"categories"`
	DefaultCategoryID int            `yaml:"default_category_id"`
}

// DefaultMappings returns the mappings for the CustomerMasterAnalysisReport
// export as shipped. Callers that need different tables load them from a
// YAML file instead of editing these.
func DefaultMappings() Mappings {
	return Mappings{
		DefaultState: "CA",
		PlantRoutes: map[int]int{
			2502: 33,
		},
		DefaultRoute: 33,
		Frequencies: map[string]string{
			"11L": "Weekly",
			"12L": "Bi-Weekly",
			"13L": "Monthly",
		},
		DefaultFrequency: "Weekly",
		Categories: []CategoryRule{
			{ID: 1, Keywords: []string{"towel", "twl"}},
			{ID: 2, Keywords: []string{"sheet", "sht"}},
			{ID: 3, Keywords: []string{"gown"}},
			{ID: 4, Keywords: []string{"scrub"}},
			{ID: 5, Keywords: []string{"pillow", "plw"}},
			{ID: 6, Keywords: []string{"blanket", "blnk"}},
			{ID: 7, Keywords: []string{"hyperbaric"}},
			{ID: 8, Keywords: []string{"bag", "bg"}},
		},
		DefaultCategoryID: 9,
	}
}

// LoadMappings reads mapping tables from a YAML file. Fields absent from the
// file fall back to DefaultMappings, so a file can override just one table.
func LoadMappings(path string) (Mappings, error) {
	m := DefaultMappings()

	data, err := os.ReadFile(path)
	if err != nil {
		return Mappings{}, fmt.Errorf("read mappings file: %w", err)
	}

	if err := yaml.Unmarshal(data, &m); err != nil {
		return Mappings{}, fmt.Errorf("parse mappings file %s: %w", path, err)
	}

	if err := m.Validate(); err != nil {
		return Mappings{}, fmt.Errorf("mappings file %s: %w", path, err)
	}

	return m, nil
}

// Validate checks that the mappings are internally consistent.
func (m Mappings) Validate() error {
	if m.DefaultRoute <= 0 {
		return fmt.Errorf("default_route must be positive, got %d", m.DefaultRoute)
	}
	if m.DefaultFrequency == "" {
		return fmt.Errorf("default_frequency must not be empty")
	}
	if m.DefaultCategoryID <= 0 {
		return fmt.Errorf("default_category_id must be positive, got %d", m.DefaultCategoryID)
	}
	for i, rule := range m.Categories {
		if rule.ID <= 0 {
			return fmt.Errorf("categories[%d]: id must be positive, got %d", i, rule.ID)
		}
		if len(rule.Keywords) == 0 {
			return fmt.Errorf("categories[%d]: at least one keyword required", i)
		}
	}
	return nil
}
