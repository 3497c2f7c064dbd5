package core

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultMappingsValid(t *testing.T) {
	if err := DefaultMappings().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadMappings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.yaml")
	data := `
default_state: OR
plant_routes:
  2502: 33
  2600: 41
default_route: 41
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := LoadMappings(path)
	if err != nil {
		t.Fatalf("LoadMappings: %v", err)
	}

	if m.DefaultState != "OR" {
		t.Errorf("default state = %q, want OR", m.DefaultState)
	}
	if m.PlantRoutes[2600] != 41 {
		t.Errorf("plant routes = %v, want 2600 mapped", m.PlantRoutes)
	}
	if m.DefaultRoute != 41 {
		t.Errorf("default route = %d, want 41", m.DefaultRoute)
	}

	// Fields the file does not mention keep their defaults.
	if m.DefaultFrequency != "Weekly" {
		t.Errorf("default frequency = %q, want Weekly", m.DefaultFrequency)
	}
	if m.Frequencies["12L"] != "Bi-Weekly" {
		t.Errorf("frequencies = %v, want defaults kept", m.Frequencies)
	}
	if m.DefaultCategoryID != 9 {
		t.Errorf("default category = %d, want 9", m.DefaultCategoryID)
	}
}

func TestLoadMappingsMissingFile(t *testing.T) {
	if _, err := LoadMappings(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("LoadMappings on a missing file should fail")
	}
}

func TestLoadMappingsInvalidContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mappings.yaml")
	if err := os.WriteFile(path, []byte("default_route: -5\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadMappings(path); err == nil {
		t.Fatal("LoadMappings should reject a non-positive default route")
	}
}

func TestMappingsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Mappings)
		wantOK bool
	}{
		{"defaults", func(m *Mappings) {}, true},
		{"zero default route", func(m *Mappings) { m.DefaultRoute = 0 }, false},
		{"empty default frequency", func(m *Mappings) { m.DefaultFrequency = "" }, false},
		{"zero default category", func(m *Mappings) { m.DefaultCategoryID = 0 }, false},
		{"rule without keywords", func(m *Mappings) {
			m.Categories = append(m.Categories, CategoryRule{ID: 10})
		}, false},
		{"rule with zero id", func(m *Mappings) {
			m.Categories = append(m.Categories, CategoryRule{Keywords: []string{"x"}})
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := DefaultMappings()
			tt.mutate(&m)
			err := m.Validate()
			if (err == nil) != tt.wantOK {
				t.Errorf("Validate() = %v, wantOK %v", err, tt.wantOK)
			}
		})
	}
}
