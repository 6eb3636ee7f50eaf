package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveOrder(t *testing.T) {
	tests := []struct {
		name     string
		catalog  Catalog
		expected []string
	}{
		{
			name: "default first even if absent from fallback list",
			catalog: Catalog{
				DefaultModel:  "x",
				FallbackOrder: []string{"a", "b"},
			},
			expected: []string{"x", "a", "b"},
		},
		{
			name: "default deduplicated when listed mid-order",
			catalog: Catalog{
				DefaultModel:  "b",
				FallbackOrder: []string{"a", "b", "c"},
			},
			expected: []string{"b", "a", "c"},
		},
		{
			name: "duplicates in fallback list collapse",
			catalog: Catalog{
				DefaultModel:  "a",
				FallbackOrder: []string{"a", "b", "b", "a"},
			},
			expected: []string{"a", "b"},
		},
		{
			name:     "no fallback list yields just the default",
			catalog:  Catalog{DefaultModel: "a"},
			expected: []string{"a"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.catalog.ResolveOrder()
			if len(got) != len(tt.expected) {
				t.Fatalf("ResolveOrder() = %v, want %v", got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("ResolveOrder()[%d] = %q, want %q", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestLimit(t *testing.T) {
	c := Catalog{Models: []Entry{{Name: "a", RPM: 5, RPD: 100}}}

	got := c.Limit("a")
	if got.RPM != 5 || got.RPD != 100 {
		t.Errorf("Limit(a) = %+v", got)
	}

	unknown := c.Limit("nope")
	if !unknown.Unmetered() {
		t.Errorf("unknown model should be unmetered, got %+v", unknown)
	}
}

func TestValidate(t *testing.T) {
	c := Catalog{Models: []Entry{{Name: "a"}, {Name: "a"}}}
	if err := c.Validate(); err == nil {
		t.Error("duplicate entries should error")
	}

	c = Catalog{Models: []Entry{{Name: "a"}}, DefaultModel: "missing"}
	if err := c.Validate(); err == nil {
		t.Error("unknown default model should error")
	}

	c = Catalog{Models: []Entry{{Name: "a", RPM: 1}}}
	if err := c.Validate(); err != nil {
		t.Errorf("valid catalog should not error: %v", err)
	}
	if c.DefaultModel != "a" {
		t.Errorf("empty default should fall back to first model, got %q", c.DefaultModel)
	}
}

func TestLoad(t *testing.T) {
	content := `
default_model: gemini-2.5-flash
fallback_order:
  - gemini-2.5-flash
  - gemini-2.5-pro
models:
  - name: gemini-2.5-flash
    rpm: 10
    rpd: 250
  - name: gemini-2.5-pro
    rpm: 5
    rpd: 100
`
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.DefaultModel != "gemini-2.5-flash" {
		t.Errorf("default model = %q", c.DefaultModel)
	}
	if got := c.Limit("gemini-2.5-pro"); got.RPM != 5 || got.RPD != 100 {
		t.Errorf("pro limits = %+v", got)
	}
	if len(c.ResolveOrder()) != 2 {
		t.Errorf("resolve order = %v", c.ResolveOrder())
	}
}

func TestDefaultCatalogIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("default catalog invalid: %v", err)
	}
}
