package parser

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/batteryview/backend/internal/models"
)

const testCatalogYAML = `
default_color: silver
metrics:
  - name: Voltage-Battery
    label: Battery Voltage
    unit: V
    color: crimson
    axis: left
  - name: UpTime
    label: Uptime
    unit: s
    color: violet
    axis: right
status_bands:
  - max_avg_dod: 40
    status: Excellent
    color: green
  - max_avg_dod: 80
    status: Fair
    color: yellow
`

func TestParseCatalogFromReader(t *testing.T) {
	t.Run("parses catalog", func(t *testing.T) {
		catalog, err := ParseCatalogFromReader(strings.NewReader(testCatalogYAML))
		if err != nil {
			t.Fatalf("Failed to parse catalog: %v", err)
		}

		if catalog.DefaultColor != "silver" {
			t.Errorf("Expected default color silver, got %s", catalog.DefaultColor)
		}
		if len(catalog.Metrics) != 2 {
			t.Fatalf("Expected 2 metrics, got %d", len(catalog.Metrics))
		}

		def := catalog.Lookup("Voltage-Battery")
		if def == nil {
			t.Fatal("Expected Voltage-Battery definition")
		}
		if def.Unit != "V" || def.Color != "crimson" || def.Axis != "left" {
			t.Errorf("Unexpected definition: %+v", def)
		}

		if len(catalog.StatusBands) != 2 {
			t.Fatalf("Expected 2 status bands, got %d", len(catalog.StatusBands))
		}
		if catalog.StatusBands[0].MaxAvgDoD != 40 {
			t.Errorf("Expected first band ceiling 40, got %v", catalog.StatusBands[0].MaxAvgDoD)
		}
	})

	t.Run("sorts bands by ceiling", func(t *testing.T) {
		yaml := `
status_bands:
  - max_avg_dod: 80
    status: Fair
  - max_avg_dod: 40
    status: Excellent
`
		catalog, err := ParseCatalogFromReader(strings.NewReader(yaml))
		if err != nil {
			t.Fatalf("Failed to parse catalog: %v", err)
		}
		if catalog.StatusBands[0].MaxAvgDoD != 40 || catalog.StatusBands[1].MaxAvgDoD != 80 {
			t.Errorf("Expected bands sorted ascending, got %+v", catalog.StatusBands)
		}
	})

	t.Run("rejects unnamed metric", func(t *testing.T) {
		yaml := `
metrics:
  - label: Mystery
    color: red
`
		if _, err := ParseCatalogFromReader(strings.NewReader(yaml)); err == nil {
			t.Error("Expected error for metric without name")
		}
	})

	t.Run("rejects band without status", func(t *testing.T) {
		yaml := `
status_bands:
  - max_avg_dod: 40
    color: green
`
		if _, err := ParseCatalogFromReader(strings.NewReader(yaml)); err == nil {
			t.Error("Expected error for band without status")
		}
	})

	t.Run("rejects invalid YAML", func(t *testing.T) {
		if _, err := ParseCatalogFromReader(strings.NewReader("metrics: [")); err == nil {
			t.Error("Expected error for invalid YAML")
		}
	})
}

func TestParseCatalog_File(t *testing.T) {
	t.Run("parses catalog file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "catalog.yaml")
		if err := os.WriteFile(path, []byte(testCatalogYAML), 0644); err != nil {
			t.Fatalf("Failed to write catalog file: %v", err)
		}

		catalog, err := ParseCatalog(path)
		if err != nil {
			t.Fatalf("Failed to parse catalog: %v", err)
		}
		if len(catalog.Metrics) != 2 {
			t.Errorf("Expected 2 metrics, got %d", len(catalog.Metrics))
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		if _, err := ParseCatalog(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
			t.Error("Expected error for missing file")
		}
	})
}

func TestLoadCatalog(t *testing.T) {
	t.Run("empty path yields built-in catalog", func(t *testing.T) {
		catalog, err := LoadCatalog("")
		if err != nil {
			t.Fatalf("LoadCatalog failed: %v", err)
		}
		if catalog.Lookup(models.MetricVoltageBattery) == nil {
			t.Error("Expected built-in catalog to define Voltage-Battery")
		}
		if len(catalog.StatusBands) == 0 {
			t.Error("Expected built-in catalog to carry status bands")
		}
	})

	t.Run("explicit path wins", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "catalog.yaml")
		if err := os.WriteFile(path, []byte(testCatalogYAML), 0644); err != nil {
			t.Fatalf("Failed to write catalog file: %v", err)
		}

		catalog, err := LoadCatalog(path)
		if err != nil {
			t.Fatalf("LoadCatalog failed: %v", err)
		}
		if catalog.DefaultColor != "silver" {
			t.Errorf("Expected configured default color, got %s", catalog.DefaultColor)
		}
	})
}
