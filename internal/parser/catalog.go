package parser

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/batteryview/backend/internal/models"
)

// ParseCatalog parses a YAML metric catalog file: display metadata per
// metric plus the avgDoD status bands.
func ParseCatalog(filePath string) (*models.MetricCatalog, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseCatalogFromReader(file)
}

// ParseCatalogFromReader parses a catalog from an io.Reader.
func ParseCatalogFromReader(r io.Reader) (*models.MetricCatalog, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var catalog models.MetricCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, err
	}
	if err := validateCatalog(&catalog); err != nil {
		return nil, err
	}

	return &catalog, nil
}

// LoadCatalog parses the catalog at filePath, falling back to the built-in
// defaults when the path is empty.
func LoadCatalog(filePath string) (*models.MetricCatalog, error) {
	if filePath == "" {
		return models.DefaultCatalog(), nil
	}
	return ParseCatalog(filePath)
}

func validateCatalog(c *models.MetricCatalog) error {
	for i, def := range c.Metrics {
		if def.Name == "" {
			return fmt.Errorf("metric %d has no name", i)
		}
	}
	if len(c.StatusBands) > 0 {
		sort.Slice(c.StatusBands, func(i, j int) bool {
			return c.StatusBands[i].MaxAvgDoD < c.StatusBands[j].MaxAvgDoD
		})
		for i, band := range c.StatusBands {
			if band.Status == "" {
				return fmt.Errorf("status band %d has no status", i)
			}
		}
	}
	return nil
}

