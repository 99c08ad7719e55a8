package battery

import "github.com/batteryview/backend/internal/models"

// StatusFor resolves the qualitative battery status for an average DoD.
// Bands are checked in ascending ceiling order; the first band whose
// ceiling exceeds the average wins, and anything beyond the last band is
// Critical. A nil or band-less catalog falls back to the built-in one.
func StatusFor(avgDoD float64, catalog *models.MetricCatalog) (models.BatteryStatus, string) {
	if catalog == nil || len(catalog.StatusBands) == 0 {
		catalog = models.DefaultCatalog()
	}
	for _, band := range catalog.StatusBands {
		if avgDoD < band.MaxAvgDoD {
			return band.Status, band.Color
		}
	}
	return models.BatteryStatusCritical, "red"
}
