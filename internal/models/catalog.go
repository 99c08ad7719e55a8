package models

// MetricCatalog defines display metadata for known metrics plus the
// avgDoD bands used for the qualitative battery status. Parsing never
// consults the catalog; it only drives presentation and reports.
type MetricCatalog struct {
	DefaultColor string       `json:"defaultColor" yaml:"default_color"`
	Metrics      []MetricDef  `json:"metrics" yaml:"metrics"`
	StatusBands  []StatusBand `json:"statusBands" yaml:"status_bands"`
}

// MetricDef describes how one metric is labeled and drawn.
type MetricDef struct {
	Name  string `json:"name" yaml:"name"`
	Label string `json:"label" yaml:"label"`
	Unit  string `json:"unit" yaml:"unit"`
	Color string `json:"color" yaml:"color"`
	Axis  string `json:"axis,omitempty" yaml:"axis,omitempty"` // "left" or "right"
}

// StatusBand maps an average-DoD ceiling to a battery status. Bands are
// evaluated in ascending MaxAvgDoD order; the first band whose ceiling
// exceeds the average DoD wins.
type StatusBand struct {
	MaxAvgDoD float64       `json:"maxAvgDoD" yaml:"max_avg_dod"`
	Status    BatteryStatus `json:"status" yaml:"status"`
	Color     string        `json:"color" yaml:"color"`
}

// Lookup returns the definition for a metric name, or nil when unknown.
func (c *MetricCatalog) Lookup(name string) *MetricDef {
	for i := range c.Metrics {
		if c.Metrics[i].Name == name {
			return &c.Metrics[i]
		}
	}
	return nil
}

// ColorFor returns the configured color for a metric, falling back to the
// catalog default.
func (c *MetricCatalog) ColorFor(name string) string {
	if def := c.Lookup(name); def != nil && def.Color != "" {
		return def.Color
	}
	return c.DefaultColor
}

// DefaultCatalog returns the built-in metric catalog matching the
// charge-controller vendor's chart assignments.
func DefaultCatalog() *MetricCatalog {
	return &MetricCatalog{
		DefaultColor: "gray",
		Metrics: []MetricDef{
			{Name: MetricVoltageBattery, Label: "Battery Voltage", Unit: "V", Color: "red", Axis: "left"},
			{Name: MetricVoltageSolar, Label: "Solar Voltage", Unit: "V", Color: "blue", Axis: "left"},
			{Name: MetricCurrentBattery, Label: "Battery Current", Unit: "A", Color: "green", Axis: "left"},
			{Name: MetricCurrentSolar, Label: "Solar Current", Unit: "A", Color: "orange", Axis: "left"},
			{Name: MetricUpTime, Label: "Uptime", Unit: "s", Color: "purple", Axis: "right"},
		},
		StatusBands: []StatusBand{
			{MaxAvgDoD: 30, Status: BatteryStatusExcellent, Color: "green"},
			{MaxAvgDoD: 50, Status: BatteryStatusGood, Color: "lightgreen"},
			{MaxAvgDoD: 70, Status: BatteryStatusFair, Color: "yellow"},
			{MaxAvgDoD: 85, Status: BatteryStatusPoor, Color: "orange"},
		},
	}
}
