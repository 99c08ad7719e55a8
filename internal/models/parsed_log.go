package models

import (
	"sort"
	"time"
)

// ParsedDocument is the result of parsing one log export: every non-empty
// metric series keyed by name. Metrics whose entries were all skipped do
// not appear at all.
type ParsedDocument struct {
	Series      map[string]*Series `json:"series"`
	TimeRange   *TimeRange         `json:"timeRange,omitempty"`
	SampleCount int                `json:"sampleCount"`
}

// TimeRange represents a time window.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewParsedDocument creates an empty ParsedDocument.
func NewParsedDocument() *ParsedDocument {
	return &ParsedDocument{Series: make(map[string]*Series)}
}

// Metric returns the series for a metric name, or nil when absent.
func (d *ParsedDocument) Metric(name string) *Series {
	return d.Series[name]
}

// MetricNames returns the parsed metric names in sorted order.
func (d *ParsedDocument) MetricNames() []string {
	names := make([]string, 0, len(d.Series))
	for name := range d.Series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Observe extends the document time range to cover ts.
func (d *ParsedDocument) Observe(ts time.Time) {
	if d.TimeRange == nil {
		d.TimeRange = &TimeRange{Start: ts, End: ts}
		return
	}
	if ts.Before(d.TimeRange.Start) {
		d.TimeRange.Start = ts
	}
	if ts.After(d.TimeRange.End) {
		d.TimeRange.End = ts
	}
}
