// Package models contains domain types for the solar/battery log analyzer.
package models

import (
	"sort"
	"time"
)

// Known metric names emitted by the charge-controller export. The parser
// accepts arbitrary names; these are only used for display defaults.
const (
	MetricVoltageBattery = "Voltage-Battery"
	MetricVoltageSolar   = "Voltage-Solar"
	MetricCurrentBattery = "Current-Battery"
	MetricCurrentSolar   = "Current-Solar"
	MetricUpTime         = "UpTime"
)

// Sample is a single measurement: a UTC instant and a value.
type Sample struct {
	Timestamp time.Time `json:"timestamp" msgpack:"t"`
	Value     float64   `json:"value" msgpack:"v"`
}

// Series is an ordered sequence of samples for one metric. Input order is
// not trusted; callers that need temporal order use Sorted or SortInPlace.
type Series struct {
	Metric  string   `json:"metric"`
	Samples []Sample `json:"samples"`
}

// NewSeries creates an empty series for a metric.
func NewSeries(metric string) *Series {
	return &Series{Metric: metric, Samples: make([]Sample, 0)}
}

// Len returns the number of samples.
func (s *Series) Len() int {
	return len(s.Samples)
}

// Append adds a sample to the series.
func (s *Series) Append(ts time.Time, value float64) {
	s.Samples = append(s.Samples, Sample{Timestamp: ts, Value: value})
}

// SortInPlace orders samples by ascending timestamp.
func (s *Series) SortInPlace() {
	sort.Slice(s.Samples, func(i, j int) bool {
		return s.Samples[i].Timestamp.Before(s.Samples[j].Timestamp)
	})
}

// Sorted returns a copy of the series with samples in ascending
// timestamp order, leaving the receiver untouched.
func (s *Series) Sorted() *Series {
	out := &Series{Metric: s.Metric, Samples: make([]Sample, len(s.Samples))}
	copy(out.Samples, s.Samples)
	out.SortInPlace()
	return out
}

// TimeRange returns the min and max timestamps of the series without
// assuming sample order. ok is false for an empty series.
func (s *Series) TimeRange() (start, end time.Time, ok bool) {
	if len(s.Samples) == 0 {
		return time.Time{}, time.Time{}, false
	}
	start, end = s.Samples[0].Timestamp, s.Samples[0].Timestamp
	for _, sm := range s.Samples[1:] {
		if sm.Timestamp.Before(start) {
			start = sm.Timestamp
		}
		if sm.Timestamp.After(end) {
			end = sm.Timestamp
		}
	}
	return start, end, true
}

// Window returns the samples with from <= timestamp <= to, preserving order.
func (s *Series) Window(from, to time.Time) []Sample {
	out := make([]Sample, 0)
	for _, sm := range s.Samples {
		if sm.Timestamp.Before(from) || sm.Timestamp.After(to) {
			continue
		}
		out = append(out, sm)
	}
	return out
}
