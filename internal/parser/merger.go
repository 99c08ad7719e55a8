package parser

import (
	"time"

	"github.com/batteryview/backend/internal/models"
)

// MergeConfig configures the merge behavior.
type MergeConfig struct {
	// DedupeWindow is the maximum time difference between two samples
	// with the same metric and value to be considered duplicates.
	// Default: 1000ms (1 second).
	DedupeWindow time.Duration
}

// DefaultMergeConfig returns the default merge configuration.
func DefaultMergeConfig() MergeConfig {
	return MergeConfig{
		DedupeWindow: 1000 * time.Millisecond,
	}
}

// MergeDocuments merges several parsed exports of the same device into one
// document, for devices that split a long recording across multiple files.
// Per metric it concatenates the samples, sorts them by timestamp, and
// drops duplicates carrying the same value within the dedupe window.
func MergeDocuments(docs []*models.ParsedDocument, config MergeConfig) *models.ParsedDocument {
	if len(docs) == 0 {
		return models.NewParsedDocument()
	}
	if len(docs) == 1 {
		return docs[0]
	}

	merged := models.NewParsedDocument()

	for _, doc := range docs {
		for name, series := range doc.Series {
			target := merged.Series[name]
			if target == nil {
				target = models.NewSeries(name)
				merged.Series[name] = target
			}
			target.Samples = append(target.Samples, series.Samples...)
		}
	}

	for name, series := range merged.Series {
		series.SortInPlace()
		series.Samples = deduplicateSamples(series.Samples, config.DedupeWindow)
		if len(series.Samples) == 0 {
			delete(merged.Series, name)
			continue
		}
		merged.SampleCount += len(series.Samples)
		merged.Observe(series.Samples[0].Timestamp)
		merged.Observe(series.Samples[len(series.Samples)-1].Timestamp)
	}

	return merged
}

// deduplicateSamples removes consecutive samples carrying the same value
// within the dedupe window. Samples are assumed sorted by timestamp.
func deduplicateSamples(samples []models.Sample, window time.Duration) []models.Sample {
	if len(samples) <= 1 || window <= 0 {
		return samples
	}

	result := make([]models.Sample, 0, len(samples))
	result = append(result, samples[0])

	for i := 1; i < len(samples); i++ {
		current := samples[i]
		prev := result[len(result)-1]

		if current.Timestamp.Sub(prev.Timestamp) < window && current.Value == prev.Value {
			continue
		}
		result = append(result, current)
	}

	return result
}
