package battery

import (
	"math"
	"sort"

	"github.com/batteryview/backend/internal/models"
)

// CompareOptions configures a full-vs-sample comparison. Zero values fall
// back to the vendor reference voltage and the quadratic curve; nil
// MetricKeys means the union of both documents' parsed metrics.
type CompareOptions struct {
	ReferenceVoltage float64
	Strategy         Strategy
	MetricKeys       []string
}

// CompressionPercent is the percentage of samples removed by the
// downsampled export relative to the full one. An empty full dataset
// counts as fully compressed.
func CompressionPercent(fullCount, sampleCount int) float64 {
	if fullCount <= 0 {
		return 100
	}
	return 100 - round2(float64(sampleCount)/float64(fullCount)*100)
}

// Compare quantifies the data reduction between a full export and a
// sampled export of the same device: per-metric sample-count compression,
// plus the error the reduction introduces into the remaining-cycles
// estimate. Both documents run through the identical DoD and cycle chain
// with the same reference voltage and strategy.
func Compare(fullDoc, sampleDoc *models.ParsedDocument, opts CompareOptions) *models.ComparisonResult {
	if opts.ReferenceVoltage == 0 {
		opts.ReferenceVoltage = DefaultFullChargeVoltage
	}
	if opts.Strategy == "" {
		opts.Strategy = DefaultStrategy
	}

	keys := opts.MetricKeys
	if len(keys) == 0 {
		keys = unionMetricNames(fullDoc, sampleDoc)
	}

	perMetric := make(map[string]float64, len(keys))
	for _, key := range keys {
		perMetric[key] = CompressionPercent(seriesLen(fullDoc, key), seriesLen(sampleDoc, key))
	}

	fullRemaining := remainingCycles(fullDoc, opts)
	sampleRemaining := remainingCycles(sampleDoc, opts)

	return &models.ComparisonResult{
		ReferenceVoltage: opts.ReferenceVoltage,
		Strategy:         string(opts.Strategy),
		PerMetric:        perMetric,
		Remaining: models.RemainingComparison{
			Full:          fullRemaining,
			Sample:        sampleRemaining,
			AbsoluteError: round2(math.Abs(fullRemaining - sampleRemaining)),
		},
	}
}

// remainingCycles runs the aggregate -> DoD -> cycle chain on a document's
// battery voltage. A document without voltage data estimates zero days.
func remainingCycles(doc *models.ParsedDocument, opts CompareOptions) float64 {
	daily := ComputeDailyDoD(DailyStats(doc.Metric(models.MetricVoltageBattery)), opts.ReferenceVoltage)
	estimate := EstimateCycles(opts.Strategy, AverageDoD(daily), len(daily))
	return estimate.RemainingCycles
}

func seriesLen(doc *models.ParsedDocument, metric string) int {
	if series := doc.Metric(metric); series != nil {
		return series.Len()
	}
	return 0
}

func unionMetricNames(a, b *models.ParsedDocument) []string {
	seen := make(map[string]struct{}, len(a.Series)+len(b.Series))
	for name := range a.Series {
		seen[name] = struct{}{}
	}
	for name := range b.Series {
		seen[name] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
