package battery

import (
	"testing"
	"time"

	"github.com/batteryview/backend/internal/models"
)

func TestCompressionPercent(t *testing.T) {
	cases := []struct {
		name        string
		fullCount   int
		sampleCount int
		want        float64
	}{
		{"ninety percent reduction", 1000, 100, 90},
		{"no reduction", 500, 500, 0},
		{"half", 10, 5, 50},
		{"metric absent from sample", 10, 0, 100},
		{"empty full dataset", 0, 50, 100},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CompressionPercent(tc.fullCount, tc.sampleCount); got != tc.want {
				t.Errorf("CompressionPercent(%d, %d) = %v, want %v",
					tc.fullCount, tc.sampleCount, got, tc.want)
			}
		})
	}
}

// compareTestDocs builds a full document and a sampled-down version of it
func compareTestDocs() (*models.ParsedDocument, *models.ParsedDocument) {
	day1 := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)

	full := models.NewParsedDocument()
	full.Series[models.MetricVoltageBattery] = seriesOf(models.MetricVoltageBattery,
		models.Sample{Timestamp: day1.Add(10 * time.Hour), Value: 12.8},
		models.Sample{Timestamp: day1.Add(11 * time.Hour), Value: 12.6},
		models.Sample{Timestamp: day2.Add(10 * time.Hour), Value: 12.9},
		models.Sample{Timestamp: day2.Add(11 * time.Hour), Value: 13.0},
	)
	full.Series[models.MetricUpTime] = seriesOf(models.MetricUpTime,
		models.Sample{Timestamp: day1.Add(10 * time.Hour), Value: 1},
		models.Sample{Timestamp: day1.Add(11 * time.Hour), Value: 2},
	)

	sample := models.NewParsedDocument()
	sample.Series[models.MetricVoltageBattery] = seriesOf(models.MetricVoltageBattery,
		models.Sample{Timestamp: day1.Add(10 * time.Hour), Value: 12.6},
		models.Sample{Timestamp: day2.Add(10 * time.Hour), Value: 12.9},
	)

	return full, sample
}

func TestCompare(t *testing.T) {
	t.Run("computes per-metric compression", func(t *testing.T) {
		full, sample := compareTestDocs()

		result := Compare(full, sample, CompareOptions{})

		if got := result.PerMetric[models.MetricVoltageBattery]; got != 50 {
			t.Errorf("Expected 50%% compression for voltage, got %v", got)
		}
		// UpTime exists only in the full document
		if got := result.PerMetric[models.MetricUpTime]; got != 100 {
			t.Errorf("Expected 100%% compression for uptime, got %v", got)
		}
	})

	t.Run("defaults reference voltage and strategy", func(t *testing.T) {
		full, sample := compareTestDocs()

		result := Compare(full, sample, CompareOptions{})

		if result.ReferenceVoltage != 13.0 {
			t.Errorf("Expected 13.0 V reference, got %v", result.ReferenceVoltage)
		}
		if result.Strategy != "quadratic" {
			t.Errorf("Expected quadratic strategy, got %q", result.Strategy)
		}
	})

	t.Run("diffs the remaining-cycle estimates", func(t *testing.T) {
		full, sample := compareTestDocs()

		result := Compare(full, sample, CompareOptions{})

		// Both documents run the identical chain, so recompute directly.
		opts := CompareOptions{ReferenceVoltage: 13.0, Strategy: StrategyQuadratic}
		wantFull := remainingCycles(full, opts)
		wantSample := remainingCycles(sample, opts)

		if result.Remaining.Full != wantFull {
			t.Errorf("Expected full remaining %v, got %v", wantFull, result.Remaining.Full)
		}
		if result.Remaining.Sample != wantSample {
			t.Errorf("Expected sample remaining %v, got %v", wantSample, result.Remaining.Sample)
		}

		wantErr := wantFull - wantSample
		if wantErr < 0 {
			wantErr = -wantErr
		}
		if result.Remaining.AbsoluteError != round2(wantErr) {
			t.Errorf("Expected absolute error %v, got %v", round2(wantErr), result.Remaining.AbsoluteError)
		}
		if result.Remaining.AbsoluteError < 0 {
			t.Error("Absolute error must not be negative")
		}
	})

	t.Run("identical documents have zero error", func(t *testing.T) {
		full, _ := compareTestDocs()

		result := Compare(full, full, CompareOptions{})

		if result.Remaining.AbsoluteError != 0 {
			t.Errorf("Expected zero error, got %v", result.Remaining.AbsoluteError)
		}
		for metric, compression := range result.PerMetric {
			if compression != 0 {
				t.Errorf("Expected 0%% compression for %s, got %v", metric, compression)
			}
		}
	})

	t.Run("honors explicit metric keys", func(t *testing.T) {
		full, sample := compareTestDocs()

		result := Compare(full, sample, CompareOptions{
			MetricKeys: []string{models.MetricVoltageBattery},
		})

		if len(result.PerMetric) != 1 {
			t.Errorf("Expected 1 metric, got %d", len(result.PerMetric))
		}
		if _, ok := result.PerMetric[models.MetricVoltageBattery]; !ok {
			t.Error("Expected voltage metric present")
		}
	})

	t.Run("honors explicit reference and strategy", func(t *testing.T) {
		full, sample := compareTestDocs()

		result := Compare(full, sample, CompareOptions{
			ReferenceVoltage: 12.5,
			Strategy:         StrategyLinear,
		})

		if result.ReferenceVoltage != 12.5 {
			t.Errorf("Expected 12.5 V, got %v", result.ReferenceVoltage)
		}
		if result.Strategy != "linear" {
			t.Errorf("Expected linear, got %q", result.Strategy)
		}
	})
}
