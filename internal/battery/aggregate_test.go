package battery

import (
	"math"
	"testing"
	"time"

	"github.com/batteryview/backend/internal/models"
)

// floatEq compares floats with a tolerance suited to aggregated means
func floatEq(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// seriesOf builds a series from (timestamp, value) pairs
func seriesOf(metric string, samples ...models.Sample) *models.Series {
	s := models.NewSeries(metric)
	s.Samples = append(s.Samples, samples...)
	return s
}

func TestDailyStats(t *testing.T) {
	day1 := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)

	t.Run("groups by calendar date", func(t *testing.T) {
		series := seriesOf(models.MetricVoltageBattery,
			models.Sample{Timestamp: day1.Add(10 * time.Hour), Value: 12.8},
			models.Sample{Timestamp: day1.Add(11 * time.Hour), Value: 12.6},
			models.Sample{Timestamp: day2.Add(9 * time.Hour), Value: 12.9},
		)

		stats := DailyStats(series)
		if len(stats) != 2 {
			t.Fatalf("Expected 2 daily rows, got %d", len(stats))
		}

		if !stats[0].Date.Equal(day1) {
			t.Errorf("Expected first row %v, got %v", day1, stats[0].Date)
		}
		if !floatEq(stats[0].Min, 12.6) || !floatEq(stats[0].Max, 12.8) || !floatEq(stats[0].Mean, 12.7) {
			t.Errorf("Day 1: expected {12.6, 12.8, 12.7}, got {%v, %v, %v}",
				stats[0].Min, stats[0].Max, stats[0].Mean)
		}

		if !stats[1].Date.Equal(day2) {
			t.Errorf("Expected second row %v, got %v", day2, stats[1].Date)
		}
		if !floatEq(stats[1].Min, 12.9) || !floatEq(stats[1].Max, 12.9) || !floatEq(stats[1].Mean, 12.9) {
			t.Errorf("Day 2: expected {12.9, 12.9, 12.9}, got {%v, %v, %v}",
				stats[1].Min, stats[1].Max, stats[1].Mean)
		}
	})

	t.Run("single sample day has min equal to max and mean", func(t *testing.T) {
		series := seriesOf(models.MetricVoltageBattery,
			models.Sample{Timestamp: day1.Add(12 * time.Hour), Value: 13.1},
		)
		stats := DailyStats(series)
		if len(stats) != 1 {
			t.Fatalf("Expected 1 row, got %d", len(stats))
		}
		if stats[0].Min != 13.1 || stats[0].Max != 13.1 || stats[0].Mean != 13.1 {
			t.Errorf("Expected degenerate row {13.1, 13.1, 13.1}, got %+v", stats[0])
		}
	})

	t.Run("orders days ascending regardless of input order", func(t *testing.T) {
		series := seriesOf(models.MetricVoltageBattery,
			models.Sample{Timestamp: day2.Add(time.Hour), Value: 12.9},
			models.Sample{Timestamp: day1.Add(time.Hour), Value: 12.8},
		)
		stats := DailyStats(series)
		if len(stats) != 2 {
			t.Fatalf("Expected 2 rows, got %d", len(stats))
		}
		if !stats[0].Date.Before(stats[1].Date) {
			t.Error("Expected rows sorted by ascending date")
		}
	})

	t.Run("missing days produce no rows", func(t *testing.T) {
		day5 := day1.AddDate(0, 0, 4)
		series := seriesOf(models.MetricVoltageBattery,
			models.Sample{Timestamp: day1.Add(time.Hour), Value: 12.8},
			models.Sample{Timestamp: day5.Add(time.Hour), Value: 12.5},
		)
		stats := DailyStats(series)
		if len(stats) != 2 {
			t.Errorf("Expected 2 rows without gap filling, got %d", len(stats))
		}
	})

	t.Run("groups by UTC date across midnight", func(t *testing.T) {
		series := seriesOf(models.MetricVoltageBattery,
			models.Sample{Timestamp: time.Date(2024, 1, 15, 23, 30, 0, 0, time.UTC), Value: 12.8},
			models.Sample{Timestamp: time.Date(2024, 1, 16, 0, 30, 0, 0, time.UTC), Value: 12.6},
		)
		stats := DailyStats(series)
		if len(stats) != 2 {
			t.Errorf("Expected samples on both sides of UTC midnight to split, got %d rows", len(stats))
		}
	})

	t.Run("empty series yields no rows", func(t *testing.T) {
		if stats := DailyStats(models.NewSeries(models.MetricVoltageBattery)); len(stats) != 0 {
			t.Errorf("Expected no rows, got %d", len(stats))
		}
		if stats := DailyStats(nil); len(stats) != 0 {
			t.Errorf("Expected no rows for nil series, got %d", len(stats))
		}
	})

	t.Run("rerunning yields identical output", func(t *testing.T) {
		series := seriesOf(models.MetricVoltageBattery,
			models.Sample{Timestamp: day1.Add(10 * time.Hour), Value: 12.8},
			models.Sample{Timestamp: day1.Add(11 * time.Hour), Value: 12.6},
			models.Sample{Timestamp: day2.Add(9 * time.Hour), Value: 12.9},
		)

		first := DailyStats(series)
		second := DailyStats(series)
		if len(first) != len(second) {
			t.Fatalf("Row counts differ: %d vs %d", len(first), len(second))
		}
		for i := range first {
			if first[i] != second[i] {
				t.Errorf("Row %d differs between runs: %+v vs %+v", i, first[i], second[i])
			}
		}
	})
}
