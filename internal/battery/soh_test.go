package battery

import (
	"errors"
	"testing"
	"time"

	"github.com/batteryview/backend/internal/models"
)

func TestStateOfHealth(t *testing.T) {
	t0 := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

	t.Run("coulomb counts a constant current", func(t *testing.T) {
		current := seriesOf(models.MetricCurrentBattery,
			models.Sample{Timestamp: t0, Value: 5},
			models.Sample{Timestamp: t0.Add(time.Hour), Value: 5},
		)

		soh, err := StateOfHealth(current, t0, t0.Add(time.Hour), 10)
		if err != nil {
			t.Fatalf("StateOfHealth failed: %v", err)
		}

		if soh.ActualCapacityAh != 5 {
			t.Errorf("Expected 5 Ah, got %v", soh.ActualCapacityAh)
		}
		if soh.SOHPercent != 50 {
			t.Errorf("Expected 50%%, got %v", soh.SOHPercent)
		}
		if soh.SampleCount != 2 {
			t.Errorf("Expected 2 samples in window, got %d", soh.SampleCount)
		}
		if soh.NominalCapacityAh != 10 {
			t.Errorf("Expected nominal 10, got %v", soh.NominalCapacityAh)
		}
	})

	t.Run("first sample contributes nothing", func(t *testing.T) {
		current := seriesOf(models.MetricCurrentBattery,
			models.Sample{Timestamp: t0, Value: 1000},
		)
		soh, err := StateOfHealth(current, t0, t0.Add(time.Hour), 10)
		if err != nil {
			t.Fatalf("StateOfHealth failed: %v", err)
		}
		if soh.ActualCapacityAh != 0 {
			t.Errorf("Expected 0 Ah from a single sample, got %v", soh.ActualCapacityAh)
		}
	})

	t.Run("holds each current over the preceding interval", func(t *testing.T) {
		current := seriesOf(models.MetricCurrentBattery,
			models.Sample{Timestamp: t0, Value: 2},
			models.Sample{Timestamp: t0.Add(30 * time.Minute), Value: 4},
			models.Sample{Timestamp: t0.Add(time.Hour), Value: 6},
		)

		soh, err := StateOfHealth(current, t0, t0.Add(time.Hour), 20)
		if err != nil {
			t.Fatalf("StateOfHealth failed: %v", err)
		}
		// 4A over the first half hour plus 6A over the second: 2 + 3 Ah
		if soh.ActualCapacityAh != 5 {
			t.Errorf("Expected 5 Ah, got %v", soh.ActualCapacityAh)
		}
		if soh.SOHPercent != 25 {
			t.Errorf("Expected 25%%, got %v", soh.SOHPercent)
		}
	})

	t.Run("discharge current counts by magnitude", func(t *testing.T) {
		current := seriesOf(models.MetricCurrentBattery,
			models.Sample{Timestamp: t0, Value: -5},
			models.Sample{Timestamp: t0.Add(time.Hour), Value: -5},
		)
		soh, err := StateOfHealth(current, t0, t0.Add(time.Hour), 10)
		if err != nil {
			t.Fatalf("StateOfHealth failed: %v", err)
		}
		if soh.ActualCapacityAh != 5 {
			t.Errorf("Expected 5 Ah from negative current, got %v", soh.ActualCapacityAh)
		}
	})

	t.Run("sorts an unordered window", func(t *testing.T) {
		current := seriesOf(models.MetricCurrentBattery,
			models.Sample{Timestamp: t0.Add(time.Hour), Value: 5},
			models.Sample{Timestamp: t0, Value: 5},
		)
		soh, err := StateOfHealth(current, t0, t0.Add(time.Hour), 10)
		if err != nil {
			t.Fatalf("StateOfHealth failed: %v", err)
		}
		if soh.ActualCapacityAh != 5 {
			t.Errorf("Expected 5 Ah, got %v", soh.ActualCapacityAh)
		}
	})

	t.Run("window bounds are inclusive", func(t *testing.T) {
		current := seriesOf(models.MetricCurrentBattery,
			models.Sample{Timestamp: t0, Value: 5},
			models.Sample{Timestamp: t0.Add(time.Hour), Value: 5},
			models.Sample{Timestamp: t0.Add(2 * time.Hour), Value: 500},
		)
		soh, err := StateOfHealth(current, t0, t0.Add(time.Hour), 10)
		if err != nil {
			t.Fatalf("StateOfHealth failed: %v", err)
		}
		if soh.SampleCount != 2 {
			t.Errorf("Expected the third sample excluded, got %d in window", soh.SampleCount)
		}
		if soh.ActualCapacityAh != 5 {
			t.Errorf("Expected 5 Ah, got %v", soh.ActualCapacityAh)
		}
	})

	t.Run("zero instants default to the series day bounds", func(t *testing.T) {
		current := seriesOf(models.MetricCurrentBattery,
			models.Sample{Timestamp: t0, Value: 5},
			models.Sample{Timestamp: t0.Add(time.Hour), Value: 5},
		)
		soh, err := StateOfHealth(current, time.Time{}, time.Time{}, 10)
		if err != nil {
			t.Fatalf("StateOfHealth failed: %v", err)
		}

		wantStart := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
		if !soh.WindowStart.Equal(wantStart) {
			t.Errorf("Expected window start %v, got %v", wantStart, soh.WindowStart)
		}
		if !soh.WindowEnd.After(t0.Add(time.Hour)) {
			t.Error("Expected window end to cover the last sample")
		}
		if soh.WindowEnd.UTC().Day() != 15 {
			t.Errorf("Expected window end on the 15th, got %v", soh.WindowEnd)
		}
		if soh.SOHPercent != 50 {
			t.Errorf("Expected 50%%, got %v", soh.SOHPercent)
		}
	})

	t.Run("empty window is reported", func(t *testing.T) {
		current := seriesOf(models.MetricCurrentBattery,
			models.Sample{Timestamp: t0, Value: 5},
		)
		_, err := StateOfHealth(current, t0.Add(24*time.Hour), t0.Add(48*time.Hour), 10)
		if !errors.Is(err, ErrEmptyWindow) {
			t.Errorf("Expected ErrEmptyWindow, got %v", err)
		}
	})

	t.Run("missing series is an empty window", func(t *testing.T) {
		if _, err := StateOfHealth(nil, t0, t0.Add(time.Hour), 10); !errors.Is(err, ErrEmptyWindow) {
			t.Errorf("Expected ErrEmptyWindow for nil series, got %v", err)
		}
		empty := models.NewSeries(models.MetricCurrentBattery)
		if _, err := StateOfHealth(empty, t0, t0.Add(time.Hour), 10); !errors.Is(err, ErrEmptyWindow) {
			t.Errorf("Expected ErrEmptyWindow for empty series, got %v", err)
		}
	})

	t.Run("zero nominal capacity guards division", func(t *testing.T) {
		current := seriesOf(models.MetricCurrentBattery,
			models.Sample{Timestamp: t0, Value: 5},
			models.Sample{Timestamp: t0.Add(time.Hour), Value: 5},
		)
		soh, err := StateOfHealth(current, t0, t0.Add(time.Hour), 0)
		if err != nil {
			t.Fatalf("StateOfHealth failed: %v", err)
		}
		if soh.SOHPercent != 0 {
			t.Errorf("Expected 0%% with zero nominal capacity, got %v", soh.SOHPercent)
		}
		if soh.ActualCapacityAh != 5 {
			t.Errorf("Expected the charge still measured, got %v", soh.ActualCapacityAh)
		}
	})
}
