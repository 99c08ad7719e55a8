package battery

import (
	"math"

	"github.com/batteryview/backend/internal/models"
)

// round2 rounds to two decimal places, half away from zero.
func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

// DoD computes one day's depth of discharge from its minimum voltage
// against the full-charge reference, as a percentage rounded to two
// decimals. A minimum above the reference yields a negative value; daily
// DoD is never floored, only the derived cycle counts are. A zero or
// negative reference voltage yields zero instead of a division error.
func DoD(fullChargeVoltage, minVoltage float64) float64 {
	if fullChargeVoltage <= 0 {
		return 0
	}
	return round2((fullChargeVoltage - minVoltage) / fullChargeVoltage * 100)
}

// ComputeDailyDoD derives the per-day DoD rows from daily voltage stats.
func ComputeDailyDoD(daily []models.DailyStat, fullChargeVoltage float64) []models.DailyDoD {
	out := make([]models.DailyDoD, 0, len(daily))
	for _, stat := range daily {
		out = append(out, models.DailyDoD{
			Date:       stat.Date,
			MinVoltage: stat.Min,
			DoD:        DoD(fullChargeVoltage, stat.Min),
		})
	}
	return out
}

// AverageDoD returns the arithmetic mean of the daily DoD values, rounded
// to two decimals. No days means zero.
func AverageDoD(daily []models.DailyDoD) float64 {
	if len(daily) == 0 {
		return 0
	}
	var sum float64
	for _, d := range daily {
		sum += d.DoD
	}
	return round2(sum / float64(len(daily)))
}

// DoDSpread returns the largest and smallest daily DoD values.
func DoDSpread(daily []models.DailyDoD) (maxDoD, minDoD float64) {
	if len(daily) == 0 {
		return 0, 0
	}
	maxDoD, minDoD = daily[0].DoD, daily[0].DoD
	for _, d := range daily[1:] {
		if d.DoD > maxDoD {
			maxDoD = d.DoD
		}
		if d.DoD < minDoD {
			minDoD = d.DoD
		}
	}
	return maxDoD, minDoD
}
