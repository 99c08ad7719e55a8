package battery

import (
	"fmt"
	"math"
	"strings"

	"github.com/batteryview/backend/internal/models"
)

// Strategy names a degradation curve mapping average DoD to total usable
// cycles. Two curves circulate in the vendor's documentation; both are
// preserved as selectable options rather than picking one.
type Strategy string

const (
	StrategyLinear    Strategy = "linear"
	StrategyQuadratic Strategy = "quadratic"
)

// ParseStrategy resolves a strategy name, case-insensitively. The empty
// string selects the quadratic curve.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyQuadratic:
		return StrategyQuadratic, nil
	case StrategyLinear:
		return StrategyLinear, nil
	default:
		return "", fmt.Errorf("unknown cycle strategy %q (want linear or quadratic)", s)
	}
}

// TotalCycles evaluates the degradation curve at an average DoD. The
// result is rounded to two decimals and floored at zero; deeply cycled
// batteries can otherwise drive the curves negative.
func TotalCycles(strategy Strategy, avgDoD float64) float64 {
	var cycles float64
	switch strategy {
	case StrategyLinear:
		cycles = -9*avgDoD + 1180
	default:
		cycles = 0.0622*avgDoD*avgDoD - 19.599*avgDoD + 1461.6
	}
	return math.Max(0, round2(cycles))
}

// EstimateCycles turns an average DoD and the number of days with data
// into the full cycle-life estimate. One cycle is consumed per calendar
// day with valid data; remaining cycles are floored at zero, and the
// lifecycle percentage falls back to zero when no cycles are available.
func EstimateCycles(strategy Strategy, avgDoD float64, daysWithData int) models.CycleEstimate {
	total := TotalCycles(strategy, avgDoD)
	remaining := math.Max(0, round2(total-float64(daysWithData)))

	var lifecycle float64
	if total > 0 {
		lifecycle = round2(remaining / total * 100)
	}

	return models.CycleEstimate{
		Strategy:         string(strategy),
		TotalCycles:      total,
		RemainingCycles:  remaining,
		LifecyclePercent: lifecycle,
	}
}
