package battery

import (
	"errors"
	"time"

	"github.com/batteryview/backend/internal/models"
)

// Defaults matching the charge-controller vendor's published figures.
// They seed configuration and request parameters; the computations in
// this package never assume them.
const (
	DefaultFullChargeVoltage = 13.0
	DefaultNominalCapacityAh = 33.0
	DefaultStrategy          = StrategyQuadratic
)

// ErrNoVoltageData reports a document without a battery-voltage series,
// which leaves nothing for the DoD and cycle chain to work on.
var ErrNoVoltageData = errors.New("document has no battery voltage series")

// Params configures one health computation. Zero-valued window instants
// default to the current series' own day bounds.
type Params struct {
	FullChargeVoltage float64
	Strategy          Strategy
	NominalCapacityAh float64
	WindowStart       time.Time
	WindowEnd         time.Time
}

// DefaultParams returns Params seeded with the vendor defaults.
func DefaultParams() Params {
	return Params{
		FullChargeVoltage: DefaultFullChargeVoltage,
		Strategy:          DefaultStrategy,
		NominalCapacityAh: DefaultNominalCapacityAh,
	}
}

// BuildHealthReport runs the complete assessment over a parsed document:
// daily aggregation of the battery voltage, per-day DoD, cycle estimate,
// status band, and coulomb-counted SOH from the battery current. An empty
// integration window downgrades the SOH to a warning instead of failing
// the report.
func BuildHealthReport(doc *models.ParsedDocument, params Params, catalog *models.MetricCatalog) (*models.HealthReport, error) {
	voltage := doc.Metric(models.MetricVoltageBattery)
	if voltage == nil || voltage.Len() == 0 {
		return nil, ErrNoVoltageData
	}

	daily := ComputeDailyDoD(DailyStats(voltage), params.FullChargeVoltage)
	avgDoD := AverageDoD(daily)
	maxDoD, minDoD := DoDSpread(daily)
	cycles := EstimateCycles(params.Strategy, avgDoD, len(daily))
	status, color := StatusFor(avgDoD, catalog)

	report := &models.HealthReport{
		FullChargeVoltage: params.FullChargeVoltage,
		Daily:             daily,
		DaysWithData:      len(daily),
		AvgDoD:            avgDoD,
		MaxDoD:            maxDoD,
		MinDoD:            minDoD,
		Cycles:            cycles,
		Status:            status,
		StatusColor:       color,
	}

	soh, err := StateOfHealth(doc.Metric(models.MetricCurrentBattery),
		params.WindowStart, params.WindowEnd, params.NominalCapacityAh)
	if err != nil {
		if errors.Is(err, ErrEmptyWindow) {
			report.SOHWarning = err.Error()
			return report, nil
		}
		return nil, err
	}
	report.SOH = soh
	return report, nil
}
