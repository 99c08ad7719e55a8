package models

import "time"

// BatteryStatus is the qualitative health band derived from average DoD.
type BatteryStatus string

const (
	BatteryStatusExcellent BatteryStatus = "Excellent"
	BatteryStatusGood      BatteryStatus = "Good"
	BatteryStatusFair      BatteryStatus = "Fair"
	BatteryStatusPoor      BatteryStatus = "Poor"
	BatteryStatusCritical  BatteryStatus = "Critical"
)

// SOHResult is the outcome of coulomb-counting over a current series.
type SOHResult struct {
	NominalCapacityAh float64   `json:"nominalCapacityAh"`
	ActualCapacityAh  float64   `json:"actualCapacityAh"`
	SOHPercent        float64   `json:"sohPercent"`
	WindowStart       time.Time `json:"windowStart"`
	WindowEnd         time.Time `json:"windowEnd"`
	SampleCount       int       `json:"sampleCount"`
}

// CycleEstimate holds the cycle-life figures derived from average DoD.
type CycleEstimate struct {
	Strategy         string  `json:"strategy"`
	TotalCycles      float64 `json:"totalCycles"`
	RemainingCycles  float64 `json:"remainingCycles"`
	LifecyclePercent float64 `json:"lifecyclePercent"`
}

// HealthReport is the complete battery-health assessment of one document.
type HealthReport struct {
	FullChargeVoltage float64       `json:"fullChargeVoltage"`
	Daily             []DailyDoD    `json:"daily"`
	DaysWithData      int           `json:"daysWithData"`
	AvgDoD            float64       `json:"avgDoD"`
	MaxDoD            float64       `json:"maxDoD"`
	MinDoD            float64       `json:"minDoD"`
	Cycles            CycleEstimate `json:"cycles"`
	Status            BatteryStatus `json:"status"`
	StatusColor       string        `json:"statusColor"`
	SOH               *SOHResult    `json:"soh,omitempty"`
	SOHWarning        string        `json:"sohWarning,omitempty"` // Set when the integration window had no samples
}
