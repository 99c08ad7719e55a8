package models

import "time"

// DailyStat holds per-calendar-day statistics of one metric. Dates are
// UTC midnights; days without samples produce no row.
type DailyStat struct {
	Date time.Time `json:"date"`
	Min  float64   `json:"min"`
	Max  float64   `json:"max"`
	Mean float64   `json:"mean"`
}

// DailyDoD is the depth-of-discharge derived from one day's minimum
// voltage against a full-charge reference.
type DailyDoD struct {
	Date       time.Time `json:"date"`
	MinVoltage float64   `json:"minVoltage"`
	DoD        float64   `json:"dod"` // percent, rounded to 2 decimals, may be negative
}
