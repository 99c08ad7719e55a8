// Package battery derives health indicators from parsed charge-controller
// series: daily depth of discharge, cycle-life estimates, coulomb-counted
// state of health, and full-vs-sampled dataset comparisons. Every function
// is a pure computation over its inputs; nothing in this package caches
// or mutates shared state between calls.
package battery

import (
	"sort"
	"time"

	"github.com/batteryview/backend/internal/models"
)

// dayStart returns the UTC midnight of ts's calendar day. All daily
// grouping uses UTC dates regardless of where the device logged.
func dayStart(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// dayEnd returns the last representable instant of ts's UTC calendar day.
func dayEnd(ts time.Time) time.Time {
	return dayStart(ts).Add(24*time.Hour - time.Nanosecond)
}

// DailyStats groups a series by UTC calendar date and computes min, max
// and mean per day. Days without samples produce no row; a single-sample
// day has min = max = mean. Rows come back sorted by date ascending.
func DailyStats(series *models.Series) []models.DailyStat {
	if series == nil || series.Len() == 0 {
		return nil
	}

	type dayAcc struct {
		min, max, sum float64
		count         int
	}
	byDay := make(map[time.Time]*dayAcc)

	for _, sample := range series.Samples {
		day := dayStart(sample.Timestamp)
		acc := byDay[day]
		if acc == nil {
			acc = &dayAcc{min: sample.Value, max: sample.Value}
			byDay[day] = acc
		}
		if sample.Value < acc.min {
			acc.min = sample.Value
		}
		if sample.Value > acc.max {
			acc.max = sample.Value
		}
		acc.sum += sample.Value
		acc.count++
	}

	stats := make([]models.DailyStat, 0, len(byDay))
	for day, acc := range byDay {
		stats = append(stats, models.DailyStat{
			Date: day,
			Min:  acc.min,
			Max:  acc.max,
			Mean: acc.sum / float64(acc.count),
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Date.Before(stats[j].Date)
	})
	return stats
}
