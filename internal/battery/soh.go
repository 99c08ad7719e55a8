package battery

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/batteryview/backend/internal/models"
)

// ErrEmptyWindow reports a coulomb-counting window containing no current
// samples. Callers surface it as a warning, not a failed analysis.
var ErrEmptyWindow = errors.New("no current samples in integration window")

// StateOfHealth integrates a battery-current series over [t1, t2] (both
// inclusive) and relates the accumulated charge to the nominal capacity.
// A zero t1 or t2 defaults to the start or end of the series' own first
// and last UTC calendar day.
//
// The integration is a left-rectangle sum: each sample's current is held
// over the interval since the previous sample, so the first sample in the
// window contributes nothing. Numerically crude, but it reproduces the
// established convention for these exports.
func StateOfHealth(current *models.Series, t1, t2 time.Time, nominalCapacityAh float64) (*models.SOHResult, error) {
	if current == nil || current.Len() == 0 {
		return nil, ErrEmptyWindow
	}

	start, end, _ := current.TimeRange()
	if t1.IsZero() {
		t1 = dayStart(start)
	}
	if t2.IsZero() {
		t2 = dayEnd(end)
	}

	window := current.Window(t1, t2)
	if len(window) == 0 {
		return nil, ErrEmptyWindow
	}
	sort.Slice(window, func(i, j int) bool {
		return window[i].Timestamp.Before(window[j].Timestamp)
	})

	var chargeAh float64
	for i := 1; i < len(window); i++ {
		dtHours := window[i].Timestamp.Sub(window[i-1].Timestamp).Seconds() / 3600
		chargeAh += window[i].Value * dtHours
	}
	actual := math.Abs(chargeAh)

	var sohPercent float64
	if nominalCapacityAh > 0 {
		sohPercent = round2(actual / nominalCapacityAh * 100)
	}

	return &models.SOHResult{
		NominalCapacityAh: nominalCapacityAh,
		ActualCapacityAh:  round2(actual),
		SOHPercent:        sohPercent,
		WindowStart:       t1,
		WindowEnd:         t2,
		SampleCount:       len(window),
	}, nil
}
