package features

import (
	"math"
	"time"
)

// Temporal holds the cyclical calendar encoding of a moment in time.
//
// The same encoder feeds offline preprocessing (each row's own timestamp)
// and online serving (the serving clock), so the two paths cannot drift.
type Temporal struct {
	MonthSin float64
	MonthCos float64
	HourSin  float64
	HourCos  float64
}

// EncodeTime maps month-of-year and hour-of-day onto the unit circle.
// Minutes and seconds are ignored.
func EncodeTime(t time.Time) Temporal {
	month := float64(t.Month())
	hour := float64(t.Hour())

	return Temporal{
		MonthSin: math.Sin(2 * math.Pi * month / 12),
		MonthCos: math.Cos(2 * math.Pi * month / 12),
		HourSin:  math.Sin(2 * math.Pi * hour / 24),
		HourCos:  math.Cos(2 * math.Pi * hour / 24),
	}
}

// Values returns the four features in column order
func (t Temporal) Values() [NumTemporal]float64 {
	return [NumTemporal]float64{t.MonthSin, t.MonthCos, t.HourSin, t.HourCos}
}
