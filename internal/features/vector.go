package features

import (
	"fmt"
	"time"
)

const (
	NumPredictors = 7
	NumTemporal   = 4
	NumFeatures   = NumPredictors + NumTemporal
)

// Column names. The model consumes a positional vector, so this order is
// part of the training/serving contract.
const (
	ColInitialPrice    = "InitialPrice"
	ColAgeInDays       = "AgeInDays"
	ColQuantitySold    = "QuantitySold"
	ColUtilityScore    = "UtilityScore"
	ColPriceElasticity = "PriceElasticity"
	ColDiscount        = "Discount"
	ColQuality         = "Quality"
	ColMonthSin        = "MonthSin"
	ColMonthCos        = "MonthCos"
	ColHourSin         = "HourSin"
	ColHourCos         = "HourCos"
)

var PredictorColumns = [NumPredictors]string{
	ColInitialPrice,
	ColAgeInDays,
	ColQuantitySold,
	ColUtilityScore,
	ColPriceElasticity,
	ColDiscount,
	ColQuality,
}

var TemporalColumns = [NumTemporal]string{
	ColMonthSin,
	ColMonthCos,
	ColHourSin,
	ColHourCos,
}

// Columns returns the full feature column order
func Columns() []string {
	cols := make([]string, 0, NumFeatures)
	cols = append(cols, PredictorColumns[:]...)
	cols = append(cols, TemporalColumns[:]...)
	return cols
}

// Predictors holds the seven numeric predictors in canonical order
type Predictors [NumPredictors]float64

// Named returns a name → value view
func (p Predictors) Named() map[string]float64 {
	m := make(map[string]float64, NumPredictors)
	for i, name := range PredictorColumns {
		m[name] = p[i]
	}
	return m
}

// Vector is the positional model input
type Vector [NumFeatures]float64

// NewVector concatenates predictors and temporal features
func NewVector(p Predictors, t Temporal) Vector {
	var v Vector
	copy(v[:NumPredictors], p[:])
	tv := t.Values()
	copy(v[NumPredictors:], tv[:])
	return v
}

// RowVector builds the training-time vector for one observation, with
// temporal features taken from the row's own timestamp.
func RowVector(o Observation) Vector {
	return NewVector(o.Predictors(), EncodeTime(o.Timestamp))
}

// ServingVector builds the serving-time vector from aggregated predictors
// and the serving clock.
func ServingVector(p Predictors, now time.Time) Vector {
	return NewVector(p, EncodeTime(now))
}

// Slice returns a copy of the vector as a slice
func (v Vector) Slice() []float64 {
	out := make([]float64, NumFeatures)
	copy(out, v[:])
	return out
}

// Named returns a name → value view
func (v Vector) Named() map[string]float64 {
	m := make(map[string]float64, NumFeatures)
	for i, name := range Columns() {
		m[name] = v[i]
	}
	return m
}

// VectorFromNamed rebuilds a vector from a name → value mapping.
// Every column must be present.
func VectorFromNamed(m map[string]float64) (Vector, error) {
	var v Vector
	for i, name := range Columns() {
		val, ok := m[name]
		if !ok {
			return v, fmt.Errorf("missing feature column %q", name)
		}
		v[i] = val
	}
	return v, nil
}

// SameColumns reports whether names matches the feature column order exactly
func SameColumns(names []string) bool {
	cols := Columns()
	if len(names) != len(cols) {
		return false
	}
	for i := range cols {
		if names[i] != cols[i] {
			return false
		}
	}
	return true
}
