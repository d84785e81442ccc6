package features

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumns_Order(t *testing.T) {
	assert.Equal(t, []string{
		"InitialPrice", "AgeInDays", "QuantitySold", "UtilityScore",
		"PriceElasticity", "Discount", "Quality",
		"MonthSin", "MonthCos", "HourSin", "HourCos",
	}, Columns())
	assert.True(t, SameColumns(Columns()))
	assert.False(t, SameColumns([]string{"InitialPrice"}))

	swapped := Columns()
	swapped[0], swapped[1] = swapped[1], swapped[0]
	assert.False(t, SameColumns(swapped))
}

func TestNewVector_Layout(t *testing.T) {
	p := Predictors{1, 2, 3, 4, 5, 6, 7}
	tf := Temporal{MonthSin: 8, MonthCos: 9, HourSin: 10, HourCos: 11}

	v := NewVector(p, tf)
	assert.Equal(t, Vector{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, v)

	named := v.Named()
	assert.Equal(t, 1.0, named[ColInitialPrice])
	assert.Equal(t, 11.0, named[ColHourCos])

	back, err := VectorFromNamed(named)
	require.NoError(t, err)
	assert.Equal(t, v, back)
}

func TestVectorFromNamed_MissingColumn(t *testing.T) {
	named := Vector{}.Named()
	delete(named, ColQuality)

	_, err := VectorFromNamed(named)
	assert.ErrorContains(t, err, ColQuality)
}

func TestRowAndServingVectorsShareEncoding(t *testing.T) {
	ts := time.Date(2025, time.October, 5, 21, 12, 0, 0, time.UTC)
	o := obs("A1", 0, 100, 10)
	o.Timestamp = ts

	row := RowVector(o)
	serving := ServingVector(o.Predictors(), ts)
	assert.Equal(t, row, serving)
}
