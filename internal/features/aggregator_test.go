package features

import (
	"testing"
	"time"

	"github.com/SamMebarek/mlopstest/internal/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, time.January, 10, 8, 0, 0, 0, time.UTC)

func obs(sku string, offset time.Duration, initialPrice, age float64) Observation {
	return Observation{
		SKU:             sku,
		Timestamp:       base.Add(offset),
		InitialPrice:    initialPrice,
		AgeInDays:       age,
		QuantitySold:    initialPrice / 10,
		UtilityScore:    0.5,
		PriceElasticity: -1.2,
		Discount:        age / 100,
		Quality:         0.8,
		Price:           initialPrice * 0.9,
		HasPrice:        true,
	}
}

func TestAggregate_MeanOfThreeRows(t *testing.T) {
	rows := History{
		obs("A1", 1*time.Hour, 100, 10),
		obs("A1", 2*time.Hour, 105, 11),
		obs("A1", 3*time.Hour, 110, 12),
	}

	got, err := Aggregate("A1", rows, WindowSize)
	require.NoError(t, err)

	assert.InDelta(t, 105.0, got[0], 1e-9)
	assert.InDelta(t, 11.0, got[1], 1e-9)
	assert.InDelta(t, 10.5, got[2], 1e-9)
	assert.InDelta(t, 0.5, got[3], 1e-9)
	assert.InDelta(t, -1.2, got[4], 1e-9)
	assert.InDelta(t, 0.11, got[5], 1e-9)
	assert.InDelta(t, 0.8, got[6], 1e-9)
}

func TestAggregate_IndependentOfInputOrder(t *testing.T) {
	a := obs("A1", 1*time.Hour, 100, 10)
	b := obs("A1", 2*time.Hour, 105, 11)
	c := obs("A1", 3*time.Hour, 110, 12)

	want, err := Aggregate("A1", History{a, b, c}, WindowSize)
	require.NoError(t, err)

	for _, perm := range []History{{c, b, a}, {b, a, c}, {a, c, b}, {c, a, b}} {
		got, err := Aggregate("A1", perm, WindowSize)
		require.NoError(t, err)
		for i := range want {
			assert.InDelta(t, want[i], got[i], 1e-9)
		}
	}
}

func TestAggregate_UsesMostRecentWindow(t *testing.T) {
	rows := History{
		obs("A1", 2*time.Hour, 105, 11),
		obs("A1", 0, 1000, 99), // t0, oldest, must be excluded
		obs("A1", 3*time.Hour, 110, 12),
		obs("A1", 1*time.Hour, 100, 10),
	}

	got, err := Aggregate("A1", rows, WindowSize)
	require.NoError(t, err)
	assert.InDelta(t, 105.0, got[0], 1e-9)
	assert.InDelta(t, 11.0, got[1], 1e-9)
}

func TestAggregate_NoRows(t *testing.T) {
	_, err := Aggregate("ZZ", nil, WindowSize)
	require.Error(t, err)
	assert.ErrorIs(t, err, api.ErrEntityNotFound)
}

func TestAggregate_InsufficientRows(t *testing.T) {
	for n := 1; n < WindowSize; n++ {
		var rows History
		for i := 0; i < n; i++ {
			rows = append(rows, obs("A1", time.Duration(i)*time.Hour, 100, 10))
		}

		_, err := Aggregate("A1", rows, WindowSize)
		require.Error(t, err)
		assert.ErrorIs(t, err, api.ErrInsufficientHistory)
		assert.NotErrorIs(t, err, api.ErrEntityNotFound)
	}
}

func TestAggregate_InvalidWindow(t *testing.T) {
	_, err := Aggregate("A1", History{obs("A1", 0, 1, 1)}, 0)
	assert.Error(t, err)
}

func TestAggregate_IgnoresTarget(t *testing.T) {
	rows := History{
		obs("A1", 1*time.Hour, 100, 10),
		obs("A1", 2*time.Hour, 105, 11),
		obs("A1", 3*time.Hour, 110, 12),
	}
	want, err := Aggregate("A1", rows, WindowSize)
	require.NoError(t, err)

	for i := range rows {
		rows[i].Price = 1e9
	}
	got, err := Aggregate("A1", rows, WindowSize)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRecentWindow_StableOnTies(t *testing.T) {
	first := obs("A1", time.Hour, 1, 1)
	second := obs("A1", time.Hour, 2, 2)
	third := obs("A1", time.Hour, 3, 3)
	older := obs("A1", 0, 4, 4)

	got := RecentWindow(History{first, older, second, third}, 2)
	require.Len(t, got, 2)
	assert.Equal(t, 1.0, got[0].InitialPrice)
	assert.Equal(t, 2.0, got[1].InitialPrice)
}

func TestHistory_ForSKU(t *testing.T) {
	h := History{obs("A1", 0, 1, 1), obs("B2", 0, 2, 2), obs("A1", time.Hour, 3, 3)}

	a1 := h.ForSKU("A1")
	require.Len(t, a1, 2)
	assert.Equal(t, 1.0, a1[0].InitialPrice)
	assert.Equal(t, 3.0, a1[1].InitialPrice)

	assert.Empty(t, h.ForSKU("C3"))
	assert.Equal(t, []string{"A1", "B2"}, h.SKUs())
}
