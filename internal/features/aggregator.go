package features

import (
	"fmt"
	"sort"

	"github.com/SamMebarek/mlopstest/internal/api"
	"gonum.org/v1/gonum/stat"
)

// WindowSize is the number of most recent observations averaged per prediction
const WindowSize = 3

// RecentWindow returns the window most recent rows, newest first.
// Equal timestamps keep their input order.
func RecentWindow(rows History, window int) History {
	sorted := make(History, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	if len(sorted) > window {
		sorted = sorted[:window]
	}
	return sorted
}

// Aggregate reduces one SKU's history to the mean of its predictors over the
// window most recent rows. Fewer rows than the window is an error rather than
// a partial average. The target field is never read.
func Aggregate(sku string, rows History, window int) (Predictors, error) {
	var out Predictors

	if window <= 0 {
		return out, fmt.Errorf("window size must be positive, got %d", window)
	}
	if len(rows) == 0 {
		return out, fmt.Errorf("sku %q: %w", sku, api.ErrEntityNotFound)
	}

	recent := RecentWindow(rows, window)
	if len(recent) < window {
		return out, fmt.Errorf("sku %q has %d observations, need %d: %w",
			sku, len(recent), window, api.ErrInsufficientHistory)
	}

	column := make([]float64, window)
	for i := 0; i < NumPredictors; i++ {
		for r, o := range recent {
			column[r] = o.Predictors()[i]
		}
		out[i] = stat.Mean(column, nil)
	}

	return out, nil
}
