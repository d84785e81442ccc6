package eval

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Regression holds the scores of a model on a labelled set
type Regression struct {
	NumSamples int        `json:"num_samples"`
	R2         float64    `json:"r2"`
	MAE        float64    `json:"mae"`
	RMSE       float64    `json:"rmse"`
	R2CI       [2]float64 `json:"r2_ci,omitempty"`
	MAECI      [2]float64 `json:"mae_ci,omitempty"`
}

// Map flattens the scores for sinks that store key/value pairs
func (r Regression) Map() map[string]float64 {
	m := map[string]float64{
		"num_samples": float64(r.NumSamples),
		"r2":          r.R2,
		"mae":         r.MAE,
		"rmse":        r.RMSE,
	}
	if r.R2CI != [2]float64{} {
		m["r2_ci_low"], m["r2_ci_high"] = r.R2CI[0], r.R2CI[1]
		m["mae_ci_low"], m["mae_ci_high"] = r.MAECI[0], r.MAECI[1]
	}
	return m
}

// R2 returns the coefficient of determination of pred against actual
func R2(pred, actual []float64) float64 {
	return stat.RSquaredFrom(pred, actual, nil)
}

// MAE returns the mean absolute error
func MAE(pred, actual []float64) float64 {
	return floats.Distance(pred, actual, 1) / float64(len(pred))
}

// RMSE returns the root mean squared error
func RMSE(pred, actual []float64) float64 {
	return floats.Distance(pred, actual, 2) / math.Sqrt(float64(len(pred)))
}

// Computer scores predictions, optionally with bootstrap confidence intervals
type Computer struct {
	numBootstrap int
	seed         int64
}

// NewComputer creates a Computer. numBootstrap of 0 skips the intervals.
func NewComputer(numBootstrap int, seed int64) *Computer {
	return &Computer{numBootstrap: numBootstrap, seed: seed}
}

// Compute scores pred against actual
func (c *Computer) Compute(pred, actual []float64) (Regression, error) {
	if len(pred) != len(actual) {
		return Regression{}, fmt.Errorf("predictions and targets length mismatch: %d != %d", len(pred), len(actual))
	}
	if len(pred) < 2 {
		return Regression{}, fmt.Errorf("need at least 2 samples, got %d", len(pred))
	}

	r := Regression{
		NumSamples: len(pred),
		R2:         R2(pred, actual),
		MAE:        MAE(pred, actual),
		RMSE:       RMSE(pred, actual),
	}
	if c.numBootstrap > 0 {
		c.bootstrap(pred, actual, &r)
	}
	return r, nil
}

// bootstrap resamples pairs with replacement and keeps the 2.5th and 97.5th
// percentiles of each score.
func (c *Computer) bootstrap(pred, actual []float64, r *Regression) {
	n := len(pred)
	rng := rand.New(rand.NewSource(c.seed))

	r2s := make([]float64, 0, c.numBootstrap)
	maes := make([]float64, 0, c.numBootstrap)
	p := make([]float64, n)
	a := make([]float64, n)

	for b := 0; b < c.numBootstrap; b++ {
		for i := 0; i < n; i++ {
			idx := rng.Intn(n)
			p[i], a[i] = pred[idx], actual[idx]
		}
		if v := R2(p, a); !math.IsNaN(v) && !math.IsInf(v, 0) {
			r2s = append(r2s, v)
		}
		maes = append(maes, MAE(p, a))
	}

	r.R2CI = percentiles(r2s, 0.025, 0.975)
	r.MAECI = percentiles(maes, 0.025, 0.975)
}

func percentiles(data []float64, lo, hi float64) [2]float64 {
	if len(data) == 0 {
		return [2]float64{}
	}
	sort.Float64s(data)
	return [2]float64{
		stat.Quantile(lo, stat.Empirical, data, nil),
		stat.Quantile(hi, stat.Empirical, data, nil),
	}
}
