package features

import "time"

// Observation is one historical row for one SKU.
// Price is the training target and is absent at serving time.
type Observation struct {
	SKU       string
	Timestamp time.Time

	InitialPrice    float64
	AgeInDays       float64
	QuantitySold    float64
	UtilityScore    float64
	PriceElasticity float64
	Discount        float64
	Quality         float64

	Price    float64
	HasPrice bool
}

// Predictors returns the seven numeric predictors in canonical order
func (o Observation) Predictors() Predictors {
	return Predictors{
		o.InitialPrice,
		o.AgeInDays,
		o.QuantitySold,
		o.UtilityScore,
		o.PriceElasticity,
		o.Discount,
		o.Quality,
	}
}

// History is an unordered collection of observations from one dataset
type History []Observation

// ForSKU returns the rows belonging to sku, preserving input order
func (h History) ForSKU(sku string) History {
	var out History
	for _, o := range h {
		if o.SKU == sku {
			out = append(out, o)
		}
	}
	return out
}

// SKUs returns the distinct SKUs in first-seen order
func (h History) SKUs() []string {
	seen := make(map[string]struct{})
	var skus []string
	for _, o := range h {
		if _, ok := seen[o.SKU]; ok {
			continue
		}
		seen[o.SKU] = struct{}{}
		skus = append(skus, o.SKU)
	}
	return skus
}
