package api

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// PredictionResult is the outcome of a single-SKU price prediction.
// Timestamp is the serving clock reading used to build the temporal features.
type PredictionResult struct {
	SKU            string    `json:"sku"`
	Timestamp      time.Time `json:"timestamp"`
	PredictedPrice float64   `json:"predicted_price"`
}

// NewPredictionResult builds a result with the price rounded to 2 decimals
func NewPredictionResult(sku string, at time.Time, price float64) PredictionResult {
	return PredictionResult{
		SKU:            sku,
		Timestamp:      at,
		PredictedPrice: Round2(price),
	}
}

// PredictRequest is the body of POST /predict
type PredictRequest struct {
	SKU string `json:"sku" binding:"required"`
}

// Validate performs basic structural validation
func (r *PredictRequest) Validate() error {
	if strings.TrimSpace(r.SKU) == "" {
		return fmt.Errorf("sku is required")
	}
	return nil
}

// PredictResponse is the wire form of a PredictionResult
type PredictResponse struct {
	SKU            string  `json:"sku"`
	Timestamp      string  `json:"timestamp"`
	PredictedPrice float64 `json:"predicted_price"`
}

// ToResponse renders the result with an ISO-8601 timestamp
func (p PredictionResult) ToResponse() PredictResponse {
	return PredictResponse{
		SKU:            p.SKU,
		Timestamp:      p.Timestamp.Format(time.RFC3339),
		PredictedPrice: p.PredictedPrice,
	}
}

// ErrorResponse is returned by every failing endpoint
type ErrorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status       string `json:"status"`
	Model        string `json:"model"`
	ModelVersion string `json:"model_version,omitempty"`
	Data         string `json:"data"`
	Detail       string `json:"detail,omitempty"`
}

// Round2 rounds half away from zero to 2 decimal places
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}
