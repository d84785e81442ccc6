package api

import (
	"errors"
	"net/http"
)

// Prediction error taxonomy. Callers wrap these with %w and the boundary
// layer maps them with errors.Is.
var (
	// ErrEntityNotFound means no history rows exist for the requested SKU.
	ErrEntityNotFound = errors.New("sku not found")

	// ErrInsufficientHistory means the SKU has fewer rows than the window size.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrDataUnavailable means the observation source could not be loaded.
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrModelUnavailable means no usable model could be resolved.
	ErrModelUnavailable = errors.New("model unavailable")
)

// StatusFor maps a prediction error to an HTTP status code
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrEntityNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInsufficientHistory):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Outcome returns a low-cardinality label for metrics
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrEntityNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientHistory):
		return "insufficient_history"
	case errors.Is(err, ErrDataUnavailable):
		return "data_unavailable"
	case errors.Is(err, ErrModelUnavailable):
		return "model_unavailable"
	default:
		return "error"
	}
}
