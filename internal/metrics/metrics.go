package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the inference service
type Metrics struct {
	Predictions       *prometheus.CounterVec
	PredictionLatency prometheus.Histogram
	DataLoadLatency   prometheus.Histogram
	Reloads           *prometheus.CounterVec
	ActiveModel       *prometheus.GaugeVec
	RateLimited       prometheus.Counter
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Predictions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricing_predictions_total",
				Help: "Prediction requests by outcome",
			},
			[]string{"outcome"},
		),
		PredictionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pricing_prediction_duration_seconds",
			Help:    "End-to-end prediction latency including the data load",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		DataLoadLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "pricing_data_load_duration_seconds",
			Help:    "Time spent loading the observation history",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		Reloads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricing_model_reloads_total",
				Help: "Model reload attempts by result",
			},
			[]string{"result"},
		),
		ActiveModel: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pricing_active_model_info",
				Help: "Set to 1 for the model version currently served",
			},
			[]string{"version"},
		),
		RateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "pricing_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}),
	}
}

// SetActiveModel records version as the only served model
func (m *Metrics) SetActiveModel(version string) {
	m.ActiveModel.Reset()
	m.ActiveModel.WithLabelValues(version).Set(1)
}
