package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetActiveModelKeepsSingleSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.SetActiveModel("v1")
	m.SetActiveModel("v2")

	assert.Equal(t, 1, testutil.CollectAndCount(m.ActiveModel))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveModel.WithLabelValues("v2")))
}

func TestNewRegistersEveryCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Predictions.WithLabelValues("ok").Inc()
	m.Reloads.WithLabelValues("success").Inc()
	m.RateLimited.Inc()
	m.PredictionLatency.Observe(0.01)
	m.DataLoadLatency.Observe(0.01)
	m.SetActiveModel("v1")

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 6)
}
