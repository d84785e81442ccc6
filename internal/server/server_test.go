package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/SamMebarek/mlopstest/internal/api"
	"github.com/SamMebarek/mlopstest/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakePredictor struct {
	predictErr error
	reloadErr  error
	healthErr  error
	reloads    int
}

func (f *fakePredictor) Predict(ctx context.Context, sku string) (api.PredictionResult, error) {
	if f.predictErr != nil {
		return api.PredictionResult{}, f.predictErr
	}
	return api.NewPredictionResult(sku, time.Date(2025, 7, 1, 9, 30, 0, 0, time.UTC), 42.129), nil
}

func (f *fakePredictor) ReloadModel(ctx context.Context) error {
	f.reloads++
	return f.reloadErr
}

func (f *fakePredictor) Health(ctx context.Context) (api.HealthResponse, error) {
	if f.healthErr != nil {
		return api.HealthResponse{Status: "unhealthy", Model: "unavailable", Data: "ok", Detail: f.healthErr.Error()}, f.healthErr
	}
	return api.HealthResponse{Status: "ok", Model: "ready", ModelVersion: "v1", Data: "ok"}, nil
}

func (f *fakePredictor) ModelVersion() string { return "v1" }

func newTestRouter(svc Predictor, cfg Config) (*gin.Engine, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	cfg.Gatherer = reg
	if cfg.AdminUser == "" {
		cfg.AdminUser, cfg.AdminPassword = "admin", "secret"
	}
	return NewRouter(svc, cfg, m, zerolog.Nop()), m
}

func doJSON(r http.Handler, method, path, body string, auth ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if len(auth) == 2 {
		req.SetBasicAuth(auth[0], auth[1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPredict_OK(t *testing.T) {
	r, _ := newTestRouter(&fakePredictor{}, Config{})
	w := doJSON(r, http.MethodPost, "/predict", `{"sku":"A1"}`)

	require.Equal(t, http.StatusOK, w.Code)
	var resp api.PredictResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "A1", resp.SKU)
	assert.Equal(t, "2025-07-01T09:30:00Z", resp.Timestamp)
	assert.Equal(t, 42.13, resp.PredictedPrice)
}

func TestPredict_ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("sku %q: %w", "X", api.ErrEntityNotFound), http.StatusNotFound},
		{fmt.Errorf("have 1, need 3: %w", api.ErrInsufficientHistory), http.StatusBadRequest},
		{fmt.Errorf("disk: %w", api.ErrDataUnavailable), http.StatusInternalServerError},
		{api.ErrModelUnavailable, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		r, _ := newTestRouter(&fakePredictor{predictErr: tt.err}, Config{})
		w := doJSON(r, http.MethodPost, "/predict", `{"sku":"X"}`)
		assert.Equal(t, tt.code, w.Code, "err=%v", tt.err)

		var resp api.ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, api.Outcome(tt.err), resp.Error)
	}
}

func TestPredict_MalformedBody(t *testing.T) {
	r, _ := newTestRouter(&fakePredictor{}, Config{})

	for _, body := range []string{`{`, `{}`, `{"sku":"   "}`, `{"sku": 12}`} {
		w := doJSON(r, http.MethodPost, "/predict", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body=%s", body)
	}
}

func TestReload_RequiresAuth(t *testing.T) {
	svc := &fakePredictor{}
	r, _ := newTestRouter(svc, Config{})

	w := doJSON(r, http.MethodPost, "/reload-model", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(r, http.MethodPost, "/reload-model", "", "admin", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 0, svc.reloads)

	w = doJSON(r, http.MethodPost, "/reload-model", "", "admin", "secret")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"model_version":"v1"`)
	assert.Equal(t, 1, svc.reloads)
}

func TestReload_Failure(t *testing.T) {
	r, _ := newTestRouter(&fakePredictor{reloadErr: fmt.Errorf("gone: %w", api.ErrModelUnavailable)}, Config{})
	w := doJSON(r, http.MethodPost, "/reload-model", "", "admin", "secret")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "model_unavailable")
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(&fakePredictor{}, Config{})
	w := doJSON(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	r, _ = newTestRouter(&fakePredictor{healthErr: errors.New("no model")}, Config{})
	w = doJSON(r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "no model")
}

func TestRateLimit(t *testing.T) {
	r, m := newTestRouter(&fakePredictor{}, Config{RequestsPerSecond: 0.001, Burst: 1})

	assert.Equal(t, http.StatusOK, doJSON(r, http.MethodPost, "/predict", `{"sku":"A1"}`).Code)
	w := doJSON(r, http.MethodPost, "/predict", `{"sku":"A1"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited))

	// health is never limited
	assert.Equal(t, http.StatusOK, doJSON(r, http.MethodGet, "/health", "").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r, m := newTestRouter(&fakePredictor{}, Config{})
	m.Predictions.WithLabelValues("ok").Inc()

	w := doJSON(r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `pricing_predictions_total{outcome="ok"} 1`)
}
