package inference

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/SamMebarek/mlopstest/internal/api"
	"github.com/SamMebarek/mlopstest/internal/features"
	"github.com/SamMebarek/mlopstest/internal/metrics"
	"github.com/SamMebarek/mlopstest/internal/model"
	"github.com/SamMebarek/mlopstest/pkg/otel"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DataSource provides the observation history used to build features
type DataSource interface {
	Load(ctx context.Context) (features.History, error)
}

// ModelSource resolves the model to serve
type ModelSource interface {
	Load(ctx context.Context) (model.Model, error)
}

// State is the serving state of a Service
type State int

const (
	StateUnavailable State = iota
	StateReady
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "unavailable"
}

type held struct {
	model    model.Model
	loadedAt time.Time
}

// Service answers single-SKU price predictions with a hot-swappable model.
// The held model is the only shared mutable state.
type Service struct {
	data    DataSource
	models  ModelSource
	current atomic.Pointer[held]
	reloads singleflight.Group

	window  int
	now     func() time.Time
	loc     *time.Location
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the serving clock
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation reads the serving clock in loc, the zone the training
// features were encoded in
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

// WithWindow overrides the aggregation window
func WithWindow(n int) Option {
	return func(s *Service) { s.window = n }
}

// WithMetrics records predictions and reloads in m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New builds a Service and performs the initial model load. When that load
// fails the service is still returned, in StateUnavailable, along with the error.
func New(ctx context.Context, data DataSource, models ModelSource, logger zerolog.Logger, opts ...Option) (*Service, error) {
	s := &Service{
		data:   data,
		models: models,
		window: features.WindowSize,
		now:    time.Now,
		logger: logger.With().Str("component", "inference").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.window <= 0 {
		return nil, fmt.Errorf("aggregation window must be positive, got %d", s.window)
	}

	if err := s.ReloadModel(ctx); err != nil {
		return s, err
	}
	return s, nil
}

// State reports whether a model is held
func (s *Service) State() State {
	if s.current.Load() == nil {
		return StateUnavailable
	}
	return StateReady
}

// ModelVersion returns the served model version, or "" when unavailable
func (s *Service) ModelVersion() string {
	if h := s.current.Load(); h != nil {
		return h.model.Version()
	}
	return ""
}

// Predict estimates the current price of sku from its most recent
// observations and the serving clock.
func (s *Service) Predict(ctx context.Context, sku string) (api.PredictionResult, error) {
	start := time.Now()
	ctx, span := otel.StartSpan(ctx, "inference.Predict", otel.AttrSKU.String(sku))
	defer span.End()

	res, version, err := s.predict(ctx, sku)

	if s.metrics != nil {
		s.metrics.Predictions.WithLabelValues(api.Outcome(err)).Inc()
		s.metrics.PredictionLatency.Observe(time.Since(start).Seconds())
	}
	span.SetAttributes(otel.AttrOutcome.String(api.Outcome(err)))
	if err != nil {
		otel.RecordError(span, err)
		s.logger.Debug().Err(err).Str("sku", sku).Msg("prediction failed")
		return api.PredictionResult{}, err
	}

	span.SetAttributes(otel.PredictionAttributes(sku, version, res.PredictedPrice)...)
	return res, nil
}

func (s *Service) predict(ctx context.Context, sku string) (api.PredictionResult, string, error) {
	// One model and one clock reading for the whole call.
	h := s.current.Load()
	if h == nil {
		return api.PredictionResult{}, "", fmt.Errorf("no model loaded: %w", api.ErrModelUnavailable)
	}
	now := s.now()
	if s.loc != nil {
		now = now.In(s.loc)
	}

	history, err := s.loadHistory(ctx)
	if err != nil {
		return api.PredictionResult{}, "", err
	}

	p, err := features.Aggregate(sku, history.ForSKU(sku), s.window)
	if err != nil {
		return api.PredictionResult{}, "", err
	}

	price, err := h.model.Predict(features.ServingVector(p, now))
	if err != nil {
		return api.PredictionResult{}, "", fmt.Errorf("model %s: %w", h.model.Version(), err)
	}

	return api.NewPredictionResult(sku, now, price), h.model.Version(), nil
}

func (s *Service) loadHistory(ctx context.Context) (features.History, error) {
	ctx, span := otel.StartSpan(ctx, "inference.LoadHistory")
	defer span.End()

	start := time.Now()
	history, err := s.data.Load(ctx)
	if s.metrics != nil {
		s.metrics.DataLoadLatency.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		otel.RecordError(span, err)
		if !errors.Is(err, api.ErrDataUnavailable) {
			err = fmt.Errorf("%w: %w", err, api.ErrDataUnavailable)
		}
		return nil, err
	}
	span.SetAttributes(otel.AttrHistoryRows.Int(len(history)))
	return history, nil
}

// ReloadModel asks the model source for a model and swaps it in. On failure
// the previously held model keeps serving. Concurrent calls share one load,
// which is not cancelled when the caller that started it goes away.
func (s *Service) ReloadModel(ctx context.Context) error {
	shared := context.WithoutCancel(ctx)
	_, err, _ := s.reloads.Do("reload", func() (any, error) {
		return nil, s.reload(shared)
	})
	return err
}

func (s *Service) reload(ctx context.Context) error {
	ctx, span := otel.StartSpan(ctx, "inference.ReloadModel")
	defer span.End()

	m, err := s.models.Load(ctx)
	if err != nil {
		otel.RecordError(span, err)
		if s.metrics != nil {
			s.metrics.Reloads.WithLabelValues("failure").Inc()
		}
		if !errors.Is(err, api.ErrModelUnavailable) {
			err = fmt.Errorf("%w: %w", err, api.ErrModelUnavailable)
		}
		s.logger.Error().Err(err).Str("serving", s.ModelVersion()).Msg("model reload failed, keeping current model")
		return err
	}

	prev := s.current.Swap(&held{model: m, loadedAt: time.Now()})
	if s.metrics != nil {
		s.metrics.Reloads.WithLabelValues("success").Inc()
		s.metrics.SetActiveModel(m.Version())
	}

	prevVersion := ""
	if prev != nil {
		prevVersion = prev.model.Version()
	}
	span.SetAttributes(otel.AttrModelVersion.String(m.Version()))
	s.logger.Info().Str("version", m.Version()).Str("previous", prevVersion).Msg("model loaded")
	return nil
}

// Health reports model readiness and data availability
func (s *Service) Health(ctx context.Context) (api.HealthResponse, error) {
	resp := api.HealthResponse{
		Status:       "ok",
		Model:        s.State().String(),
		ModelVersion: s.ModelVersion(),
		Data:         "ok",
	}

	var errs []error
	if s.State() != StateReady {
		errs = append(errs, fmt.Errorf("no model loaded: %w", api.ErrModelUnavailable))
	}
	if _, err := s.loadHistory(ctx); err != nil {
		resp.Data = "unavailable"
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		resp.Status = "unhealthy"
		resp.Detail = err.Error()
		return resp, err
	}
	return resp, nil
}
