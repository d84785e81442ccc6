package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/SamMebarek/mlopstest/internal/api"
	"github.com/SamMebarek/mlopstest/internal/cache"
	"github.com/SamMebarek/mlopstest/internal/model"
	"github.com/rs/zerolog"
)

// DefaultCacheSize bounds the number of decoded artifacts kept in memory
const DefaultCacheSize = 8

// Source resolves the model to serve from a Registry: the active version,
// or the most recently registered one when nothing is active.
type Source struct {
	reg    *Registry
	models *cache.LRU[string, *model.GBDT]
	logger zerolog.Logger
}

// NewSource wraps reg as a model source
func NewSource(reg *Registry, cacheSize int, logger zerolog.Logger) (*Source, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	models, err := cache.New[string, *model.GBDT](cacheSize, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to create model cache: %w", err)
	}
	return &Source{
		reg:    reg,
		models: models,
		logger: logger.With().Str("component", "registry_source").Logger(),
	}, nil
}

// Load implements model.Source. When the active version is missing or its
// artifact cannot be loaded, the newest loadable non-deprecated version is
// served instead.
func (s *Source) Load(ctx context.Context) (model.Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.reg.Refresh(); err != nil {
		return nil, fmt.Errorf("%w: %w", err, api.ErrModelUnavailable)
	}

	failed := ""
	active, err := s.reg.GetActive()
	if err == nil {
		m, lerr := s.load(active)
		if lerr == nil {
			s.logger.Info().Str("version", active.Version).Str("status", string(active.Status)).Msg("resolved model")
			return m, nil
		}
		err = lerr
		failed = active.Version
	}

	var errs []error
	for _, e := range s.reg.List() {
		if e.Status == StatusDeprecated || e.Version == failed {
			continue
		}
		m, lerr := s.load(e)
		if lerr != nil {
			errs = append(errs, lerr)
			continue
		}
		s.logger.Warn().Err(err).Str("active_version", failed).Str("fallback_version", e.Version).
			Msg("active model unavailable, serving latest registered version")
		return m, nil
	}

	if len(errs) == 0 && failed == "" {
		return nil, fmt.Errorf("no registered models: %w: %w", ErrNotFound, api.ErrModelUnavailable)
	}
	return nil, fmt.Errorf("%w: %w", errors.Join(append([]error{err}, errs...)...), api.ErrModelUnavailable)
}

func (s *Source) load(e *Entry) (*model.GBDT, error) {
	return s.models.GetOrLoad(e.BinaryHash, func() (*model.GBDT, error) {
		return s.reg.LoadModel(e.Version)
	})
}

// CacheStats exposes decoded-model cache counters
func (s *Source) CacheStats() cache.Stats {
	return s.models.Stats()
}
