package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/SamMebarek/mlopstest/internal/api"
	"github.com/SamMebarek/mlopstest/internal/dataset"
	"github.com/SamMebarek/mlopstest/internal/features"
	"github.com/rs/zerolog"
)

// CSVSource reads observations from a local CSV file on every Load
type CSVSource struct {
	path     string
	location *time.Location
	logger   zerolog.Logger
}

// NewCSVSource creates a source for path. Zone-less timestamps are read in loc
// (time.Local when nil).
func NewCSVSource(path string, loc *time.Location, logger zerolog.Logger) *CSVSource {
	return &CSVSource{
		path:     path,
		location: loc,
		logger:   logger.With().Str("component", "csv_source").Logger(),
	}
}

// Load implements inference.DataSource
func (s *CSVSource) Load(ctx context.Context) (features.History, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", err, api.ErrDataUnavailable)
	}

	h, err := readHistory(s.path, s.location)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("path", s.path).Int("rows", len(h)).Msg("loaded observations")
	return h, nil
}

func readHistory(path string, loc *time.Location) (features.History, error) {
	t, err := dataset.ReadTableFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w: %w", path, err, api.ErrDataUnavailable)
	}
	h, _, err := dataset.ParseObservations(t, dataset.ParseOptions{Location: loc})
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w: %w", path, err, api.ErrDataUnavailable)
	}
	return h, nil
}
