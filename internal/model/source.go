package model

import (
	"context"
	"fmt"

	"github.com/SamMebarek/mlopstest/internal/api"
	"github.com/rs/zerolog"
)

// FileSource loads a model artifact from a local path on every call
type FileSource struct {
	path   string
	logger zerolog.Logger
}

// NewFileSource creates a local-artifact model source
func NewFileSource(path string, logger zerolog.Logger) *FileSource {
	return &FileSource{
		path:   path,
		logger: logger.With().Str("component", "model_file_source").Logger(),
	}
}

// Load implements Source
func (s *FileSource) Load(ctx context.Context) (Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m, err := LoadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("load model from %s: %w: %w", s.path, err, api.ErrModelUnavailable)
	}

	s.logger.Info().Str("path", s.path).Str("version", m.Version()).Int("trees", len(m.Trees)).Msg("model loaded")
	return m, nil
}
