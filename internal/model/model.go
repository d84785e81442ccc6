package model

import (
	"context"

	"github.com/SamMebarek/mlopstest/internal/features"
)

// Model scores one positional feature vector
type Model interface {
	Predict(v features.Vector) (float64, error)
	Version() string
}

// Source resolves a model instance (local artifact, registry, ...)
type Source interface {
	Load(ctx context.Context) (Model, error)
}
