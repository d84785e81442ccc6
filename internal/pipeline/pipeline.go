package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/SamMebarek/mlopstest/internal/config"
	"github.com/SamMebarek/mlopstest/internal/eval"
	"github.com/rs/zerolog"
)

// Stage names, also used as the run stage in metric sinks
const (
	StageIngestion     = "ingestion"
	StagePreprocessing = "preprocessing"
	StageTraining      = "training"
	StageEvaluation    = "evaluation"
)

// Deps are the collaborators shared by every stage
type Deps struct {
	Logger     zerolog.Logger
	HTTPClient *http.Client
	// Sink receives training and evaluation scores in addition to the
	// evaluation JSON file. Optional.
	Sink eval.Sink
	Now  func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) stageLogger(stage string) zerolog.Logger {
	return d.Logger.With().Str("component", "pipeline").Str("stage", stage).Logger()
}

// RunAll runs ingestion, preprocessing, training and evaluation in order
func RunAll(ctx context.Context, cfg *config.Config, deps Deps) error {
	ing, err := cfg.Ingestion()
	if err != nil {
		return err
	}
	if _, err := RunIngestion(ctx, ing, deps); err != nil {
		return fmt.Errorf("%s: %w", StageIngestion, err)
	}

	pre, err := cfg.Preprocessing()
	if err != nil {
		return err
	}
	if _, err := RunPreprocessing(ctx, pre, deps); err != nil {
		return fmt.Errorf("%s: %w", StagePreprocessing, err)
	}

	tr, err := cfg.Training()
	if err != nil {
		return err
	}
	if _, err := RunTraining(ctx, tr, deps); err != nil {
		return fmt.Errorf("%s: %w", StageTraining, err)
	}

	ev, err := cfg.Evaluation()
	if err != nil {
		return err
	}
	if _, err := RunEvaluation(ctx, ev, deps); err != nil {
		return fmt.Errorf("%s: %w", StageEvaluation, err)
	}
	return nil
}
