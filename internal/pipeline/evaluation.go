package pipeline

import (
	"context"
	"fmt"

	"github.com/SamMebarek/mlopstest/internal/config"
	"github.com/SamMebarek/mlopstest/internal/dataset"
	"github.com/SamMebarek/mlopstest/internal/eval"
	"github.com/SamMebarek/mlopstest/internal/model"
)

// RunEvaluation scores the saved model on the processed dataset and writes
// the scores to the metrics file and the optional sink.
func RunEvaluation(ctx context.Context, cfg config.Evaluation, deps Deps) (eval.Regression, error) {
	logger := deps.stageLogger(StageEvaluation)

	rows, err := dataset.ReadProcessedFile(cfg.ProcessedDataPath)
	if err != nil {
		return eval.Regression{}, err
	}
	m, err := model.LoadFile(cfg.ModelPath)
	if err != nil {
		return eval.Regression{}, err
	}

	x, y := dataset.XY(rows)
	pred := make([]float64, len(x))
	for i, v := range x {
		if pred[i], err = m.Predict(v); err != nil {
			return eval.Regression{}, err
		}
	}

	scores, err := eval.NewComputer(cfg.Bootstrap, cfg.Seed).Compute(pred, y)
	if err != nil {
		return eval.Regression{}, fmt.Errorf("failed to score model: %w", err)
	}
	logger.Info().Str("version", m.Version()).Int("rows", scores.NumSamples).
		Float64("r2", scores.R2).Float64("mae", scores.MAE).Msg("computed metrics")

	values := scores.Map()
	for k, v := range values {
		values[k] = finiteOrZero(v)
	}
	run := eval.NewRun(StageEvaluation, m.Version(), values, deps.now())
	if err := eval.NewJSONSink(cfg.MetricsOutputPath).Record(ctx, run); err != nil {
		return eval.Regression{}, err
	}
	logger.Info().Str("path", cfg.MetricsOutputPath).Msg("metrics saved")

	if deps.Sink != nil {
		if err := deps.Sink.Record(ctx, run); err != nil {
			return eval.Regression{}, err
		}
	}
	return scores, nil
}
