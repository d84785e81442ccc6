package pipeline

import (
	"context"
	"fmt"

	"github.com/SamMebarek/mlopstest/internal/config"
	"github.com/SamMebarek/mlopstest/internal/dataset"
)

// PreprocessingResult summarises the cleaned dataset
type PreprocessingResult struct {
	Path    string
	Rows    int
	Dropped int
}

// RunPreprocessing converts the raw CSV into the processed training table:
// typed columns, per-row temporal features from each row's own timestamp,
// and only the configured columns.
func RunPreprocessing(ctx context.Context, cfg config.Preprocessing, deps Deps) (PreprocessingResult, error) {
	logger := deps.stageLogger(StagePreprocessing)

	if err := dataset.ValidateColumns(cfg.ColumnsToKeep); err != nil {
		return PreprocessingResult{}, err
	}

	t, err := dataset.ReadTableFile(cfg.RawDataPath)
	if err != nil {
		return PreprocessingResult{}, fmt.Errorf("failed to read raw data %s: %w", cfg.RawDataPath, err)
	}
	logger.Info().Str("path", cfg.RawDataPath).Int("rows", len(t.Records)).Int("columns", len(t.Header)).Msg("loaded raw data")

	history, stats, err := dataset.ParseObservations(t, dataset.ParseOptions{DropBadTimestamps: true, Location: cfg.Location})
	if err != nil {
		return PreprocessingResult{}, fmt.Errorf("failed to convert types: %w", err)
	}
	if stats.DroppedBadTimestamp > 0 {
		logger.Warn().Int("dropped", stats.DroppedBadTimestamp).Msg("dropped rows with unparseable timestamps")
	}
	if err := ctx.Err(); err != nil {
		return PreprocessingResult{}, err
	}

	rows := make([]dataset.Row, len(history))
	for i, o := range history {
		if cfg.Location != nil {
			o.Timestamp = o.Timestamp.In(cfg.Location)
		}
		rows[i] = dataset.RowFromObservation(o)
	}

	if err := dataset.WriteProcessedFile(cfg.OutputPath, rows, cfg.ColumnsToKeep); err != nil {
		return PreprocessingResult{}, fmt.Errorf("failed to write processed data: %w", err)
	}

	res := PreprocessingResult{Path: cfg.OutputPath, Rows: len(rows), Dropped: stats.DroppedBadTimestamp}
	logger.Info().Str("path", res.Path).Int("rows", res.Rows).Strs("columns", cfg.ColumnsToKeep).Msg("saved cleaned data")
	return res, nil
}
