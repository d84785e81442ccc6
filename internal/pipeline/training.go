package pipeline

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/SamMebarek/mlopstest/internal/config"
	"github.com/SamMebarek/mlopstest/internal/dataset"
	"github.com/SamMebarek/mlopstest/internal/eval"
	"github.com/SamMebarek/mlopstest/internal/features"
	"github.com/SamMebarek/mlopstest/internal/model"
	"github.com/SamMebarek/mlopstest/internal/registry"
)

// TrainingResult describes the trained and registered model
type TrainingResult struct {
	Version     string
	ModelPath   string
	DatasetHash string
	TrainRows   int
	TestRows    int
	R2          float64
	MAE         float64
	Activated   bool
	Duration    time.Duration
}

// RunTraining fits the gradient-boosted model on a seeded train split, scores
// it on the held-out split, saves the artifact and registers it.
func RunTraining(ctx context.Context, cfg config.Training, deps Deps) (TrainingResult, error) {
	logger := deps.stageLogger(StageTraining)
	start := time.Now()

	raw, err := os.ReadFile(cfg.ProcessedDataPath)
	if err != nil {
		return TrainingResult{}, fmt.Errorf("failed to read processed data: %w", err)
	}
	rows, err := dataset.ReadProcessedFile(cfg.ProcessedDataPath)
	if err != nil {
		return TrainingResult{}, err
	}
	x, y := dataset.XY(rows)
	if len(x) < 2 {
		return TrainingResult{}, fmt.Errorf("need at least 2 labelled rows, got %d", len(x))
	}

	trainIdx, testIdx := Split(len(x), cfg.TestSize, cfg.Model.Seed)
	xTrain, yTrain := pick(x, y, trainIdx)
	xTest, yTest := pick(x, y, testIdx)

	version := registry.NewVersion(deps.now())
	m, err := model.Fit(xTrain, yTrain, cfg.Model, version)
	if err != nil {
		return TrainingResult{}, fmt.Errorf("training failed: %w", err)
	}
	m.TrainedAt = deps.now().UTC()
	if err := ctx.Err(); err != nil {
		return TrainingResult{}, err
	}

	pred := make([]float64, len(xTest))
	for i, v := range xTest {
		if pred[i], err = m.Predict(v); err != nil {
			return TrainingResult{}, err
		}
	}
	res := TrainingResult{
		Version:     version,
		ModelPath:   cfg.ModelPath,
		DatasetHash: model.HashBytes(raw),
		TrainRows:   len(xTrain),
		TestRows:    len(xTest),
		R2:          eval.R2(pred, yTest),
		MAE:         eval.MAE(pred, yTest),
	}
	logger.Info().Str("version", version).Int("train_rows", res.TrainRows).Int("test_rows", res.TestRows).
		Float64("r2", res.R2).Float64("mae", res.MAE).Msg("model trained")

	if err := m.SaveFile(cfg.ModelPath); err != nil {
		return TrainingResult{}, err
	}
	logger.Info().Str("path", cfg.ModelPath).Msg("model saved")

	reg, err := registry.Open(cfg.RegistryDir, deps.Logger)
	if err != nil {
		return TrainingResult{}, err
	}
	params := cfg.Model
	scores := map[string]float64{"r2": finiteOrZero(res.R2), "mae": res.MAE}
	if _, err := reg.Register(m, registry.Card{DatasetHash: res.DatasetHash, Metrics: scores, Params: &params}); err != nil {
		return TrainingResult{}, err
	}
	if cfg.AutoActivate {
		if err := reg.Activate(version); err != nil {
			return TrainingResult{}, err
		}
		res.Activated = true
	}

	if deps.Sink != nil {
		if err := deps.Sink.Record(ctx, eval.NewRun(StageTraining, version, scores, deps.now())); err != nil {
			return TrainingResult{}, err
		}
	}

	res.Duration = time.Since(start)
	return res, nil
}

// Split shuffles 0..n-1 with seed and returns train and test indices. The
// test share is rounded up; both sides keep at least one row when n >= 2.
func Split(n int, testSize float64, seed int64) (train, test []int) {
	perm := rand.New(rand.NewSource(seed)).Perm(n)

	nTest := int(math.Ceil(float64(n) * testSize))
	if nTest < 1 {
		nTest = 1
	}
	if nTest > n-1 {
		nTest = n - 1
	}
	return perm[nTest:], perm[:nTest]
}

func pick(x []features.Vector, y []float64, idx []int) ([]features.Vector, []float64) {
	px := make([]features.Vector, len(idx))
	py := make([]float64, len(idx))
	for i, j := range idx {
		px[i], py[i] = x[j], y[j]
	}
	return px, py
}

// finiteOrZero keeps a single-row test split (R² undefined) storable as JSON
func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
