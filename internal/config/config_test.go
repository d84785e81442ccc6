package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/SamMebarek/mlopstest/internal/dataset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
data_ingestion:
  source_url: seed/data.csv
  raw_data_dir: data/raw
  ingested_file_name: ingested.csv
data_preprocessing:
  raw_data_path: data/raw/ingested.csv
  processed_dir: data/processed
  clean_file_name: clean.csv
training:
  processed_data_path: data/processed/clean.csv
  model_dir: models
  model_file_name: model.json
evaluation:
  processed_data_path: data/processed/clean.csv
  model_path: models/model.json
  metrics_output_path: metrics/eval.json
registry:
  dir: models/registry
inference:
  port: 9090
  data_csv_path: data/raw/ingested.csv
  read_timeout: 3s
`

const testParams = `
training:
  test_size: 0.25
  random_seed: 7
  n_estimators: 50
  learning_rate: 0.05
  max_depth: 3
  min_samples_leaf: 1
  subsample: 1.0
`

func writeProject(t *testing.T, cfg, params string) (string, string) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "config")
	require.NoError(t, os.MkdirAll(dir, 0755))
	c := filepath.Join(dir, "config.yaml")
	p := filepath.Join(dir, "params.yaml")
	require.NoError(t, os.WriteFile(c, []byte(cfg), 0644))
	require.NoError(t, os.WriteFile(p, []byte(params), 0644))
	return c, p
}

func TestLoad_ResolvesAgainstProjectRoot(t *testing.T) {
	c, p := writeProject(t, testConfig, testParams)
	cfg, err := Load(c, p)
	require.NoError(t, err)

	root := filepath.Dir(filepath.Dir(c))
	assert.Equal(t, root, cfg.Root)

	ing, err := cfg.Ingestion()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "seed", "data.csv"), ing.SourceURL)
	assert.Equal(t, filepath.Join(root, "data", "raw", "ingested.csv"), ing.OutputPath)
	assert.DirExists(t, ing.RawDataDir)

	pre, err := cfg.Preprocessing()
	require.NoError(t, err)
	assert.Equal(t, dataset.DefaultProcessedColumns(), pre.ColumnsToKeep)
	assert.DirExists(t, pre.ProcessedDir)

	tr, err := cfg.Training()
	require.NoError(t, err)
	assert.Equal(t, 0.25, tr.TestSize)
	assert.Equal(t, int64(7), tr.Model.Seed)
	assert.Equal(t, 50, tr.Model.NEstimators)
	assert.Equal(t, filepath.Join(root, "models", "registry"), tr.RegistryDir)

	ev, err := cfg.Evaluation()
	require.NoError(t, err)
	assert.Equal(t, "json", ev.Sink)
	assert.DirExists(t, filepath.Dir(ev.MetricsOutputPath))
}

func TestLoad_KeepsURLSources(t *testing.T) {
	c, p := writeProject(t, testConfig, testParams)
	cfg, err := Load(c, p)
	require.NoError(t, err)

	cfg.File.Ingestion.SourceURL = "https://example.com/data.csv"
	ing, err := cfg.Ingestion()
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/data.csv", ing.SourceURL)
}

func TestInference_RequiresCredentials(t *testing.T) {
	t.Setenv("ADMIN_USER", "")
	t.Setenv("ADMIN_PASSWORD", "")
	c, p := writeProject(t, testConfig, testParams)
	cfg, err := Load(c, p)
	require.NoError(t, err)

	_, err = cfg.Inference()
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestInference_EnvOverrides(t *testing.T) {
	t.Setenv("ADMIN_USER", "admin")
	t.Setenv("ADMIN_PASSWORD", "secret")
	t.Setenv("PORT", "7000")
	t.Setenv("LOG_LEVEL", "debug")
	c, p := writeProject(t, testConfig, testParams)

	cfg, err := Load(c, p)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.File.Logging.Level)

	inf, err := cfg.Inference()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:7000", inf.Addr)
	assert.Equal(t, "admin", inf.AdminUser)
	assert.Equal(t, "csv", inf.DataSource)
	assert.Equal(t, "registry", inf.ModelSource)
	assert.Equal(t, 3e9, float64(inf.ReadTimeout))
}

func TestInference_PostgresNeedsDSN(t *testing.T) {
	t.Setenv("ADMIN_USER", "admin")
	t.Setenv("ADMIN_PASSWORD", "secret")
	t.Setenv("DATA_SOURCE", "postgres")
	t.Setenv("POSTGRES_DSN", "")
	c, p := writeProject(t, testConfig, testParams)

	cfg, err := Load(c, p)
	require.NoError(t, err)
	_, err = cfg.Inference()
	assert.ErrorContains(t, err, "POSTGRES_DSN")

	t.Setenv("POSTGRES_DSN", "postgres://localhost/pricing")
	cfg, err = Load(c, p)
	require.NoError(t, err)
	inf, err := cfg.Inference()
	require.NoError(t, err)
	assert.Equal(t, "observations", inf.Postgres.Table)
}

func TestLoad_Invalid(t *testing.T) {
	c, p := writeProject(t, testConfig, "training:\n  test_size: 1.5\n")
	_, err := Load(c, p)
	assert.ErrorContains(t, err, "invalid params")

	c, p = writeProject(t, "data_ingestion: [", testParams)
	_, err = Load(c, p)
	assert.ErrorContains(t, err, "failed to parse")

	t.Setenv("DATA_SOURCE", "s3")
	c, p = writeProject(t, testConfig, testParams)
	_, err = Load(c, p)
	assert.ErrorContains(t, err, "invalid config")

	_, err = Load(filepath.Join(t.TempDir(), "nope.yaml"), p)
	assert.Error(t, err)
}

func TestLoad_RejectsNonNumericPort(t *testing.T) {
	t.Setenv("PORT", "eighty")
	c, p := writeProject(t, testConfig, testParams)

	_, err := Load(c, p)
	assert.ErrorContains(t, err, "invalid PORT")
}

func TestLocation_SharedByPreprocessingAndInference(t *testing.T) {
	t.Setenv("ADMIN_USER", "admin")
	t.Setenv("ADMIN_PASSWORD", "secret")
	c, p := writeProject(t, testConfig+"  timezone: Europe/Paris\n", testParams)

	cfg, err := Load(c, p)
	require.NoError(t, err)

	pre, err := cfg.Preprocessing()
	require.NoError(t, err)
	inf, err := cfg.Inference()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Paris", pre.Location.String())
	assert.Equal(t, pre.Location, inf.Location)

	c, p = writeProject(t, testConfig+"  timezone: Mars/Olympus\n", testParams)
	cfg, err = Load(c, p)
	require.NoError(t, err)
	_, err = cfg.Preprocessing()
	assert.ErrorContains(t, err, "invalid timezone")
}

func TestLocation_DefaultsToLocal(t *testing.T) {
	c, p := writeProject(t, testConfig, testParams)
	cfg, err := Load(c, p)
	require.NoError(t, err)

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)
}
