package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/SamMebarek/mlopstest/internal/dataset"
	"github.com/SamMebarek/mlopstest/internal/model"
)

// Ingestion is the resolved configuration of the ingestion stage
type Ingestion struct {
	// SourceURL is an http(s) URL or a local path
	SourceURL  string
	RawDataDir string
	OutputPath string
}

// Preprocessing is the resolved configuration of the preprocessing stage
type Preprocessing struct {
	RawDataPath   string
	ProcessedDir  string
	OutputPath    string
	ColumnsToKeep []string
	// Location is the wall clock the hour and month features are read in
	Location *time.Location
}

// Training is the resolved configuration of the training stage
type Training struct {
	ProcessedDataPath string
	ModelDir          string
	ModelPath         string
	TestSize          float64
	Model             model.Params
	RegistryDir       string
	AutoActivate      bool
}

// Evaluation is the resolved configuration of the evaluation stage
type Evaluation struct {
	ProcessedDataPath string
	ModelPath         string
	MetricsOutputPath string
	Sink              string
	Bootstrap         int
	Seed              int64
}

// Inference is the resolved configuration of the HTTP service
type Inference struct {
	Addr          string
	DataSource    string
	DataCSVPath   string
	Location      *time.Location
	GCS           GCS
	GCSLocalPath  string
	Postgres      Postgres
	ModelSource   string
	ModelPath     string
	RegistryDir   string
	CacheSize     int
	RateLimit     RateLimit
	AdminUser     string
	AdminPassword string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Location returns the time zone shared by preprocessing and the serving
// clock: inference.timezone, or the process local zone when unset.
func (c *Config) Location() (*time.Location, error) {
	tz := c.File.Inference.Timezone
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}

// Ingestion returns the ingestion stage config and creates its output directory
func (c *Config) Ingestion() (Ingestion, error) {
	f := c.File.Ingestion
	src := f.SourceURL
	if !isURL(src) {
		src = c.Path(src)
	}
	dir := c.Path(f.RawDataDir)
	if err := ensureDir(dir); err != nil {
		return Ingestion{}, err
	}
	return Ingestion{SourceURL: src, RawDataDir: dir, OutputPath: filepath.Join(dir, f.IngestedFileName)}, nil
}

// Preprocessing returns the preprocessing stage config and creates its output directory
func (c *Config) Preprocessing() (Preprocessing, error) {
	f := c.File.Preprocessing
	dir := c.Path(f.ProcessedDir)
	if err := ensureDir(dir); err != nil {
		return Preprocessing{}, err
	}

	loc, err := c.Location()
	if err != nil {
		return Preprocessing{}, err
	}

	cols := c.Params.Preprocessing.ColumnsToKeep
	if len(cols) == 0 {
		cols = dataset.DefaultProcessedColumns()
	}
	return Preprocessing{
		RawDataPath:   c.Path(f.RawDataPath),
		ProcessedDir:  dir,
		OutputPath:    filepath.Join(dir, f.CleanFileName),
		ColumnsToKeep: cols,
		Location:      loc,
	}, nil
}

// Training returns the training stage config and creates the model directory
func (c *Config) Training() (Training, error) {
	f := c.File.Training
	dir := c.Path(f.ModelDir)
	if err := ensureDir(dir); err != nil {
		return Training{}, err
	}
	return Training{
		ProcessedDataPath: c.Path(f.ProcessedDataPath),
		ModelDir:          dir,
		ModelPath:         filepath.Join(dir, f.ModelFileName),
		TestSize:          c.Params.Training.TestSize,
		Model:             c.Params.Training.Model,
		RegistryDir:       c.Path(c.File.Registry.Dir),
		AutoActivate:      c.File.Registry.AutoActivate,
	}, nil
}

// Evaluation returns the evaluation stage config and creates the metrics directory
func (c *Config) Evaluation() (Evaluation, error) {
	f := c.File.Evaluation
	out := c.Path(f.MetricsOutputPath)
	if err := ensureDir(filepath.Dir(out)); err != nil {
		return Evaluation{}, err
	}
	return Evaluation{
		ProcessedDataPath: c.Path(f.ProcessedDataPath),
		ModelPath:         c.Path(f.ModelPath),
		MetricsOutputPath: out,
		Sink:              f.Sink,
		Bootstrap:         c.Params.Evaluation.Bootstrap,
		Seed:              c.Params.Training.Model.Seed,
	}, nil
}

// Inference returns the service config. It fails when the admin
// credentials or the selected data/model source settings are missing.
func (c *Config) Inference() (Inference, error) {
	f := c.File.Inference
	if f.AdminUser == "" || f.AdminPassword == "" {
		return Inference{}, ErrMissingCredentials
	}

	loc, err := c.Location()
	if err != nil {
		return Inference{}, err
	}

	inf := Inference{
		Addr:          fmt.Sprintf("%s:%d", f.Host, f.Port),
		DataSource:    f.DataSource,
		DataCSVPath:   c.Path(f.DataCSVPath),
		Location:      loc,
		GCS:           f.GCS,
		Postgres:      f.Postgres,
		ModelSource:   f.ModelSource,
		ModelPath:     c.Path(f.ModelPath),
		RegistryDir:   c.Path(c.File.Registry.Dir),
		CacheSize:     c.File.Registry.CacheSize,
		RateLimit:     f.RateLimit,
		AdminUser:     f.AdminUser,
		AdminPassword: f.AdminPassword,
		ReadTimeout:   f.ReadTimeout,
		WriteTimeout:  f.WriteTimeout,
	}
	inf.GCS.CredentialsFile = c.Path(f.GCS.CredentialsFile)

	switch f.DataSource {
	case "csv":
		if f.DataCSVPath == "" {
			return Inference{}, fmt.Errorf("inference.data_csv_path is required for the csv data source")
		}
		if err := ensureDir(filepath.Dir(inf.DataCSVPath)); err != nil {
			return Inference{}, err
		}
	case "gcs":
		if f.GCS.Bucket == "" || f.GCS.Object == "" || f.DataCSVPath == "" {
			return Inference{}, fmt.Errorf("inference.gcs.bucket, inference.gcs.object and inference.data_csv_path are required for the gcs data source")
		}
		inf.GCSLocalPath = inf.DataCSVPath
	case "postgres":
		if f.Postgres.DSN == "" {
			return Inference{}, fmt.Errorf("POSTGRES_DSN or inference.postgres.dsn is required for the postgres data source")
		}
		if inf.Postgres.Table == "" {
			inf.Postgres.Table = "observations"
		}
	}

	if f.ModelSource == "file" && f.ModelPath == "" {
		return Inference{}, fmt.Errorf("inference.model_path is required for the file model source")
	}
	return inf, nil
}
