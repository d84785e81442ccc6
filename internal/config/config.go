package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/SamMebarek/mlopstest/internal/model"
	"github.com/SamMebarek/mlopstest/pkg/otel"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingCredentials is returned by Inference when no admin login is configured
var ErrMissingCredentials = errors.New("ADMIN_USER and ADMIN_PASSWORD must be set")

// File mirrors config/config.yaml
type File struct {
	Logging       Logging           `yaml:"logging"`
	Ingestion     IngestionFile     `yaml:"data_ingestion"`
	Preprocessing PreprocessingFile `yaml:"data_preprocessing"`
	Training      TrainingFile      `yaml:"training"`
	Evaluation    EvaluationFile    `yaml:"evaluation"`
	Registry      RegistryFile      `yaml:"registry"`
	Inference     InferenceFile     `yaml:"inference"`
	Redis         Redis             `yaml:"redis"`
	Tracing       otel.Config       `yaml:"tracing"`
}

type Logging struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=console json"`
}

type IngestionFile struct {
	SourceURL        string `yaml:"source_url" validate:"required"`
	RawDataDir       string `yaml:"raw_data_dir" validate:"required"`
	IngestedFileName string `yaml:"ingested_file_name" validate:"required"`
}

type PreprocessingFile struct {
	RawDataPath   string `yaml:"raw_data_path" validate:"required"`
	ProcessedDir  string `yaml:"processed_dir" validate:"required"`
	CleanFileName string `yaml:"clean_file_name" validate:"required"`
}

type TrainingFile struct {
	ProcessedDataPath string `yaml:"processed_data_path" validate:"required"`
	ModelDir          string `yaml:"model_dir" validate:"required"`
	ModelFileName     string `yaml:"model_file_name" validate:"required"`
}

type EvaluationFile struct {
	ProcessedDataPath string `yaml:"processed_data_path" validate:"required"`
	ModelPath         string `yaml:"model_path" validate:"required"`
	MetricsOutputPath string `yaml:"metrics_output_path" validate:"required"`
	Sink              string `yaml:"sink" validate:"omitempty,oneof=json redis"`
}

type RegistryFile struct {
	Dir          string `yaml:"dir" validate:"required"`
	AutoActivate bool   `yaml:"auto_activate"`
	CacheSize    int    `yaml:"cache_size" validate:"gte=0"`
}

type InferenceFile struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port" validate:"min=1,max=65535"`
	DataSource    string        `yaml:"data_source" validate:"oneof=csv gcs postgres"`
	DataCSVPath   string        `yaml:"data_csv_path"`
	Timezone      string        `yaml:"timezone"`
	GCS           GCS           `yaml:"gcs"`
	Postgres      Postgres      `yaml:"postgres"`
	ModelSource   string        `yaml:"model_source" validate:"oneof=file registry"`
	ModelPath     string        `yaml:"model_path"`
	RateLimit     RateLimit     `yaml:"rate_limit"`
	AdminUser     string        `yaml:"admin_user"`
	AdminPassword string        `yaml:"admin_password"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
}

type GCS struct {
	Bucket          string `yaml:"bucket"`
	Object          string `yaml:"object"`
	Generation      int64  `yaml:"generation"`
	CredentialsFile string `yaml:"credentials_file"`
}

type Postgres struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

type RateLimit struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int     `yaml:"burst" validate:"gte=0"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0,lte=15"`
	Prefix   string `yaml:"prefix"`
}

// Params mirrors config/params.yaml
type Params struct {
	Preprocessing struct {
		ColumnsToKeep []string `yaml:"columns_to_keep"`
	} `yaml:"preprocessing"`
	Training struct {
		TestSize float64      `yaml:"test_size" validate:"gt=0,lt=1"`
		Model    model.Params `yaml:",inline"`
	} `yaml:"training"`
	Evaluation struct {
		Bootstrap int `yaml:"bootstrap" validate:"gte=0"`
	} `yaml:"evaluation"`
}

// Config is the loaded, validated configuration. Paths are absolute.
type Config struct {
	Root   string
	File   File
	Params Params
}

// Load reads configPath and paramsPath, applies .env and environment
// overrides, and validates the result. The project root is the parent of
// the directory holding configPath.
func Load(configPath, paramsPath string) (*Config, error) {
	// A missing .env is fine; real deployments use the environment.
	_ = godotenv.Load()

	abs, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	cfg := &Config{Root: filepath.Dir(filepath.Dir(abs)), File: defaultFile(), Params: defaultParams()}
	if err := readYAML(abs, &cfg.File); err != nil {
		return nil, err
	}
	if err := readYAML(paramsPath, &cfg.Params); err != nil {
		return nil, err
	}
	if err := applyEnv(&cfg.File); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg.File); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	if err := validator.New().Struct(cfg.Params); err != nil {
		return nil, fmt.Errorf("invalid params %s: %w", paramsPath, err)
	}
	return cfg, nil
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func defaultFile() File {
	tracing := otel.DefaultConfig("pricing-inference")
	return File{
		Logging:    Logging{Level: "info", Format: "console"},
		Evaluation: EvaluationFile{Sink: "json"},
		Registry:   RegistryFile{Dir: "models/registry", CacheSize: 8},
		Inference: InferenceFile{
			Host:         "0.0.0.0",
			Port:         8080,
			DataSource:   "csv",
			ModelSource:  "registry",
			RateLimit:    RateLimit{RequestsPerSecond: 100, Burst: 200},
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Redis:   Redis{Addr: "localhost:6379", Prefix: "pricing"},
		Tracing: *tracing,
	}
}

func defaultParams() Params {
	var p Params
	p.Training.TestSize = 0.2
	p.Training.Model = model.DefaultParams()
	return p
}

func applyEnv(f *File) error {
	f.Logging.Level = getEnv("LOG_LEVEL", f.Logging.Level)
	f.Inference.AdminUser = getEnv("ADMIN_USER", f.Inference.AdminUser)
	f.Inference.AdminPassword = getEnv("ADMIN_PASSWORD", f.Inference.AdminPassword)
	f.Inference.DataSource = getEnv("DATA_SOURCE", f.Inference.DataSource)
	f.Inference.Postgres.DSN = getEnv("POSTGRES_DSN", f.Inference.Postgres.DSN)
	f.Redis.Addr = getEnv("REDIS_ADDR", f.Redis.Addr)
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		f.Inference.Port = port
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		f.Tracing.Enabled = true
		f.Tracing.CollectorEndpoint = strings.TrimPrefix(strings.TrimPrefix(v, "http://"), "https://")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Path resolves p against the project root
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}
