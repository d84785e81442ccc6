package eval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Run is one recorded set of scores
type Run struct {
	ID           string             `json:"run_id"`
	Stage        string             `json:"stage"`
	ModelVersion string             `json:"model_version,omitempty"`
	RecordedAt   time.Time          `json:"recorded_at"`
	Metrics      map[string]float64 `json:"metrics"`
}

// NewRun stamps metrics with a fresh run id
func NewRun(stage, modelVersion string, metrics map[string]float64, at time.Time) Run {
	return Run{
		ID:           uuid.NewString(),
		Stage:        stage,
		ModelVersion: modelVersion,
		RecordedAt:   at.UTC(),
		Metrics:      metrics,
	}
}

// Sink persists runs
type Sink interface {
	Record(ctx context.Context, run Run) error
}

// JSONSink writes each run to a file, replacing the previous content
type JSONSink struct {
	path string
}

// NewJSONSink creates a sink writing to path
func NewJSONSink(path string) *JSONSink {
	return &JSONSink{path: path}
}

// Record implements Sink
func (s *JSONSink) Record(ctx context.Context, run Run) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metrics: %w", err)
	}
	if err := os.WriteFile(s.path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// redisWriter is the subset of *redis.Client used by RedisSink
type redisWriter interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	ZAdd(ctx context.Context, key string, members ...*redis.Z) *redis.IntCmd
}

// RedisSink stores each run as a hash at <prefix>:run:<id> and indexes run
// ids by time in the sorted set <prefix>:runs.
type RedisSink struct {
	client redisWriter
	prefix string
}

// NewRedisSink creates a sink on an existing client
func NewRedisSink(client redisWriter, prefix string) *RedisSink {
	if prefix == "" {
		prefix = "pricing"
	}
	return &RedisSink{client: client, prefix: prefix}
}

// DialRedis connects and pings, like the service does at startup
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return client, nil
}

// Record implements Sink
func (s *RedisSink) Record(ctx context.Context, run Run) error {
	fields := []interface{}{
		"stage", run.Stage,
		"model_version", run.ModelVersion,
		"recorded_at", run.RecordedAt.Format(time.RFC3339),
	}
	for k, v := range run.Metrics {
		fields = append(fields, k, v)
	}

	key := fmt.Sprintf("%s:run:%s", s.prefix, run.ID)
	if err := s.client.HSet(ctx, key, fields...).Err(); err != nil {
		return fmt.Errorf("redis HSET failed: %w", err)
	}
	z := &redis.Z{Score: float64(run.RecordedAt.Unix()), Member: run.ID}
	if err := s.client.ZAdd(ctx, s.prefix+":runs", z).Err(); err != nil {
		return fmt.Errorf("redis ZADD failed: %w", err)
	}
	return nil
}

// MultiSink fans a run out to several sinks and joins their errors
type MultiSink struct {
	sinks  []Sink
	logger zerolog.Logger
}

// NewMultiSink combines sinks
func NewMultiSink(logger zerolog.Logger, sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks, logger: logger.With().Str("component", "metrics_sink").Logger()}
}

// Record implements Sink
func (m *MultiSink) Record(ctx context.Context, run Run) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Record(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	m.logger.Info().Str("run_id", run.ID).Str("stage", run.Stage).Interface("metrics", run.Metrics).Msg("recorded metrics")
	return nil
}
