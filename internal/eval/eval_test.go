package eval

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScores(t *testing.T) {
	actual := []float64{1, 2, 3, 4}
	pred := []float64{1, 2, 3, 5}

	assert.InDelta(t, 0.25, MAE(pred, actual), 1e-12)
	assert.InDelta(t, 0.5, RMSE(pred, actual), 1e-12)
	// SSres = 1, SStot = 5
	assert.InDelta(t, 0.8, R2(pred, actual), 1e-12)
	assert.InDelta(t, 1.0, R2(actual, actual), 1e-12)
}

func TestComputer(t *testing.T) {
	actual := make([]float64, 50)
	pred := make([]float64, 50)
	for i := range actual {
		actual[i] = float64(i)
		pred[i] = float64(i) + float64(i%3-1)*0.5
	}

	r, err := NewComputer(200, 7).Compute(pred, actual)
	require.NoError(t, err)
	assert.Equal(t, 50, r.NumSamples)
	assert.Greater(t, r.R2, 0.99)
	assert.LessOrEqual(t, r.R2CI[0], r.R2CI[1])
	assert.LessOrEqual(t, r.MAECI[0], r.MAE+1e-9)
	assert.GreaterOrEqual(t, r.MAECI[1], r.MAE-1e-9)

	m := r.Map()
	assert.Contains(t, m, "r2_ci_low")

	plain, err := NewComputer(0, 0).Compute(pred, actual)
	require.NoError(t, err)
	assert.NotContains(t, plain.Map(), "r2_ci_low")

	_, err = NewComputer(0, 0).Compute([]float64{1}, []float64{1, 2})
	assert.ErrorContains(t, err, "mismatch")
	_, err = NewComputer(0, 0).Compute([]float64{1}, []float64{1})
	assert.Error(t, err)
}

func TestJSONSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics", "eval.json")
	run := NewRun("evaluation", "v1", map[string]float64{"r2": 0.9}, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC))

	require.NoError(t, NewJSONSink(path).Record(context.Background(), run))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got Run
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, 0.9, got.Metrics["r2"])
}

type fakeRedis struct {
	hashes map[string]map[string]interface{}
	zsets  map[string][]*redis.Z
	err    error
}

func (f *fakeRedis) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	h := map[string]interface{}{}
	for i := 0; i+1 < len(values); i += 2 {
		h[values[i].(string)] = values[i+1]
	}
	f.hashes[key] = h
	cmd.SetVal(int64(len(h)))
	return cmd
}

func (f *fakeRedis) ZAdd(ctx context.Context, key string, members ...*redis.Z) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	f.zsets[key] = append(f.zsets[key], members...)
	cmd.SetVal(int64(len(members)))
	return cmd
}

func TestRedisSink(t *testing.T) {
	fake := &fakeRedis{hashes: map[string]map[string]interface{}{}, zsets: map[string][]*redis.Z{}}
	run := NewRun("training", "v2", map[string]float64{"r2": 0.8}, time.Unix(1700000000, 0))

	require.NoError(t, NewRedisSink(fake, "").Record(context.Background(), run))

	h := fake.hashes["pricing:run:"+run.ID]
	require.NotNil(t, h)
	assert.Equal(t, "training", h["stage"])
	assert.Equal(t, 0.8, h["r2"])
	require.Len(t, fake.zsets["pricing:runs"], 1)
	assert.Equal(t, float64(1700000000), fake.zsets["pricing:runs"][0].Score)
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	failing := &fakeRedis{err: errors.New("down"), hashes: map[string]map[string]interface{}{}, zsets: map[string][]*redis.Z{}}
	path := filepath.Join(t.TempDir(), "m.json")
	sink := NewMultiSink(zerolog.Nop(), NewJSONSink(path), NewRedisSink(failing, "p"))

	err := sink.Record(context.Background(), NewRun("evaluation", "v1", map[string]float64{"mae": 1}, time.Now()))
	assert.ErrorContains(t, err, "HSET")
	assert.FileExists(t, path, "the JSON sink still ran")
}
