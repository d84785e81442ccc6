package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/SamMebarek/mlopstest/internal/api"
	"github.com/SamMebarek/mlopstest/internal/features"
	"github.com/SamMebarek/mlopstest/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	clock := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return r
}

func registerTestModel(t *testing.T, r *Registry, version string, base float64) *Entry {
	t.Helper()
	m := &model.GBDT{ModelVersion: version, FeatureNames: features.Columns(), BaseScore: base}
	e, err := r.Register(m, Card{Metrics: map[string]float64{"r2": 0.9}})
	require.NoError(t, err)
	return e
}

func TestRegister(t *testing.T) {
	r := newTestRegistry(t)
	e := registerTestModel(t, r, "v1", 10)

	assert.Equal(t, StatusRegistered, e.Status)
	assert.Len(t, e.BinaryHash, 64)
	assert.FileExists(t, filepath.Join(r.Dir(), e.BinaryPath))

	m := &model.GBDT{ModelVersion: "v1", FeatureNames: features.Columns()}
	_, err := r.Register(m, Card{})
	assert.ErrorContains(t, err, "already registered")

	_, err = r.Register(&model.GBDT{FeatureNames: features.Columns()}, Card{})
	assert.ErrorContains(t, err, "no version")
}

func TestRegister_RemovesBinaryWhenIndexSaveFails(t *testing.T) {
	r := newTestRegistry(t)
	// A non-empty directory at the index path makes the final rename fail.
	require.NoError(t, os.MkdirAll(filepath.Join(r.Dir(), indexFile, "blocker"), 0755))

	m := &model.GBDT{ModelVersion: "v1", FeatureNames: features.Columns()}
	_, err := r.Register(m, Card{})
	require.Error(t, err)

	binaries, err := os.ReadDir(filepath.Join(r.Dir(), binaryDir))
	require.NoError(t, err)
	assert.Empty(t, binaries)
	_, err = r.Get("v1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestActivateTracksPrevious(t *testing.T) {
	r := newTestRegistry(t)
	registerTestModel(t, r, "v1", 1)
	registerTestModel(t, r, "v2", 2)

	assert.Nil(t, r.GetPrevious())
	_, err := r.GetActive()
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, r.Activate("v1"))
	assert.Nil(t, r.GetPrevious())

	require.NoError(t, r.Activate("v2"))
	active, err := r.GetActive()
	require.NoError(t, err)
	assert.Equal(t, "v2", active.Version)
	assert.Equal(t, StatusActive, active.Status)

	prev := r.GetPrevious()
	require.NotNil(t, prev)
	assert.Equal(t, "v1", prev.Version)
	assert.Equal(t, StatusShadow, prev.Status)

	assert.ErrorIs(t, r.Activate("nope"), ErrNotFound)
}

func TestDeprecate(t *testing.T) {
	r := newTestRegistry(t)
	registerTestModel(t, r, "v1", 1)
	registerTestModel(t, r, "v2", 2)
	require.NoError(t, r.Activate("v1"))

	assert.ErrorContains(t, r.Deprecate("v1"), "active")
	require.NoError(t, r.Deprecate("v2"))
	assert.Error(t, r.Activate("v2"))

	latest, err := r.Latest()
	require.NoError(t, err)
	assert.Equal(t, "v1", latest.Version)
}

func TestListNewestFirst(t *testing.T) {
	r := newTestRegistry(t)
	registerTestModel(t, r, "a", 1)
	registerTestModel(t, r, "b", 2)
	registerTestModel(t, r, "c", 3)

	var versions []string
	for _, e := range r.List() {
		versions = append(versions, e.Version)
	}
	assert.Equal(t, []string{"c", "b", "a"}, versions)
}

func TestIndexSurvivesReopen(t *testing.T) {
	r := newTestRegistry(t)
	registerTestModel(t, r, "v1", 1)
	require.NoError(t, r.Activate("v1"))

	reopened, err := Open(r.Dir(), zerolog.Nop())
	require.NoError(t, err)
	active, err := reopened.GetActive()
	require.NoError(t, err)
	assert.Equal(t, "v1", active.Version)
}

func TestVerifyIntegrity(t *testing.T) {
	r := newTestRegistry(t)
	e := registerTestModel(t, r, "v1", 1)
	require.NoError(t, r.VerifyIntegrity("v1"))

	path := filepath.Join(r.Dir(), e.BinaryPath)
	require.NoError(t, os.Chmod(path, 0644))
	require.NoError(t, os.WriteFile(path, []byte(`{"tampered":true}`), 0644))

	assert.ErrorContains(t, r.VerifyIntegrity("v1"), "hash mismatch")
	_, err := r.LoadModel("v1")
	assert.Error(t, err)
}

func TestSource_ActiveThenLatestFallback(t *testing.T) {
	r := newTestRegistry(t)
	src, err := NewSource(r, 2, zerolog.Nop())
	require.NoError(t, err)

	_, err = src.Load(context.Background())
	assert.ErrorIs(t, err, api.ErrModelUnavailable)

	registerTestModel(t, r, "v1", 1)
	registerTestModel(t, r, "v2", 2)

	m, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v2", m.Version(), "latest registered when nothing is active")

	require.NoError(t, r.Activate("v1"))
	m, err = src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v1", m.Version())

	_, err = src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), src.CacheStats().Hits)
}

func TestSource_FallsBackWhenActiveArtifactUnloadable(t *testing.T) {
	r := newTestRegistry(t)
	registerTestModel(t, r, "v1", 1)
	v2 := registerTestModel(t, r, "v2", 2)
	require.NoError(t, r.Activate("v2"))
	require.NoError(t, os.Remove(filepath.Join(r.Dir(), v2.BinaryPath)))

	src, err := NewSource(r, 2, zerolog.Nop())
	require.NoError(t, err)

	m, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v1", m.Version())

	active, err := r.GetActive()
	require.NoError(t, err)
	assert.Equal(t, "v2", active.Version, "fallback must not change the registry")
}

func TestSource_NoLoadableVersion(t *testing.T) {
	r := newTestRegistry(t)
	v1 := registerTestModel(t, r, "v1", 1)
	require.NoError(t, r.Activate("v1"))
	path := filepath.Join(r.Dir(), v1.BinaryPath)
	require.NoError(t, os.Chmod(path, 0644))
	require.NoError(t, os.WriteFile(path, []byte(`{"tampered":true}`), 0644))

	src, err := NewSource(r, 2, zerolog.Nop())
	require.NoError(t, err)

	_, err = src.Load(context.Background())
	assert.ErrorIs(t, err, api.ErrModelUnavailable)
	assert.ErrorContains(t, err, "hash mismatch")
}

func TestSource_SeesOtherProcessActivation(t *testing.T) {
	r := newTestRegistry(t)
	registerTestModel(t, r, "v1", 1)
	registerTestModel(t, r, "v2", 2)
	require.NoError(t, r.Activate("v1"))

	served, err := Open(r.Dir(), zerolog.Nop())
	require.NoError(t, err)
	src, err := NewSource(served, 2, zerolog.Nop())
	require.NoError(t, err)

	m, err := src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v1", m.Version())

	require.NoError(t, r.Activate("v2"))
	m, err = src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v2", m.Version())
}

func TestNewVersion(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	v1, v2 := NewVersion(at), NewVersion(at)
	assert.NotEqual(t, v1, v2)
	assert.Contains(t, v1, "20250301T120000Z-")
}
