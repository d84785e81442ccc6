package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/SamMebarek/mlopstest/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Status is the lifecycle state of a registered model
type Status string

const (
	StatusRegistered Status = "registered"
	StatusActive     Status = "active"
	StatusShadow     Status = "shadow"
	StatusDeprecated Status = "deprecated"
)

const (
	indexFile  = "index.json"
	binaryDir  = "binaries"
	binaryMode = 0444
)

// ErrNotFound is returned for unknown versions or when nothing is active
var ErrNotFound = errors.New("model not found")

// Entry describes one immutable model version
type Entry struct {
	Version      string             `json:"version"`
	RegisteredAt time.Time          `json:"registered_at"`
	Status       Status             `json:"status"`
	BinaryHash   string             `json:"binary_hash"`
	BinaryPath   string             `json:"binary_path"` // relative to the registry dir
	DatasetHash  string             `json:"dataset_hash,omitempty"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	Params       *model.Params      `json:"params,omitempty"`
}

// Card carries the metadata stored alongside a registered artifact
type Card struct {
	DatasetHash string
	Metrics     map[string]float64
	Params      *model.Params
}

type index struct {
	Active   string   `json:"active,omitempty"`
	Previous string   `json:"previous,omitempty"`
	Models   []*Entry `json:"models"`
}

// Registry is a directory-backed store of versioned model artifacts with a
// single active version. The index is rewritten on every mutation so other
// processes observe changes after Refresh.
type Registry struct {
	mu       sync.RWMutex
	dir      string
	models   map[string]*Entry
	active   string
	previous string
	now      func() time.Time
	logger   zerolog.Logger
}

// Open loads (or initialises) the registry rooted at dir
func Open(dir string, logger zerolog.Logger) (*Registry, error) {
	if err := os.MkdirAll(filepath.Join(dir, binaryDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create registry directory: %w", err)
	}

	r := &Registry{
		dir:    dir,
		models: make(map[string]*Entry),
		now:    time.Now,
		logger: logger.With().Str("component", "registry").Logger(),
	}
	if err := r.Refresh(); err != nil {
		return nil, err
	}
	return r, nil
}

// NewVersion returns a sortable, unique version identifier
func NewVersion(at time.Time) string {
	return fmt.Sprintf("%s-%s", at.UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
}

// Dir returns the registry root
func (r *Registry) Dir() string {
	return r.dir
}

// Refresh reloads the index from disk, discarding in-memory state
func (r *Registry) Refresh() error {
	data, err := os.ReadFile(filepath.Join(r.dir, indexFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read registry index: %w", err)
	}

	var idx index
	if err := json.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("failed to parse registry index: %w", err)
	}

	models := make(map[string]*Entry, len(idx.Models))
	for _, e := range idx.Models {
		models[e.Version] = e
	}

	r.mu.Lock()
	r.models = models
	r.active = idx.Active
	r.previous = idx.Previous
	r.mu.Unlock()
	return nil
}

// Register stores the artifact read-only under binaries/ and records it.
// The model's version becomes the registry version; versions are immutable.
func (r *Registry) Register(m *model.GBDT, card Card) (*Entry, error) {
	if m.ModelVersion == "" {
		return nil, fmt.Errorf("model has no version")
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to register invalid model: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.models[m.ModelVersion]; ok {
		return nil, fmt.Errorf("model version %s already registered", m.ModelVersion)
	}

	data, err := m.Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize model: %w", err)
	}
	hash := model.HashBytes(data)
	rel := filepath.Join(binaryDir, fmt.Sprintf("%s-%s.json", m.ModelVersion, hash[:8]))
	if err := os.WriteFile(filepath.Join(r.dir, rel), data, binaryMode); err != nil {
		return nil, fmt.Errorf("failed to write binary: %w", err)
	}

	e := &Entry{
		Version:      m.ModelVersion,
		RegisteredAt: r.now().UTC(),
		Status:       StatusRegistered,
		BinaryHash:   hash,
		BinaryPath:   rel,
		DatasetHash:  card.DatasetHash,
		Metrics:      card.Metrics,
		Params:       card.Params,
	}
	r.models[e.Version] = e
	if err := r.saveLocked(); err != nil {
		delete(r.models, e.Version)
		if rerr := os.Remove(filepath.Join(r.dir, rel)); rerr != nil {
			r.logger.Warn().Err(rerr).Str("path", rel).Msg("failed to remove orphaned binary")
		}
		return nil, err
	}

	r.logger.Info().Str("version", e.Version).Str("binary_hash", hash[:8]).Msg("registered model")
	return e.clone(), nil
}

// Activate makes version the active model. The previously active version
// becomes shadow and is remembered for rollback.
func (r *Registry) Activate(version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.models[version]
	if !ok {
		return fmt.Errorf("%s: %w", version, ErrNotFound)
	}
	if e.Status == StatusDeprecated {
		return fmt.Errorf("cannot activate deprecated model %s", version)
	}
	if r.active == version {
		return nil
	}

	prevActive, prevPrevious, prevStatus := r.active, r.previous, e.Status
	if cur, ok := r.models[r.active]; ok {
		cur.Status = StatusShadow
		r.previous = r.active
	}
	e.Status = StatusActive
	r.active = version

	if err := r.saveLocked(); err != nil {
		e.Status = prevStatus
		if cur, ok := r.models[prevActive]; ok {
			cur.Status = StatusActive
		}
		r.active, r.previous = prevActive, prevPrevious
		return err
	}

	r.logger.Info().Str("version", version).Str("previous", r.previous).Msg("activated model")
	return nil
}

// GetActive returns the active entry
func (r *Registry) GetActive() (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.active == "" {
		return nil, fmt.Errorf("no active model: %w", ErrNotFound)
	}
	e, ok := r.models[r.active]
	if !ok {
		return nil, fmt.Errorf("active model %s: %w", r.active, ErrNotFound)
	}
	return e.clone(), nil
}

// GetPrevious returns the previously active entry, or nil
func (r *Registry) GetPrevious() *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.models[r.previous]; ok {
		return e.clone()
	}
	return nil
}

// Get returns the entry for version
func (r *Registry) Get(version string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.models[version]
	if !ok {
		return nil, fmt.Errorf("%s: %w", version, ErrNotFound)
	}
	return e.clone(), nil
}

// Latest returns the most recently registered non-deprecated entry
func (r *Registry) Latest() (*Entry, error) {
	for _, e := range r.List() {
		if e.Status != StatusDeprecated {
			return e, nil
		}
	}
	return nil, fmt.Errorf("no registered models: %w", ErrNotFound)
}

// List returns all entries, newest first
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Entry, 0, len(r.models))
	for _, e := range r.models {
		out = append(out, e.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RegisteredAt.Equal(out[j].RegisteredAt) {
			return out[i].Version > out[j].Version
		}
		return out[i].RegisteredAt.After(out[j].RegisteredAt)
	})
	return out
}

// Deprecate retires a version. The active version cannot be deprecated.
func (r *Registry) Deprecate(version string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.models[version]
	if !ok {
		return fmt.Errorf("%s: %w", version, ErrNotFound)
	}
	if version == r.active {
		return fmt.Errorf("cannot deprecate active model %s", version)
	}

	old := e.Status
	e.Status = StatusDeprecated
	if err := r.saveLocked(); err != nil {
		e.Status = old
		return err
	}
	r.logger.Info().Str("version", version).Msg("deprecated model")
	return nil
}

// VerifyIntegrity re-hashes the stored artifact and compares it with the index
func (r *Registry) VerifyIntegrity(version string) error {
	_, err := r.readBinary(version)
	return err
}

// LoadModel reads, verifies and decodes the artifact for version
func (r *Registry) LoadModel(version string) (*model.GBDT, error) {
	data, err := r.readBinary(version)
	if err != nil {
		return nil, err
	}
	m, err := model.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", version, err)
	}
	return m, nil
}

func (r *Registry) readBinary(version string) ([]byte, error) {
	e, err := r.Get(version)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(r.dir, e.BinaryPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read binary: %w", err)
	}

	sum := sha256.Sum256(data)
	if got := hex.EncodeToString(sum[:]); got != e.BinaryHash {
		return nil, fmt.Errorf("model %s hash mismatch: expected %s, got %s", version, e.BinaryHash, got)
	}
	return data, nil
}

func (r *Registry) saveLocked() error {
	idx := index{Active: r.active, Previous: r.previous, Models: make([]*Entry, 0, len(r.models))}
	for _, e := range r.models {
		idx.Models = append(idx.Models, e)
	}
	sort.Slice(idx.Models, func(i, j int) bool {
		return idx.Models[i].Version < idx.Models[j].Version
	})

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry index: %w", err)
	}

	tmp := filepath.Join(r.dir, indexFile+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry index: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(r.dir, indexFile)); err != nil {
		return fmt.Errorf("failed to replace registry index: %w", err)
	}
	return nil
}

func (e *Entry) clone() *Entry {
	c := *e
	return &c
}
