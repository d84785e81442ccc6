package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/SamMebarek/mlopstest/internal/features"
)

// Node is one node of a regression tree stored as a flat array.
// Leaves have Feature == -1.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
	Value     float64 `json:"value,omitempty"`
}

// IsLeaf reports whether the node is terminal
func (n Node) IsLeaf() bool {
	return n.Feature < 0
}

// Tree is a regression tree; node 0 is the root
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict walks the tree: x[feature] < threshold goes left
func (t *Tree) Predict(v *features.Vector) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.IsLeaf() {
			return n.Value
		}
		if v[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// GBDT is a gradient-boosted regression tree ensemble:
// prediction = BaseScore + LearningRate · Σ tree(x)
type GBDT struct {
	ModelVersion string    `json:"version"`
	FeatureNames []string  `json:"feature_names"`
	BaseScore    float64   `json:"base_score"`
	LearningRate float64   `json:"learning_rate"`
	Trees        []Tree    `json:"trees"`
	Params       Params    `json:"params"`
	TrainedAt    time.Time `json:"trained_at"`
}

// Predict implements Model
func (m *GBDT) Predict(v features.Vector) (float64, error) {
	pred := m.BaseScore
	for i := range m.Trees {
		pred += m.LearningRate * m.Trees[i].Predict(&v)
	}
	if math.IsNaN(pred) || math.IsInf(pred, 0) {
		return 0, fmt.Errorf("model %s produced non-finite output", m.ModelVersion)
	}
	return pred, nil
}

// Version implements Model
func (m *GBDT) Version() string {
	return m.ModelVersion
}

// Validate checks the artifact against the feature column contract and
// checks tree structure so Predict cannot index out of range or loop.
func (m *GBDT) Validate() error {
	if !features.SameColumns(m.FeatureNames) {
		return fmt.Errorf("feature columns %v do not match serving columns %v", m.FeatureNames, features.Columns())
	}
	for ti, t := range m.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d has no nodes", ti)
		}
		for ni, n := range t.Nodes {
			if n.IsLeaf() {
				continue
			}
			if n.Feature >= features.NumFeatures {
				return fmt.Errorf("tree %d node %d: feature index %d out of range", ti, ni, n.Feature)
			}
			if n.Left <= ni || n.Right <= ni || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
				return fmt.Errorf("tree %d node %d: invalid children %d/%d", ti, ni, n.Left, n.Right)
			}
		}
	}
	return nil
}

// Encode writes the JSON artifact
func (m *GBDT) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}

// Marshal returns the JSON artifact bytes
func (m *GBDT) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// SaveFile writes the artifact to path, creating parent directories
func (m *GBDT) SaveFile(path string) error {
	data, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("failed to serialize model: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Decode parses and validates a JSON artifact
func Decode(data []byte) (*GBDT, error) {
	var m GBDT
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse model artifact: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if m.ModelVersion == "" {
		m.ModelVersion = "sha256:" + HashBytes(data)[:12]
	}
	return &m, nil
}

// LoadFile reads and validates an artifact from disk
func LoadFile(path string) (*GBDT, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}

// HashBytes returns the hex sha256 of data
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
