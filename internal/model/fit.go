package model

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/SamMebarek/mlopstest/internal/features"
	"gonum.org/v1/gonum/stat"
)

// Params are the boosting hyperparameters
type Params struct {
	NEstimators    int     `json:"n_estimators" yaml:"n_estimators" validate:"min=1"`
	LearningRate   float64 `json:"learning_rate" yaml:"learning_rate" validate:"gt=0,lte=1"`
	MaxDepth       int     `json:"max_depth" yaml:"max_depth" validate:"min=1,max=16"`
	MinSamplesLeaf int     `json:"min_samples_leaf" yaml:"min_samples_leaf" validate:"min=1"`
	Subsample      float64 `json:"subsample" yaml:"subsample" validate:"gt=0,lte=1"`
	Seed           int64   `json:"seed" yaml:"random_seed"`
}

// DefaultParams returns conservative defaults for small tabular data
func DefaultParams() Params {
	return Params{
		NEstimators:    200,
		LearningRate:   0.1,
		MaxDepth:       4,
		MinSamplesLeaf: 2,
		Subsample:      0.8,
		Seed:           42,
	}
}

func (p Params) validate() error {
	switch {
	case p.NEstimators < 1:
		return fmt.Errorf("n_estimators must be >= 1")
	case p.LearningRate <= 0 || p.LearningRate > 1:
		return fmt.Errorf("learning_rate must be in (0, 1]")
	case p.MaxDepth < 1:
		return fmt.Errorf("max_depth must be >= 1")
	case p.MinSamplesLeaf < 1:
		return fmt.Errorf("min_samples_leaf must be >= 1")
	case p.Subsample <= 0 || p.Subsample > 1:
		return fmt.Errorf("subsample must be in (0, 1]")
	}
	return nil
}

// Fit trains a squared-error gradient-boosted ensemble on x, y
func Fit(x []features.Vector, y []float64, p Params, version string) (*GBDT, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("no training samples")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("features and targets length mismatch: %d != %d", len(x), len(y))
	}
	if err := p.validate(); err != nil {
		return nil, err
	}

	m := &GBDT{
		ModelVersion: version,
		FeatureNames: features.Columns(),
		BaseScore:    stat.Mean(y, nil),
		LearningRate: p.LearningRate,
		Params:       p,
		TrainedAt:    time.Now().UTC(),
	}

	rng := rand.New(rand.NewSource(p.Seed))
	n := len(x)
	sampleSize := int(p.Subsample * float64(n))
	if sampleSize < 1 {
		sampleSize = 1
	}

	pred := make([]float64, n)
	for i := range pred {
		pred[i] = m.BaseScore
	}
	residual := make([]float64, n)

	for round := 0; round < p.NEstimators; round++ {
		for i := range residual {
			residual[i] = y[i] - pred[i]
		}

		idx := rng.Perm(n)[:sampleSize]
		b := &treeBuilder{x: x, residual: residual, params: p}
		b.build(idx, 0)
		tree := Tree{Nodes: b.nodes}

		for i := range pred {
			pred[i] += p.LearningRate * tree.Predict(&x[i])
		}
		m.Trees = append(m.Trees, tree)
	}

	return m, nil
}

type treeBuilder struct {
	x        []features.Vector
	residual []float64
	params   Params
	nodes    []Node
}

func (b *treeBuilder) build(idx []int, depth int) int {
	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{Feature: -1, Value: b.mean(idx)})

	if depth >= b.params.MaxDepth || len(idx) < 2*b.params.MinSamplesLeaf {
		return id
	}

	feature, threshold, ok := b.bestSplit(idx)
	if !ok {
		return id
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][feature] < threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	if len(left) == 0 || len(right) == 0 {
		return id
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[id] = Node{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return id
}

func (b *treeBuilder) mean(idx []int) float64 {
	sum := 0.0
	for _, i := range idx {
		sum += b.residual[i]
	}
	return sum / float64(len(idx))
}

// bestSplit maximises the reduction in squared error over all features and
// all thresholds between distinct adjacent values.
func (b *treeBuilder) bestSplit(idx []int) (int, float64, bool) {
	n := len(idx)
	minLeaf := b.params.MinSamplesLeaf

	total := 0.0
	for _, i := range idx {
		total += b.residual[i]
	}
	parentScore := total * total / float64(n)

	bestGain := 1e-12
	bestFeature, bestThreshold := -1, 0.0
	sorted := make([]int, n)

	for f := 0; f < features.NumFeatures; f++ {
		copy(sorted, idx)
		sort.Slice(sorted, func(a, c int) bool {
			return b.x[sorted[a]][f] < b.x[sorted[c]][f]
		})

		leftSum := 0.0
		for k := 1; k < n; k++ {
			leftSum += b.residual[sorted[k-1]]
			if k < minLeaf || n-k < minLeaf {
				continue
			}
			lo, hi := b.x[sorted[k-1]][f], b.x[sorted[k]][f]
			if lo == hi {
				continue
			}
			rightSum := total - leftSum
			gain := leftSum*leftSum/float64(k) + rightSum*rightSum/float64(n-k) - parentScore
			if gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = lo + (hi-lo)/2
				if bestThreshold <= lo {
					bestThreshold = hi
				}
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}
