// Package forest implements a bootstrap-aggregated ensemble of regression
// trees whose per-tree predictions feed the random forest surrogate.
package forest

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/mat"

	"github.com/thalesfsp/surrogate/internal/cart"
)

// Config holds the forest hyperparameters. The `param` tags are the keys
// accepted from user supplied model params.
type Config struct {
	NEstimators     int     `param:"n_estimators"`
	MaxDepth        int     `param:"max_depth"`
	MinSamplesSplit int     `param:"min_samples_split"`
	MinSamplesLeaf  int     `param:"min_samples_leaf"`
	MaxFeatures     float64 `param:"max_features"` // (0, 1] fraction of columns, > 1 column count
	Bootstrap       bool    `param:"bootstrap"`
	RandomState     *int64  `param:"random_state"` // nil => seeded from the clock
	NJobs           int     `param:"n_jobs"`       // <= 1 => sequential
}

// DefaultConfig mirrors the usual random forest regressor defaults.
func DefaultConfig() Config {
	return Config{
		NEstimators:     100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     1.0,
		Bootstrap:       true,
	}
}

// Validate checks the ranges of the hyperparameters.
func (c Config) Validate() error {
	switch {
	case c.NEstimators < 1:
		return fmt.Errorf("forest: n_estimators must be >= 1, got %d", c.NEstimators)
	case c.MaxDepth < 0:
		return fmt.Errorf("forest: max_depth must be >= 0, got %d", c.MaxDepth)
	case c.MinSamplesSplit < 2:
		return fmt.Errorf("forest: min_samples_split must be >= 2, got %d", c.MinSamplesSplit)
	case c.MinSamplesLeaf < 1:
		return fmt.Errorf("forest: min_samples_leaf must be >= 1, got %d", c.MinSamplesLeaf)
	case c.MaxFeatures < 0 || math.IsNaN(c.MaxFeatures):
		return fmt.Errorf("forest: max_features must be >= 0, got %v", c.MaxFeatures)
	}

	return nil
}

// Forest is a fitted ensemble.
type Forest struct {
	trees []*cart.Tree
}

// Fit trains c.NEstimators trees on bootstrap samples of (x, y).
//
// Parameters:
// - x: Training inputs, one row per observation
// - y: Training targets, len(y) == rows(x)
// - c: Forest configuration, validated first
//
// Returns:
// - The fitted forest, trees in index order
// - The first tree error, wrapped
//
// Thread safety:
//   - Trees are grown on up to c.NJobs goroutines. Tree i always draws from
//     a source seeded with RandomState+i, so the forest does not depend on
//     scheduling.
func Fit(x mat.Matrix, y []float64, c Config) (*Forest, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	n, cols := x.Dims()
	if n == 0 || n != len(y) {
		return nil, errors.New("forest: x and y must be non-empty and of equal length")
	}

	seed := time.Now().UnixNano()
	if c.RandomState != nil {
		seed = *c.RandomState
	}

	treeCfg := cart.Config{
		MaxDepth:        c.MaxDepth,
		MinSamplesSplit: c.MinSamplesSplit,
		MinSamplesLeaf:  c.MinSamplesLeaf,
		MaxFeatures:     featureCount(c.MaxFeatures, cols),
	}

	trees := make([]*cart.Tree, c.NEstimators)

	p := pool.New().WithErrors().WithFirstError().WithMaxGoroutines(max(c.NJobs, 1))
	for i := range trees {
		p.Go(func() error {
			// Each tree owns its source so results do not depend on scheduling.
			rng := rand.New(rand.NewSource(seed + int64(i)))

			idx := make([]int, n)
			for j := range idx {
				if c.Bootstrap {
					idx[j] = rng.Intn(n)
				} else {
					idx[j] = j
				}
			}

			tree, err := cart.Fit(x, y, idx, treeCfg, rng)
			if err != nil {
				return err
			}

			trees[i] = tree

			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("forest: fitting trees: %w", err)
	}

	return &Forest{trees: trees}, nil
}

// Predictions returns one row of predictions per tree, each of length rows(x).
func (f *Forest) Predictions(x mat.Matrix) [][]float64 {
	out := make([][]float64, len(f.trees))
	for i, t := range f.trees {
		out[i] = t.PredictAll(x)
	}

	return out
}

// Len returns the number of trees.
func (f *Forest) Len() int {
	return len(f.trees)
}

func featureCount(maxFeatures float64, cols int) int {
	switch {
	case maxFeatures <= 0:
		return 0
	case maxFeatures <= 1:
		return max(1, int(maxFeatures*float64(cols)))
	default:
		return min(cols, int(maxFeatures))
	}
}
