// Package cart implements a CART-style regression tree. It is the base
// learner for the random forest and NGBoost engines.
package cart

import (
	"errors"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// ErrEmpty is returned when a tree is fitted without samples.
var ErrEmpty = errors.New("cart: no samples to fit")

// Config holds the growth limits of a tree.
type Config struct {
	// MaxDepth limits the depth of the tree (root depth = 0). 0 => no limit.
	MaxDepth int

	// MinSamplesSplit is the minimum number of samples needed to split a node.
	MinSamplesSplit int

	// MinSamplesLeaf is the minimum number of samples in each leaf.
	MinSamplesLeaf int

	// MaxFeatures is the number of features sampled when searching a split.
	// 0 => all allowed features.
	MaxFeatures int

	// Features restricts splits to the given columns. nil => all columns.
	Features []int
}

// Tree is a fitted regression tree.
type Tree struct {
	root *node
}

type node struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      *node
	right     *node
}

type split struct {
	feature   int
	threshold float64
	gain      float64
	pos       int
}

// Fit grows a tree on the rows of x referenced by idx (indices may repeat,
// which is how bootstrap samples are passed in). rng drives feature
// subsampling and may be nil when MaxFeatures is 0.
func Fit(x mat.Matrix, y []float64, idx []int, cfg Config, rng *rand.Rand) (*Tree, error) {
	if len(idx) == 0 {
		return nil, ErrEmpty
	}

	if cfg.MinSamplesSplit < 2 {
		cfg.MinSamplesSplit = 2
	}

	if cfg.MinSamplesLeaf < 1 {
		cfg.MinSamplesLeaf = 1
	}

	features := cfg.Features
	if features == nil {
		_, c := x.Dims()

		features = make([]int, c)
		for j := range features {
			features[j] = j
		}
	}

	b := builder{x: x, y: y, cfg: cfg, features: features, rng: rng}
	work := make([]int, len(idx))
	copy(work, idx)

	return &Tree{root: b.grow(work, 0)}, nil
}

// Predict returns the leaf value reached by row.
func (t *Tree) Predict(row []float64) float64 {
	n := t.root
	for !n.leaf {
		if row[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}

	return n.value
}

// PredictAll evaluates every row of x.
func (t *Tree) PredictAll(x mat.Matrix) []float64 {
	r, c := x.Dims()
	out := make([]float64, r)
	row := make([]float64, c)

	for i := 0; i < r; i++ {
		out[i] = t.Predict(mat.Row(row, i, x))
	}

	return out
}

// Leaves returns the number of leaves.
func (t *Tree) Leaves() int {
	return countLeaves(t.root)
}

func countLeaves(n *node) int {
	if n.leaf {
		return 1
	}

	return countLeaves(n.left) + countLeaves(n.right)
}

type builder struct {
	x        mat.Matrix
	y        []float64
	cfg      Config
	features []int
	rng      *rand.Rand
}

func (b *builder) grow(idx []int, depth int) *node {
	var sum, sumSq float64
	for _, i := range idx {
		sum += b.y[i]
		sumSq += b.y[i] * b.y[i]
	}

	n := float64(len(idx))
	mean := sum / n
	leaf := &node{leaf: true, value: mean}

	if len(idx) < b.cfg.MinSamplesSplit || len(idx) < 2*b.cfg.MinSamplesLeaf {
		return leaf
	}

	if b.cfg.MaxDepth > 0 && depth >= b.cfg.MaxDepth {
		return leaf
	}

	// Pure node.
	if sumSq-sum*sum/n <= 1e-12*(1+sumSq) {
		return leaf
	}

	best := split{feature: -1}
	for _, f := range b.candidateFeatures() {
		if s := b.bestSplit(idx, f, sum); s.gain > best.gain {
			best = s
		}
	}

	if best.feature < 0 {
		return leaf
	}

	// bestSplit leaves idx sorted by its own feature only, so re-partition.
	left := make([]int, 0, best.pos)
	right := make([]int, 0, len(idx)-best.pos)

	for _, i := range idx {
		if b.x.At(i, best.feature) <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	return &node{
		feature:   best.feature,
		threshold: best.threshold,
		left:      b.grow(left, depth+1),
		right:     b.grow(right, depth+1),
	}
}

func (b *builder) candidateFeatures() []int {
	k := b.cfg.MaxFeatures
	if k <= 0 || k >= len(b.features) || b.rng == nil {
		return b.features
	}

	picked := make([]int, len(b.features))
	copy(picked, b.features)
	b.rng.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })

	return picked[:k]
}

// bestSplit sweeps the sorted values of feature f and returns the threshold
// with the largest reduction of the squared error.
func (b *builder) bestSplit(idx []int, f int, total float64) split {
	sort.SliceStable(idx, func(i, j int) bool { return b.x.At(idx[i], f) < b.x.At(idx[j], f) })

	n := len(idx)
	minLeaf := b.cfg.MinSamplesLeaf
	parent := total * total / float64(n)
	best := split{feature: -1}

	var left float64
	for pos := 1; pos < n; pos++ {
		left += b.y[idx[pos-1]]

		lo, hi := b.x.At(idx[pos-1], f), b.x.At(idx[pos], f)
		if lo == hi || pos < minLeaf || n-pos < minLeaf {
			continue
		}

		right := total - left
		gain := left*left/float64(pos) + right*right/float64(n-pos) - parent

		if gain > best.gain+1e-12 {
			threshold := lo + (hi-lo)/2
			if threshold >= hi {
				threshold = lo
			}

			best = split{feature: f, threshold: threshold, gain: gain, pos: pos}
		}
	}

	return best
}
