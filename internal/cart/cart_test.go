package cart

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func allRows(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	return idx
}

func TestFitStepFunction(t *testing.T) {
	x := mat.NewDense(6, 1, []float64{0, 1, 2, 3, 4, 5})
	y := []float64{1, 1, 1, 9, 9, 9}

	tree, err := Fit(x, y, allRows(6), Config{}, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, tree.Leaves())
	assert.Equal(t, 1.0, tree.Predict([]float64{0.5}))
	assert.Equal(t, 9.0, tree.Predict([]float64{4.5}))
	assert.Equal(t, []float64{1, 1, 1, 9, 9, 9}, tree.PredictAll(x))
}

func TestFitRespectsMaxDepth(t *testing.T) {
	x := mat.NewDense(8, 1, []float64{0, 1, 2, 3, 4, 5, 6, 7})
	y := []float64{0, 1, 2, 3, 4, 5, 6, 7}

	tree, err := Fit(x, y, allRows(8), Config{MaxDepth: 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, tree.Leaves())

	tree, err = Fit(x, y, allRows(8), Config{MaxDepth: 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, tree.Leaves())
}

func TestFitRespectsMinSamplesLeaf(t *testing.T) {
	x := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	y := []float64{0, 0, 0, 10}

	tree, err := Fit(x, y, allRows(4), Config{MinSamplesLeaf: 2}, nil)
	require.NoError(t, err)

	// The outlier cannot be isolated in its own leaf.
	assert.Equal(t, 2, tree.Leaves())
	assert.InDelta(t, 5.0, tree.Predict([]float64{3}), 1e-12)
}

func TestFitConstantTargetIsSingleLeaf(t *testing.T) {
	x := mat.NewDense(3, 2, []float64{0, 1, 2, 3, 4, 5})

	tree, err := Fit(x, []float64{4, 4, 4}, allRows(3), Config{}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, tree.Leaves())
	assert.Equal(t, 4.0, tree.Predict([]float64{10, 10}))
}

func TestFitBootstrapIndices(t *testing.T) {
	x := mat.NewDense(4, 1, []float64{0, 1, 2, 3})
	y := []float64{0, 10, 20, 30}

	// Only the first two rows are seen, twice each.
	tree, err := Fit(x, y, []int{0, 0, 1, 1}, Config{}, nil)
	require.NoError(t, err)

	assert.Equal(t, 10.0, tree.Predict([]float64{3}))
}

func TestFitFeatureRestriction(t *testing.T) {
	x := mat.NewDense(4, 2, []float64{
		0, 5,
		1, 5,
		2, 6,
		3, 6,
	})
	y := []float64{0, 0, 1, 1}

	tree, err := Fit(x, y, allRows(4), Config{Features: []int{1}, MaxFeatures: 1}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.Equal(t, 0.0, tree.Predict([]float64{100, 5}))
	assert.Equal(t, 1.0, tree.Predict([]float64{-100, 6}))
}

func TestFitEmpty(t *testing.T) {
	_, err := Fit(mat.NewDense(1, 1, nil), []float64{0}, nil, Config{}, nil)
	assert.ErrorIs(t, err, ErrEmpty)
}
