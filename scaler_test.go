package surrogate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestDefaultScaler(t *testing.T) {
	space, err := NewSpace([]float64{0, 10}, []float64{4, 10})
	require.NoError(t, err)

	y := mat.NewDense(3, 1, []float64{1, 2, 3})

	s, err := NewDefaultScaler(space, y)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Features())

	x, err := s.TransformX(mat.NewDense(2, 2, []float64{0, 10, 2, 11}))
	require.NoError(t, err)

	// Zero span dimensions are only shifted.
	assert.Equal(t, []float64{0, 0, 0.5, 1}, x.RawMatrix().Data)

	ys := s.TransformY(y)
	assert.InDelta(t, -1.0, ys.At(0, 0), 1e-12)
	assert.InDelta(t, 0.0, ys.At(1, 0), 1e-12)
	assert.InDelta(t, 1.0, ys.At(2, 0), 1e-12)

	assert.InDelta(t, 3.0, s.UntransformMean(1), 1e-12)
	assert.InDelta(t, 4.0, s.UntransformVariance(4), 1e-12)

	_, err = s.TransformX(mat.NewDense(1, 3, nil))
	assert.ErrorIs(t, err, ErrInvalidInput)

	c, err := NewTensor([]float64{1, 2}, 1, 1, 3)
	require.Error(t, err)
	assert.Nil(t, c)

	bad, err := NewTensor([]float64{1, 2, 3}, 1, 3)
	require.NoError(t, err)

	_, err = s.TransformCandidates(bad)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDefaultScalerDegenerateTargets(t *testing.T) {
	space, err := NewSpace([]float64{0}, []float64{1})
	require.NoError(t, err)

	s, err := NewDefaultScaler(space, mat.NewDense(1, 1, []float64{5}))
	require.NoError(t, err)

	ys := s.TransformY(mat.NewDense(1, 1, []float64{5}))
	assert.Equal(t, 0.0, ys.At(0, 0))
	assert.Equal(t, 6.0, s.UntransformMean(1))
}

func TestDefaultScalerRejectsBadBounds(t *testing.T) {
	_, err := NewDefaultScaler(&Space{Lower: []float64{0}, Upper: []float64{1, 2}}, mat.NewDense(1, 1, nil))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestScalingRoundTrip(t *testing.T) {
	space, x, y := trainingData(t)

	// Wrapped: the adapter scales internally.
	wrapped, err := NewBayesianLinear(nil)
	require.NoError(t, err)

	scaled := Scale(wrapped)
	require.NoError(t, scaled.Fit(space, x, y))
	require.NotNil(t, scaled.Scaler())

	// Manual: scale by hand, fit the bare model, un-scale by hand.
	scaler, err := NewDefaultScaler(space, y)
	require.NoError(t, err)

	xs, err := scaler.TransformX(x)
	require.NoError(t, err)

	bare, err := NewBayesianLinear(nil)
	require.NoError(t, err)
	require.NoError(t, bare.Fit(space, xs, scaler.TransformY(y)))

	candidates, err := NewTensor(candidateData(2, 3), 2, 3, 2)
	require.NoError(t, err)

	mean, variance, err := scaled.Posterior(candidates)
	require.NoError(t, err)

	scaledCandidates, err := scaler.TransformCandidates(candidates)
	require.NoError(t, err)

	rawMean, rawVariance, err := bare.Posterior(scaledCandidates)
	require.NoError(t, err)

	wantMean, wantVariance, err := scaler.UntransformPosterior(rawMean, rawVariance)
	require.NoError(t, err)

	assert.Equal(t, wantMean.Shape(), mean.Shape())
	assert.Equal(t, wantVariance.Shape(), variance.Shape())
	assert.InDeltaSlice(t, wantMean.Data(), mean.Data(), 1e-9)
	assert.InDeltaSlice(t, wantVariance.Data(), variance.Data(), 1e-9)

	// The inputs are left untouched.
	assert.Equal(t, candidateData(2, 3), candidates.Data())
}

func TestScaledModelMetadata(t *testing.T) {
	rf, err := NewRandomForest(Params{"n_estimators": 3})
	require.NoError(t, err)

	s := Scale(rf)
	assert.Equal(t, RandomForest, s.Family())
	assert.Equal(t, PosteriorMarginal, s.PosteriorMode())
	assert.Equal(t, Params{"n_estimators": 3}, s.ModelParams())
	assert.Same(t, rf, s.Unwrap())

	candidates, err := NewTensor([]float64{1, 2}, 1, 2)
	require.NoError(t, err)

	_, _, err = s.Posterior(candidates)
	assert.ErrorIs(t, err, ErrNotFitted)
}
