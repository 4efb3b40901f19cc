package surrogate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/mat"
)

// recordingModel is a joint model that counts fits and can be made to fail.
type recordingModel struct {
	fits int
	err  error
}

func (m *recordingModel) Family() Family               { return Family("Recording") }
func (m *recordingModel) PosteriorMode() PosteriorMode { return PosteriorJoint }
func (m *recordingModel) ModelParams() Params          { return Params{"k": 1} }

func (m *recordingModel) Fit(SearchSpace, *mat.Dense, *mat.Dense) error {
	if m.err != nil {
		return m.err
	}

	m.fits++

	return nil
}

func (m *recordingModel) Posterior(candidates *Tensor) (*Tensor, *Tensor, error) {
	return Batchify(PosteriorJoint, func(points *mat.Dense) ([]float64, []float64, error) {
		q, _ := points.Dims()
		covar := make([]float64, q*q)

		for i := range covar {
			covar[i] = 0.25
		}

		return make([]float64, q), covar, nil
	})(candidates)
}

func TestGuardFallsBackOnConstantTargets(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	inner := &recordingModel{}
	g := CatchConstantTargets(inner, WithLogger(zap.New(core)))

	assert.Same(t, inner, g.Unwrap())

	space, x, _ := trainingData(t)
	y := mat.NewDense(12, 1, nil)
	y.Apply(func(_, _ int, _ float64) float64 { return -2.5 }, y)

	require.NoError(t, g.Fit(space, x, y))
	assert.Equal(t, 0, inner.fits)

	active, ok := g.Unwrap().(*MeanPredictionModel)
	require.True(t, ok)
	assert.Equal(t, -2.5, active.TargetValue())

	// Capabilities still describe the configured model.
	assert.Equal(t, Family("Recording"), g.Family())
	assert.Equal(t, PosteriorJoint, g.PosteriorMode())
	assert.Equal(t, Params{"k": 1}, g.ModelParams())

	require.Equal(t, 1, logs.FilterMessage("constant targets, falling back to mean prediction").Len())

	candidates, err := NewTensor(candidateData(2, 3), 2, 3, 2)
	require.NoError(t, err)

	mean, covar, err := g.Posterior(candidates)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, mean.Shape())

	// The marginal fallback is embedded to the joint layout.
	require.Equal(t, []int{2, 3, 3}, covar.Shape())
	assert.Equal(t, 1.0, covar.At(1, 2, 2))
	assert.Equal(t, 0.0, covar.At(1, 0, 2))
}

func TestGuardDelegatesOnVaryingTargets(t *testing.T) {
	inner := &recordingModel{}
	g := CatchConstantTargets(inner)

	space, x, y := trainingData(t)
	require.NoError(t, g.Fit(space, x, y))
	assert.Equal(t, 1, inner.fits)
	assert.Same(t, inner, g.Unwrap())

	candidates, err := NewTensor(candidateData(1, 2), 1, 2, 2)
	require.NoError(t, err)

	_, covar, err := g.Posterior(candidates)
	require.NoError(t, err)
	assert.Equal(t, 0.25, covar.At(0, 0, 1))
}

func TestGuardKeepsActiveModelOnFailedFit(t *testing.T) {
	inner := &recordingModel{}
	g := CatchConstantTargets(inner)

	space, x, y := trainingData(t)

	constant := mat.NewDense(12, 1, nil)
	require.NoError(t, g.Fit(space, x, constant))

	inner.err = errors.New("singular")
	assert.ErrorIs(t, g.Fit(space, x, y), inner.err)

	_, ok := g.Unwrap().(*MeanPredictionModel)
	assert.True(t, ok)
}

func TestGuardBeforeFit(t *testing.T) {
	g := CatchConstantTargets(&recordingModel{})

	candidates, err := NewTensor([]float64{1, 2}, 1, 2)
	require.NoError(t, err)

	_, _, err = g.Posterior(candidates)
	assert.ErrorIs(t, err, ErrNotFitted)
}

func TestGuardThreshold(t *testing.T) {
	inner := &recordingModel{}
	g := CatchConstantTargets(inner)

	space, x, _ := trainingData(t)

	// Spread just above the threshold goes to the configured model.
	y := mat.NewDense(12, 1, nil)
	y.Set(0, 0, 1e-5)

	require.NoError(t, g.Fit(space, x, y))
	assert.Equal(t, 1, inner.fits)
}
