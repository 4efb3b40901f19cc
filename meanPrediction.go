package surrogate

import (
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// MeanPredictionModel predicts the mean of the training targets everywhere,
// with unit variance. It accepts no model params.
//
// Fields:
// - target: Mean of the targets seen by the last Fit
// - fitted: Whether Fit has been called
//
// Usage:
// - As a family of its own (MeanPrediction)
// - As the fallback of ConstantTargetsGuard.
type MeanPredictionModel struct {
	target float64
	fitted bool
}

// NewMeanPrediction returns an unfitted mean predictor.
func NewMeanPrediction() *MeanPredictionModel {
	return &MeanPredictionModel{}
}

// Family implements Model.
func (m *MeanPredictionModel) Family() Family { return MeanPrediction }

// PosteriorMode implements Model.
func (m *MeanPredictionModel) PosteriorMode() PosteriorMode { return PosteriorMarginal }

// ModelParams implements Model.
func (m *MeanPredictionModel) ModelParams() Params { return Params{} }

// TargetValue returns the fitted target mean.
func (m *MeanPredictionModel) TargetValue() float64 { return m.target }

// Fit implements Model.
func (m *MeanPredictionModel) Fit(_ SearchSpace, _, y *mat.Dense) error {
	m.target = stat.Mean(column(y), nil)
	m.fitted = true

	return nil
}

// Posterior implements Model.
func (m *MeanPredictionModel) Posterior(candidates *Tensor) (*Tensor, *Tensor, error) {
	if !m.fitted {
		return nil, nil, ErrNotFitted
	}

	return Batchify(PosteriorMarginal, m.batch)(candidates)
}

func (m *MeanPredictionModel) batch(points *mat.Dense) ([]float64, []float64, error) {
	n, _ := points.Dims()

	mean := make([]float64, n)
	variance := make([]float64, n)

	for i := range mean {
		mean[i] = m.target
		variance[i] = 1
	}

	return mean, variance, nil
}
