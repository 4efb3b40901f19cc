package surrogate

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/thalesfsp/surrogate/internal/ard"
)

// BayesianLinearModel is a Bayesian linear regression with automatic
// relevance determination. The posterior at a point is the predictive mean
// and the squared predictive standard deviation.
//
// Accepted params: max_iter, tol, alpha_1, alpha_2, lambda_1, lambda_2,
// threshold_lambda, fit_intercept.
type BayesianLinearModel struct {
	params Params
	config ard.Config
	model  *ard.Model
}

// NewBayesianLinear validates params and returns an unfitted model.
func NewBayesianLinear(params Params) (*BayesianLinearModel, error) {
	c := ard.DefaultConfig()

	if err := decodeParams(BayesianLinear, params, &c); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedConfig, err)
	}

	return &BayesianLinearModel{params: nonNil(params), config: c}, nil
}

// Family implements Model.
func (b *BayesianLinearModel) Family() Family { return BayesianLinear }

// PosteriorMode implements Model.
func (b *BayesianLinearModel) PosteriorMode() PosteriorMode { return PosteriorMarginal }

// ModelParams implements Model.
func (b *BayesianLinearModel) ModelParams() Params { return b.params.Clone() }

// Coefficients returns the fitted weights, or nil before Fit.
func (b *BayesianLinearModel) Coefficients() []float64 {
	if b.model == nil {
		return nil
	}

	return b.model.Coefficients()
}

// Fit implements Model.
func (b *BayesianLinearModel) Fit(_ SearchSpace, x, y *mat.Dense) error {
	m, err := ard.Fit(x, column(y), b.config)
	if err != nil {
		return err
	}

	b.model = m

	return nil
}

// Posterior implements Model.
func (b *BayesianLinearModel) Posterior(candidates *Tensor) (*Tensor, *Tensor, error) {
	if b.model == nil {
		return nil, nil, ErrNotFitted
	}

	return Batchify(PosteriorMarginal, b.batch)(candidates)
}

func (b *BayesianLinearModel) batch(points *mat.Dense) ([]float64, []float64, error) {
	mean, std := b.model.Predict(points)

	variance := make([]float64, len(std))
	for i, s := range std {
		variance[i] = s * s
	}

	return mean, variance, nil
}
