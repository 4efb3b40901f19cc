package surrogate

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/thalesfsp/surrogate/internal/gp"
)

//////
// Const, vars, types.
//////

// GaussianProcessModel is an exact Gaussian process with a Matérn 5/2 ARD
// kernel scaled by an outputscale, a Gaussian likelihood and a constant mean.
//
// Fitting:
//   - Inputs are normalised to the unit cube with the search space bounds.
//   - Targets are standardised.
//   - Gamma priors on lengthscales, outputscale and noise are picked from the
//     input dimensionality and whether the features are descriptors.
//   - Hyperparameters maximise the marginal log-likelihood plus log priors
//     with a bounded Nelder-Mead search.
//
// The model produces joint posteriors. It accepts no model params.
type GaussianProcessModel struct {
	model   *gp.Model
	logger  *zap.Logger
	workers int
}

// NewGaussianProcess returns an unfitted Gaussian process. Any params are
// rejected.
func NewGaussianProcess(params Params, opts ...Option) (*GaussianProcessModel, error) {
	if err := rejectParams(GaussianProcess, params); err != nil {
		return nil, err
	}

	o := newOptions(opts)

	return &GaussianProcessModel{
		logger:  o.logger.Named("gaussian_process"),
		workers: o.workers,
	}, nil
}

//////
// Methods.
//////

// Family implements Model.
func (g *GaussianProcessModel) Family() Family { return GaussianProcess }

// PosteriorMode implements Model.
func (g *GaussianProcessModel) PosteriorMode() PosteriorMode { return PosteriorJoint }

// ModelParams implements Model.
func (g *GaussianProcessModel) ModelParams() Params { return Params{} }

// Fit implements Model.
func (g *GaussianProcessModel) Fit(space SearchSpace, x, y *mat.Dense) error {
	_, d := x.Dims()

	lower, upper := space.ComputationalBounds()
	if len(lower) != d || len(upper) != d {
		return fmt.Errorf("%w: %d features for a space of %d dimensions", ErrInvalidInput, d, len(lower))
	}

	priors := gp.SelectPriors(d, space.ContainsDescriptors())

	m, err := gp.Fit(x, column(y), gp.Config{
		Lower:         lower,
		Upper:         upper,
		Priors:        priors,
		MaxIterations: gp.DefaultMaxIterations,
		Logger:        g.logger,
	})
	if err != nil {
		return err
	}

	g.model = m

	return nil
}

// Posterior implements Model.
func (g *GaussianProcessModel) Posterior(candidates *Tensor) (*Tensor, *Tensor, error) {
	if g.model == nil {
		return nil, nil, ErrNotFitted
	}

	return Batchify(PosteriorJoint, g.batch, WithBatchWorkers(g.workers))(candidates)
}

// Lengthscales returns the fitted lengthscales in normalised input units, or
// nil before Fit.
func (g *GaussianProcessModel) Lengthscales() []float64 {
	if g.model == nil {
		return nil
	}

	return g.model.Hyperparameters().Lengthscales
}

// PriorRegime names the prior configuration used by the last fit, or ""
// before Fit.
func (g *GaussianProcessModel) PriorRegime() string {
	if g.model == nil {
		return ""
	}

	return string(g.model.Priors().Regime)
}

func (g *GaussianProcessModel) batch(points *mat.Dense) ([]float64, []float64, error) {
	mean, cov, err := g.model.Predict(points)
	if err != nil {
		return nil, nil, err
	}

	q := len(mean)
	covar := make([]float64, q*q)

	for i := 0; i < q; i++ {
		for j := 0; j < q; j++ {
			covar[i*q+j] = cov.At(i, j)
		}
	}

	return mean, covar, nil
}
