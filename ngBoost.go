package surrogate

import (
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/thalesfsp/surrogate/internal/ngboost"
)

// ngboostDefaults are merged under user supplied params.
var ngboostDefaults = Params{"n_estimators": 25, "verbose": false}

// NGBoostModel is a natural gradient boosted Normal distribution. The
// posterior at a point is the predicted mean and variance.
//
// Accepted params: n_estimators, learning_rate, minibatch_frac, col_sample,
// natural_gradient, tol, max_depth, random_state, verbose, verbose_eval.
// Defaults: n_estimators 25, verbose false.
type NGBoostModel struct {
	params Params
	config ngboost.Config
	model  *ngboost.Model
}

// NewNGBoost validates params and returns an unfitted model.
func NewNGBoost(params Params, opts ...Option) (*NGBoostModel, error) {
	o := newOptions(opts)

	merged := ngboostDefaults.Clone()
	for k, v := range params {
		merged[k] = v
	}

	c := ngboost.DefaultConfig()
	c.Logger = o.logger.Named("ngboost")

	if err := decodeParams(NGBoost, merged, &c); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedConfig, err)
	}

	return &NGBoostModel{params: merged, config: c}, nil
}

// Family implements Model.
func (b *NGBoostModel) Family() Family { return NGBoost }

// PosteriorMode implements Model.
func (b *NGBoostModel) PosteriorMode() PosteriorMode { return PosteriorMarginal }

// ModelParams implements Model.
func (b *NGBoostModel) ModelParams() Params { return b.params.Clone() }

// Fit implements Model.
func (b *NGBoostModel) Fit(_ SearchSpace, x, y *mat.Dense) error {
	m, err := ngboost.Fit(x, column(y), b.config)
	if err != nil {
		return err
	}

	b.config.Logger.Debug("ngboost fitted", zap.Int("stages", m.Stages()))
	b.model = m

	return nil
}

// Posterior implements Model.
func (b *NGBoostModel) Posterior(candidates *Tensor) (*Tensor, *Tensor, error) {
	if b.model == nil {
		return nil, nil, ErrNotFitted
	}

	return Batchify(PosteriorMarginal, func(points *mat.Dense) ([]float64, []float64, error) {
		mean, variance := b.model.Predict(points)

		return mean, variance, nil
	})(candidates)
}
