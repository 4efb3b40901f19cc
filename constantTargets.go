package surrogate

import (
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// minTargetStd is the spread below which targets count as constant.
const minTargetStd = 1e-6

// ConstantTargetsGuard fits a mean predictor instead of its model when the
// training targets are (numerically) constant. Capability metadata always
// reports the configured model; Unwrap returns the model currently active.
//
// Fields:
// - model: The configured model, fitted whenever the targets vary
// - active: The model answering Posterior, nil before the first fit
// - logger: Receives an Info entry every time the fallback engages
//
// Thread safety:
// - Not safe for concurrent use on its own
// - The Surrogate facade serialises Fit and Posterior with its RWMutex.
type ConstantTargetsGuard struct {
	model  Model
	active Model
	logger *zap.Logger
}

// CatchConstantTargets wraps m with the constant-target fallback.
//
// How it works:
// - Fit computes the population standard deviation of the targets
// - Below 1e-6, a fresh MeanPredictionModel is fitted and becomes active
// - Otherwise m is fitted and becomes active
// - The active model only changes after a successful fit
//
// Parameters:
// - m: The model to guard
// - opts: WithLogger is honoured, other options are ignored
//
// Returns:
// - An unfitted guard. Posterior returns ErrNotFitted until Fit succeeds.
//
// Important notes:
//   - When m is joint and the fallback is active, marginal variances are
//     embedded into diagonal covariances so the output layout never changes.
//
// Usage example:
//
//	gp, _ := NewGaussianProcess(nil)
//	guarded := CatchConstantTargets(gp, WithLogger(logger))
func CatchConstantTargets(m Model, opts ...Option) *ConstantTargetsGuard {
	o := newOptions(opts)

	return &ConstantTargetsGuard{model: m, logger: o.logger.Named("surrogate")}
}

// Family implements Model.
func (g *ConstantTargetsGuard) Family() Family { return g.model.Family() }

// PosteriorMode implements Model.
func (g *ConstantTargetsGuard) PosteriorMode() PosteriorMode { return g.model.PosteriorMode() }

// ModelParams implements Model.
func (g *ConstantTargetsGuard) ModelParams() Params { return g.model.ModelParams() }

// Unwrap implements Unwrapper.
func (g *ConstantTargetsGuard) Unwrap() Model {
	if g.active != nil {
		return g.active
	}

	return g.model
}

// Fit implements Model.
func (g *ConstantTargetsGuard) Fit(space SearchSpace, x, y *mat.Dense) error {
	targets := column(y)

	if _, std := stat.PopMeanStdDev(targets, nil); std < minTargetStd {
		fallback := NewMeanPrediction()
		if err := fallback.Fit(space, x, y); err != nil {
			return err
		}

		g.logger.Info("constant targets, falling back to mean prediction",
			zap.String("family", string(g.model.Family())),
			zap.Int("observations", len(targets)),
			zap.Float64("target", fallback.TargetValue()),
		)

		g.active = fallback

		return nil
	}

	if err := g.model.Fit(space, x, y); err != nil {
		return err
	}

	g.active = g.model

	return nil
}

// Posterior implements Model.
func (g *ConstantTargetsGuard) Posterior(candidates *Tensor) (*Tensor, *Tensor, error) {
	if g.active == nil {
		return nil, nil, ErrNotFitted
	}

	mean, covar, err := g.active.Posterior(candidates)
	if err != nil {
		return nil, nil, err
	}

	if g.model.PosteriorMode() == PosteriorJoint && g.active.PosteriorMode() == PosteriorMarginal {
		if covar, err = diagEmbed(covar); err != nil {
			return nil, nil, err
		}
	}

	return mean, covar, nil
}
