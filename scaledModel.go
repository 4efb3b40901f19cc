package surrogate

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ScaledModel fits its inner model on scaled features and targets and maps
// posteriors back to target units. A new DefaultScaler is fitted on every
// Fit call.
//
// Fields:
// - inner: The wrapped model, which only ever sees scaled data
// - scaler: The scaler of the last successful fit, nil before
//
// Thread safety:
// - Not safe for concurrent use on its own
// - The Surrogate facade serialises Fit and Posterior with its RWMutex.
type ScaledModel struct {
	inner  Model
	scaler *DefaultScaler
}

// Scale wraps m with the default scaling.
//
// How it works:
//   - Fit builds a DefaultScaler from the search space bounds and the
//     targets, then fits m on unit-cube features and standardised targets
//   - Posterior scales the last axis of the candidates, delegates to m and
//     maps the mean with m*std+mean and (co)variances with v*std^2
//
// Parameters:
// - m: The model to wrap
//
// Returns:
// - An unfitted model. Posterior returns ErrNotFitted until Fit succeeds.
//
// Usage example:
//
//	rf, _ := NewRandomForest(Params{"n_estimators": 50})
//	scaled := Scale(rf)
func Scale(m Model) *ScaledModel {
	return &ScaledModel{inner: m}
}

// Family implements Model.
func (s *ScaledModel) Family() Family { return s.inner.Family() }

// PosteriorMode implements Model.
func (s *ScaledModel) PosteriorMode() PosteriorMode { return s.inner.PosteriorMode() }

// ModelParams implements Model.
func (s *ScaledModel) ModelParams() Params { return s.inner.ModelParams() }

// Unwrap implements Unwrapper.
func (s *ScaledModel) Unwrap() Model { return s.inner }

// Scaler returns the scaler of the last successful fit, or nil.
func (s *ScaledModel) Scaler() *DefaultScaler { return s.scaler }

// Fit implements Model.
func (s *ScaledModel) Fit(space SearchSpace, x, y *mat.Dense) error {
	scaler, err := NewDefaultScaler(space, y)
	if err != nil {
		return err
	}

	xs, err := scaler.TransformX(x)
	if err != nil {
		return err
	}

	if err := s.inner.Fit(scaler.unitSpace(space), xs, scaler.TransformY(y)); err != nil {
		return err
	}

	s.scaler = scaler

	return nil
}

// Posterior implements Model.
func (s *ScaledModel) Posterior(candidates *Tensor) (*Tensor, *Tensor, error) {
	if s.scaler == nil {
		return nil, nil, ErrNotFitted
	}

	scaled, err := s.scaler.TransformCandidates(candidates)
	if err != nil {
		return nil, nil, err
	}

	mean, covar, err := s.inner.Posterior(scaled)
	if err != nil {
		return nil, nil, fmt.Errorf("scaled %s posterior: %w", s.inner.Family(), err)
	}

	return s.scaler.UntransformPosterior(mean, covar)
}
