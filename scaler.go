package surrogate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultScaler maps features to the unit cube using the bounds of the
// search space and standardises targets to zero mean and unit variance.
//
// The feature transform only depends on the search space, never on the
// candidates being scored, so scores of different candidate sets are
// comparable.
type DefaultScaler struct {
	lower []float64
	span  []float64
	mean  float64
	std   float64
}

// NewDefaultScaler fits a scaler to the bounds of space and the targets y.
// A zero span is treated as one; a target std that is not positive, or a
// single target, is treated as one.
func NewDefaultScaler(space SearchSpace, y *mat.Dense) (*DefaultScaler, error) {
	lower, upper := space.ComputationalBounds()
	if len(lower) == 0 || len(lower) != len(upper) {
		return nil, fmt.Errorf("%w: search space bounds have %d/%d entries", ErrInvalidInput, len(lower), len(upper))
	}

	s := &DefaultScaler{
		lower: append([]float64(nil), lower...),
		span:  make([]float64, len(lower)),
		std:   1,
	}

	for i := range lower {
		s.span[i] = upper[i] - lower[i]
		if s.span[i] == 0 {
			s.span[i] = 1
		}
	}

	targets := column(y)

	s.mean = stat.Mean(targets, nil)
	if len(targets) > 1 {
		if std := stat.StdDev(targets, nil); std > 0 && !math.IsInf(std, 0) {
			s.std = std
		}
	}

	return s, nil
}

// Features returns the number of features the scaler was fitted for.
func (s *DefaultScaler) Features() int {
	return len(s.lower)
}

// TransformFeatures scales the last axis of a row-major array in place.
func (s *DefaultScaler) TransformFeatures(data []float64) {
	d := len(s.lower)
	for i := range data {
		j := i % d
		data[i] = (data[i] - s.lower[j]) / s.span[j]
	}
}

// TransformX returns the scaled copy of x.
func (s *DefaultScaler) TransformX(x *mat.Dense) (*mat.Dense, error) {
	r, c := x.Dims()
	if c != len(s.lower) {
		return nil, fmt.Errorf("%w: %d features for a space of %d dimensions", ErrInvalidInput, c, len(s.lower))
	}

	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, j int, v float64) float64 {
		return (v - s.lower[j]) / s.span[j]
	}, x)

	return out, nil
}

// TransformY returns the standardised copy of y.
func (s *DefaultScaler) TransformY(y *mat.Dense) *mat.Dense {
	r, c := y.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(_, _ int, v float64) float64 {
		return (v - s.mean) / s.std
	}, y)

	return out
}

// TransformCandidates returns the scaled copy of candidates of shape
// (*T, Q, D).
func (s *DefaultScaler) TransformCandidates(candidates *Tensor) (*Tensor, error) {
	if candidates.empty() {
		return nil, fmt.Errorf("%w: empty candidates", ErrInvalidInput)
	}

	shape := candidates.Shape()
	if shape[len(shape)-1] != len(s.lower) {
		return nil, &ShapeError{Op: "scale", Shape: shape, Want: fmt.Sprintf("(*T, Q, %d)", len(s.lower))}
	}

	out := candidates.Clone()
	s.TransformFeatures(out.values())

	return out, nil
}

// UntransformMean maps a standardised mean back to target units.
func (s *DefaultScaler) UntransformMean(m float64) float64 {
	return m*s.std + s.mean
}

// UntransformVariance maps a standardised variance or covariance entry back
// to target units.
func (s *DefaultScaler) UntransformVariance(v float64) float64 {
	return v * s.std * s.std
}

// UntransformPosterior maps a posterior computed in scaled units back to
// target units. covar may hold variances or covariances.
func (s *DefaultScaler) UntransformPosterior(mean, covar *Tensor) (*Tensor, *Tensor, error) {
	m, err := mean.apply(s.UntransformMean)
	if err != nil {
		return nil, nil, fmt.Errorf("untransforming mean: %w", err)
	}

	c, err := covar.apply(s.UntransformVariance)
	if err != nil {
		return nil, nil, fmt.Errorf("untransforming covariance: %w", err)
	}

	return m, c, nil
}

// unitSpace is the search space as seen by a model fitted on scaled features.
func (s *DefaultScaler) unitSpace(space SearchSpace) *Space {
	d := len(s.lower)
	upper := make([]float64, d)

	for i := range upper {
		upper[i] = 1
	}

	return &Space{
		Lower:       make([]float64, d),
		Upper:       upper,
		Continuous:  space.HasContinuous(),
		Descriptors: space.ContainsDescriptors(),
	}
}
