package surrogate

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// SearchSpace is the part of a search space the surrogate layer needs.
type SearchSpace interface {
	// ComputationalBounds returns per-feature lower and upper bounds of the
	// computational representation.
	ComputationalBounds() (lower, upper []float64)

	// ContainsDescriptors reports whether features are descriptor-derived.
	ContainsDescriptors() bool

	// HasContinuous reports whether the space has a non-empty continuous
	// component.
	HasContinuous() bool
}

// Space is a box-shaped search space.
type Space struct {
	Lower       []float64
	Upper       []float64
	Continuous  bool
	Descriptors bool
}

// NewSpace returns a continuous space bounded by lower and upper.
func NewSpace(lower, upper []float64) (*Space, error) {
	if len(lower) == 0 || len(lower) != len(upper) {
		return nil, fmt.Errorf("%w: bounds have %d/%d entries", ErrInvalidInput, len(lower), len(upper))
	}

	for i := range lower {
		if lower[i] > upper[i] {
			return nil, fmt.Errorf("%w: lower bound %v above upper bound %v in dimension %d",
				ErrInvalidInput, lower[i], upper[i], i)
		}
	}

	return &Space{
		Lower:      append([]float64(nil), lower...),
		Upper:      append([]float64(nil), upper...),
		Continuous: true,
	}, nil
}

// DiscreteSpace returns a discrete space over the rows of points. Its bounds
// are the column-wise minima and maxima.
func DiscreteSpace(points mat.Matrix) (*Space, error) {
	r, c := points.Dims()
	if r == 0 || c == 0 {
		return nil, fmt.Errorf("%w: no points", ErrInvalidInput)
	}

	s := &Space{Lower: make([]float64, c), Upper: make([]float64, c)}

	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, points)
		s.Lower[j], s.Upper[j] = floats.Min(col), floats.Max(col)
	}

	return s, nil
}

// ComputationalBounds implements SearchSpace.
func (s *Space) ComputationalBounds() (lower, upper []float64) {
	return s.Lower, s.Upper
}

// ContainsDescriptors implements SearchSpace.
func (s *Space) ContainsDescriptors() bool {
	return s.Descriptors
}

// HasContinuous implements SearchSpace.
func (s *Space) HasContinuous() bool {
	return s.Continuous
}
