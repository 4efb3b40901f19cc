package surrogate

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gorgonia.org/tensor"
)

//////
// Helper functions.
//////

// minVariance is added to every diagonal entry of a returned covariance so
// downstream consumers never see a singular matrix.
const minVariance = 1e-6

// Helper function used by PI and EI to compute the cumulative distribution
// function of the standard normal distribution.
func normalCDF(x float64) float64 {
	return 0.5 * (1.0 + math.Erf(x/math.Sqrt2))
}

// Helper function used by EI to compute the probability density function
// of the standard normal distribution.
func normalPDF(x float64) float64 {
	return math.Exp(-x*x/2.0) / math.Sqrt(2.0*math.Pi)
}

// diagEmbed turns variances of shape (*T, Q) into covariances of shape
// (*T, Q, Q) with the variances on the diagonal and zeros elsewhere.
func diagEmbed(variance *Tensor) (*Tensor, error) {
	shape := variance.Shape()
	q := shape[len(shape)-1]
	n := variance.Len() / q

	flat, err := variance.Reshape(n, q)
	if err != nil {
		return nil, err
	}

	out := tensor.New(tensor.Of(tensor.Float64), tensor.WithShape(n, q, q))

	for b := 0; b < n; b++ {
		for i := 0; i < q; i++ {
			if err := out.SetAt(flat.At(b, i), b, i, i); err != nil {
				return nil, fmt.Errorf("%w: embedding variance %d of batch %d: %v", ErrUnsupportedShape, i, b, err)
			}
		}
	}

	if err := out.Reshape(append(shape, q)...); err != nil {
		return nil, fmt.Errorf("%w: embedding variances of shape %v: %v", ErrUnsupportedShape, shape, err)
	}

	return &Tensor{dense: out}, nil
}

// addDiagonal adds v to the diagonal of every (Q, Q) matrix of a
// (*T, Q, Q) tensor in place.
func addDiagonal(covar *Tensor, v float64) error {
	shape := covar.Shape()
	if len(shape) < 2 || shape[len(shape)-1] != shape[len(shape)-2] {
		return &ShapeError{Op: "posterior", Shape: shape, Want: "(*T, Q, Q)"}
	}

	q := shape[len(shape)-1]

	stacked, err := covar.Reshape(covar.Len()/(q*q), q, q)
	if err != nil {
		return err
	}

	for b := 0; b < covar.Len()/(q*q); b++ {
		for i := 0; i < q; i++ {
			if err := stacked.dense.SetAt(stacked.At(b, i, i)+v, b, i, i); err != nil {
				return fmt.Errorf("%w: flooring batch %d: %v", ErrUnsupportedShape, b, err)
			}
		}
	}

	return nil
}

// column returns the first column of a matrix as a fresh slice.
func column(m mat.Matrix) []float64 {
	return mat.Col(nil, 0, m)
}

// paramsToFloat64s converts parameters of any numeric type to float64.
func paramsToFloat64s[T Number](params []T) []float64 {
	floats := make([]float64, len(params))
	for i, v := range params {
		floats[i] = float64(v)
	}

	return floats
}
