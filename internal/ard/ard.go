// Package ard implements Bayesian linear regression with automatic relevance
// determination: every weight gets its own Gamma-distributed precision, and
// the evidence is maximised by fixed-point iterations.
package ard

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrSingular is returned when the posterior precision cannot be factorized.
var ErrSingular = errors.New("ard: posterior precision is not positive definite")

// Config holds the ARD hyperparameters.
type Config struct {
	MaxIter         int     `param:"max_iter"`
	Tol             float64 `param:"tol"`
	Alpha1          float64 `param:"alpha_1"`
	Alpha2          float64 `param:"alpha_2"`
	Lambda1         float64 `param:"lambda_1"`
	Lambda2         float64 `param:"lambda_2"`
	ThresholdLambda float64 `param:"threshold_lambda"`
	FitIntercept    bool    `param:"fit_intercept"`
}

// DefaultConfig returns the customary ARD defaults.
func DefaultConfig() Config {
	return Config{
		MaxIter:         300,
		Tol:             1e-3,
		Alpha1:          1e-6,
		Alpha2:          1e-6,
		Lambda1:         1e-6,
		Lambda2:         1e-6,
		ThresholdLambda: 1e4,
		FitIntercept:    true,
	}
}

// Validate checks the ranges of the hyperparameters.
func (c Config) Validate() error {
	if c.MaxIter < 1 {
		return fmt.Errorf("ard: max_iter must be >= 1, got %d", c.MaxIter)
	}

	for name, v := range map[string]float64{
		"tol": c.Tol, "alpha_1": c.Alpha1, "alpha_2": c.Alpha2,
		"lambda_1": c.Lambda1, "lambda_2": c.Lambda2,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("ard: %s must be >= 0, got %v", name, v)
		}
	}

	if !(c.ThresholdLambda > 0) {
		return fmt.Errorf("ard: threshold_lambda must be > 0, got %v", c.ThresholdLambda)
	}

	return nil
}

// Model is a fitted ARD regressor.
type Model struct {
	coef      []float64
	intercept float64
	alpha     float64
	lambda    []float64
	keep      []int
	sigma     *mat.SymDense // posterior covariance of the kept weights
	threshold float64
}

// Fit estimates the weights, the noise precision alpha and the per-weight
// precisions lambda.
//
// How it works:
// - Centres x and y when c.FitIntercept is set
// - Alternates the posterior of the weights with evidence updates of alpha and lambda
// - Prunes weights whose precision exceeds c.ThresholdLambda
// - Stops after c.MaxIter rounds or when the weights move less than c.Tol
//
// Returns:
// - The fitted model
// - An error when x and y are empty, do not match, or the config is invalid
func Fit(x mat.Matrix, y []float64, c Config) (*Model, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	n, d := x.Dims()
	if n == 0 || n != len(y) {
		return nil, errors.New("ard: x and y must be non-empty and of equal length")
	}

	xc := mat.DenseCopyOf(x)
	yc := make([]float64, n)
	copy(yc, y)

	xOffset := make([]float64, d)
	yOffset := 0.0

	if c.FitIntercept {
		col := make([]float64, n)
		for j := 0; j < d; j++ {
			xOffset[j] = stat.Mean(mat.Col(col, j, xc), nil)
			for i := 0; i < n; i++ {
				xc.Set(i, j, xc.At(i, j)-xOffset[j])
			}
		}

		yOffset = stat.Mean(yc, nil)
		for i := range yc {
			yc[i] -= yOffset
		}
	}

	const eps = 2.220446049250313e-16

	m := &Model{
		coef:      make([]float64, d),
		lambda:    make([]float64, d),
		alpha:     1 / (stat.PopVariance(yc, nil) + eps),
		threshold: c.ThresholdLambda,
	}
	for j := range m.lambda {
		m.lambda[j] = 1
	}

	m.keep = m.kept()
	prev := make([]float64, d)

	for iter := 0; iter < c.MaxIter; iter++ {
		if err := m.update(xc, yc); err != nil {
			return nil, err
		}

		var rss float64
		for i := 0; i < n; i++ {
			r := yc[i] - dotRow(xc, i, m.coef)
			rss += r * r
		}

		var gammaSum float64
		for k, j := range m.keep {
			gamma := 1 - m.lambda[j]*m.sigma.At(k, k)
			gammaSum += gamma
			m.lambda[j] = (gamma + 2*c.Lambda1) / (m.coef[j]*m.coef[j] + 2*c.Lambda2)
		}

		m.alpha = (float64(n) - gammaSum + 2*c.Alpha1) / (rss + 2*c.Alpha2)

		m.keep = m.kept()
		for j := range m.coef {
			if m.lambda[j] >= m.threshold {
				m.coef[j] = 0
			}
		}

		var delta float64
		for j := range m.coef {
			delta += math.Abs(prev[j] - m.coef[j])
		}

		if iter > 0 && delta < c.Tol {
			break
		}

		copy(prev, m.coef)

		if len(m.keep) == 0 {
			break
		}
	}

	if len(m.keep) > 0 {
		if err := m.update(xc, yc); err != nil {
			return nil, err
		}
	} else {
		m.sigma = nil
	}

	m.intercept = yOffset
	for j := range m.coef {
		m.intercept -= xOffset[j] * m.coef[j]
	}

	return m, nil
}

// update recomputes sigma = (diag(lambda) + alpha X'X)^-1 and the weights
// alpha * sigma X'y over the kept columns.
func (m *Model) update(x *mat.Dense, y []float64) error {
	n, _ := x.Dims()
	k := len(m.keep)

	for j := range m.coef {
		m.coef[j] = 0
	}

	if k == 0 {
		m.sigma = nil

		return nil
	}

	xk := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		for a, j := range m.keep {
			xk.Set(i, a, x.At(i, j))
		}
	}

	precision := mat.NewSymDense(k, nil)
	precision.SymOuterK(m.alpha, xk.T())

	for a, j := range m.keep {
		precision.SetSym(a, a, precision.At(a, a)+m.lambda[j])
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(precision); !ok {
		return ErrSingular
	}

	sigma := mat.NewSymDense(k, nil)
	if err := chol.InverseTo(sigma); err != nil {
		return fmt.Errorf("%w: %w", ErrSingular, err)
	}

	xty := mat.NewVecDense(k, nil)
	xty.MulVec(xk.T(), mat.NewVecDense(n, y))

	w := mat.NewVecDense(k, nil)
	w.MulVec(sigma, xty)

	for a, j := range m.keep {
		m.coef[j] = m.alpha * w.AtVec(a)
	}

	m.sigma = sigma

	return nil
}

func (m *Model) kept() []int {
	keep := make([]int, 0, len(m.lambda))
	for j, l := range m.lambda {
		if l < m.threshold {
			keep = append(keep, j)
		}
	}

	return keep
}

// Predict returns the predictive mean and standard deviation for every row
// of x.
func (m *Model) Predict(x mat.Matrix) (mean, std []float64) {
	r, _ := x.Dims()
	mean = make([]float64, r)
	std = make([]float64, r)

	k := len(m.keep)
	row := make([]float64, k)
	tmp := mat.NewVecDense(max(k, 1), nil)

	for i := 0; i < r; i++ {
		mean[i] = m.intercept
		for j, w := range m.coef {
			mean[i] += x.At(i, j) * w
		}

		spread := 1 / m.alpha
		if k > 0 {
			for a, j := range m.keep {
				row[a] = x.At(i, j)
			}

			v := mat.NewVecDense(k, row)
			tmp.MulVec(m.sigma, v)
			spread += mat.Dot(tmp, v)
		}

		std[i] = math.Sqrt(spread)
	}

	return mean, std
}

// Coefficients returns a copy of the fitted weights.
func (m *Model) Coefficients() []float64 {
	out := make([]float64, len(m.coef))
	copy(out, m.coef)

	return out
}

// Intercept returns the fitted intercept.
func (m *Model) Intercept() float64 {
	return m.intercept
}

// NoisePrecision returns the fitted noise precision alpha.
func (m *Model) NoisePrecision() float64 {
	return m.alpha
}

func dotRow(x *mat.Dense, i int, w []float64) float64 {
	var s float64
	for j, v := range x.RawRowView(i) {
		s += v * w[j]
	}

	return s
}
